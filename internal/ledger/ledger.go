// Package ledger is the append-only record of stock deltas. Product
// stock is only ever changed through Adjust, which writes the product's
// stock field and appends a movement as two separate store calls (the
// backing store has no multi-document transaction). The movement's
// reference makes retries idempotent.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ClaudeNdayambaje/payesmart1/internal/events"
	"github.com/ClaudeNdayambaje/payesmart1/internal/models"
	"github.com/ClaudeNdayambaje/payesmart1/internal/store"
)

// ErrStockInconsistency - a sale-type decrement would drive stock below
// zero. Manual adjustments are exempt: they are authoritative recounts
// and may produce a negative result to correct prior errors.
var ErrStockInconsistency = errors.New("insufficient stock")

// ModeSource reports the current connectivity mode. The ledger uses it
// only to pick retry behavior: retries with backoff while online,
// fail-fast while offline.
type ModeSource interface {
	Mode() models.Mode
}

// Adjustment is one requested stock delta.
type Adjustment struct {
	ProductID  string              `json:"product_id"`
	Delta      int                 `json:"delta"`
	Type       models.MovementType `json:"type"`
	Reason     string              `json:"reason"`
	EmployeeID string              `json:"employee_id"`
	// Reference ties a sale movement to its receipt number and makes
	// the movement write idempotent (reference + product id).
	Reference string `json:"reference,omitempty"`
	// ExpectedPreviousStock skips the product read on the hot checkout
	// path when the caller already holds a fresh stock value.
	ExpectedPreviousStock *int   `json:"expected_previous_stock,omitempty"`
	Source                string `json:"source,omitempty"`
	NavigateTo            string `json:"navigate_to,omitempty"`
}

// Ledger performs atomic-adjustment operations against the store.
type Ledger struct {
	store store.Store
	modes ModeSource
	bus   *events.Bus
	log   *logrus.Logger

	terminalID  string
	now         func() time.Time
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	sleep       func(time.Duration)
}

func New(st store.Store, modes ModeSource, bus *events.Bus, log *logrus.Logger, terminalID string) *Ledger {
	return &Ledger{
		store:       st,
		modes:       modes,
		bus:         bus,
		log:         log,
		terminalID:  terminalID,
		now:         time.Now,
		maxAttempts: 3,
		baseBackoff: 250 * time.Millisecond,
		maxBackoff:  5 * time.Second,
		sleep:       time.Sleep,
	}
}

// Adjust reads the product's current stock (unless the caller supplied
// one), writes the new stock value and appends the movement record.
// Calling it twice with the same reference and product id yields
// exactly one movement and decrements stock exactly once.
func (l *Ledger) Adjust(ctx context.Context, adj Adjustment) (*models.StockMovement, error) {
	if adj.Reference != "" {
		if existing, err := l.findByReference(ctx, adj); err == nil && existing != nil {
			return existing, nil
		}
	}

	previous, err := l.previousStock(ctx, adj)
	if err != nil {
		return nil, err
	}
	newStock := previous + adj.Delta
	if adj.Type == models.MovementSale && newStock < 0 {
		return nil, fmt.Errorf("%w: product %s has %d, sale needs %d",
			ErrStockInconsistency, adj.ProductID, previous, -adj.Delta)
	}

	// Movement payload is fixed up front so every retry carries the
	// same record.
	movement := models.StockMovement{
		ID:            uuid.NewString(),
		ProductID:     adj.ProductID,
		Quantity:      adj.Delta,
		Type:          adj.Type,
		Reason:        adj.Reason,
		EmployeeID:    adj.EmployeeID,
		Reference:     adj.Reference,
		PreviousStock: previous,
		NewStock:      newStock,
		TerminalID:    l.terminalID,
		Timestamp:     l.now(),
	}

	attempts := 1
	if l.modes.Mode() == models.ModeOnline {
		attempts = l.maxAttempts
	}

	stockWritten := false
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			l.sleep(l.backoff(attempt))
			// A previous try may have landed the movement before the
			// response was lost; at-least-once delivery cuts both ways.
			if adj.Reference != "" {
				if existing, err := l.findByReference(ctx, adj); err == nil && existing != nil {
					return existing, nil
				}
			}
		}
		if !stockWritten {
			err := l.store.Update(ctx, store.Products, adj.ProductID, map[string]any{"stock": newStock})
			if err != nil {
				if errors.Is(err, store.ErrUnavailable) {
					lastErr = err
					continue
				}
				return nil, err
			}
			stockWritten = true
		}
		if _, err := l.store.Create(ctx, store.Movements, movement); err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				lastErr = err
				continue
			}
			return nil, err
		}

		l.log.WithFields(logrus.Fields{
			"module":     "ledger",
			"product_id": adj.ProductID,
			"delta":      adj.Delta,
			"new_stock":  newStock,
			"reference":  adj.Reference,
		}).Info("stock adjusted")
		l.bus.Publish(events.TopicStockUpdated, events.StockUpdated{
			ProductID:  adj.ProductID,
			NewStock:   newStock,
			Source:     adj.Source,
			NavigateTo: adj.NavigateTo,
		})
		return &movement, nil
	}
	return nil, lastErr
}

// Movements returns the audit trail for one product, oldest first.
func (l *Ledger) Movements(ctx context.Context, productID string) ([]models.StockMovement, error) {
	var out []models.StockMovement
	filter := map[string]any{}
	if productID != "" {
		filter["product_id"] = productID
	}
	if err := l.store.List(ctx, store.Movements, filter, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) previousStock(ctx context.Context, adj Adjustment) (int, error) {
	if adj.ExpectedPreviousStock != nil {
		return *adj.ExpectedPreviousStock, nil
	}
	var product models.Product
	if err := l.store.Get(ctx, store.Products, adj.ProductID, &product); err != nil {
		return 0, err
	}
	return product.Stock, nil
}

func (l *Ledger) findByReference(ctx context.Context, adj Adjustment) (*models.StockMovement, error) {
	var existing []models.StockMovement
	filter := map[string]any{"reference": adj.Reference, "product_id": adj.ProductID}
	if err := l.store.List(ctx, store.Movements, filter, &existing); err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, nil
	}
	return &existing[0], nil
}

// backoff: base * 2^(attempt-1), capped.
func (l *Ledger) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(l.baseBackoff) * math.Pow(2, float64(attempt-1)))
	if delay > l.maxBackoff {
		return l.maxBackoff
	}
	return delay
}
