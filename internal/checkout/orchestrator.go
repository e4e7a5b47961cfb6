// Package checkout runs a single checkout attempt through its phases:
// pricing, sale persistence, stock reconciliation. The sale write is
// the only hard synchronization point; everything after it is
// best-effort and compensated through the ledger's idempotent
// references.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ClaudeNdayambaje/payesmart1/internal/ledger"
	"github.com/ClaudeNdayambaje/payesmart1/internal/loyalty"
	"github.com/ClaudeNdayambaje/payesmart1/internal/models"
	"github.com/ClaudeNdayambaje/payesmart1/internal/pricing"
	"github.com/ClaudeNdayambaje/payesmart1/internal/queue"
	"github.com/ClaudeNdayambaje/payesmart1/internal/settings"
	"github.com/ClaudeNdayambaje/payesmart1/internal/store"
)

// Validation and persistence failures surfaced to the caller.
var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateReceipt  = errors.New("could not generate a unique receipt number")
)

// Status is the terminal state of a checkout attempt.
type Status string

const (
	StatusSettled          Status = "settled"
	StatusPartiallySettled Status = "partially_settled"
	StatusAborted          Status = "aborted"
)

// Outcome reports how the attempt ended. A receipt is only present
// once the sale record is committed (remotely, or durably queued when
// offline).
type Outcome struct {
	Status         Status          `json:"status"`
	Receipt        *models.Receipt `json:"receipt,omitempty"`
	FailedProducts []string        `json:"failed_products,omitempty"`
	Deferred       bool            `json:"deferred,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// Request is the checkout entry point's input.
type Request struct {
	Items          []models.CartItem   `json:"items"`
	PaymentMethod  string              `json:"payment_method"`
	AmountReceived decimal.Decimal     `json:"amount_received"`
	EmployeeID     string              `json:"employee_id"`
	LoyaltyCard    *models.LoyaltyCard `json:"loyalty_card,omitempty"`
}

// ModeSource reports the connectivity mode gating remote writes.
type ModeSource interface {
	Mode() models.Mode
}

// Orchestrator coordinates pricing, the sale write and the stock
// ledger fan-out for one checkout at a time.
type Orchestrator struct {
	store    store.Store
	ledger   *ledger.Ledger
	queue    *queue.Queue
	modes    ModeSource
	settings *settings.File
	log      *logrus.Logger

	terminalID string
	now        func() time.Time
	receiptFn  func(now time.Time) string
}

func New(st store.Store, lg *ledger.Ledger, q *queue.Queue, modes ModeSource, sf *settings.File, log *logrus.Logger, terminalID string) *Orchestrator {
	return &Orchestrator{
		store:      st,
		ledger:     lg,
		queue:      q,
		modes:      modes,
		settings:   sf,
		log:        log,
		terminalID: terminalID,
		now:        time.Now,
		receiptFn:  GenerateReceiptNumber,
	}
}

// FinalizeCheckout prices the cart, persists the sale and fans out the
// stock decrements. Validation failures abort with no side effects; a
// failed sale write aborts with the cart preserved; decrement failures
// after a committed sale degrade the outcome to PartiallySettled but
// never roll the sale back.
func (o *Orchestrator) FinalizeCheckout(ctx context.Context, req Request) (Outcome, error) {
	now := o.now()
	offline := o.modes.Mode() == models.ModeOffline

	// Pricing phase.
	if len(req.Items) == 0 {
		return abort(ErrEmptyCart)
	}
	lines, err := o.priceCart(ctx, req.Items, now, offline)
	if err != nil {
		return abort(err)
	}

	items := make([]models.CartItem, len(lines))
	subtotal := decimal.Zero
	for i, line := range lines {
		items[i] = line.item
		subtotal = subtotal.Add(line.amount)
	}
	discount := loyalty.Discount(req.LoyaltyCard)
	total := pricing.ApplyDiscount(subtotal, discount)
	discountFactor := decimal.NewFromInt(1).Sub(discount.Div(decimal.NewFromInt(100)))

	receiptNumber, err := o.uniqueReceiptNumber(ctx, now, offline)
	if err != nil {
		return abort(err)
	}

	sale := models.Sale{
		ID:             uuid.NewString(),
		Items:          items,
		Subtotal:       subtotal,
		Total:          total,
		Timestamp:      now,
		PaymentMethod:  req.PaymentMethod,
		ReceiptNumber:  receiptNumber,
		AmountReceived: req.AmountReceived,
		Change:         req.AmountReceived.Sub(total),
		EmployeeID:     req.EmployeeID,
		TerminalID:     o.terminalID,
		VATAmounts:     pricing.VATBreakdown(items, now, discountFactor),
	}
	if req.LoyaltyCard != nil && req.LoyaltyCard.ID != "" {
		sale.LoyaltyCard = req.LoyaltyCard
		sale.PointsEarned = loyalty.PointsEarned(total)
	}

	// Persisting phase. Offline, the sale and its decrements go to the
	// durable queue instead of the remote store; sync replays them.
	if offline {
		return o.deferCheckout(sale, lines)
	}
	if _, err := o.store.Create(ctx, store.Sales, sale); err != nil {
		o.log.WithFields(logrus.Fields{
			"module":  "checkout",
			"receipt": receiptNumber,
		}).Error("sale write failed: " + err.Error())
		return Outcome{Status: StatusAborted, Reason: "sale could not be persisted"}, err
	}

	// Reconciling phase: concurrent ledger decrements, one per line.
	failed := o.decrementStock(ctx, sale, lines)

	outcome := Outcome{Status: StatusSettled, Receipt: o.buildReceipt(sale)}
	if len(failed) > 0 {
		outcome.Status = StatusPartiallySettled
		outcome.FailedProducts = failed
	}
	o.log.WithFields(logrus.Fields{
		"module":  "checkout",
		"receipt": receiptNumber,
		"status":  outcome.Status,
		"total":   total,
	}).Info("checkout finished")
	return outcome, nil
}

// ReplayOperation applies one queued operation during sync. Both kinds
// are idempotent: a sale create checks the receipt number, a stock
// adjustment checks its reference.
func (o *Orchestrator) ReplayOperation(ctx context.Context, op queue.Operation) error {
	switch op.Type {
	case queue.OpCreateSale:
		var sale models.Sale
		if err := json.Unmarshal(op.Payload, &sale); err != nil {
			return err
		}
		var existing []models.Sale
		filter := map[string]any{"receipt_number": sale.ReceiptNumber}
		if err := o.store.List(ctx, store.Sales, filter, &existing); err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil // already replayed
		}
		_, err := o.store.Create(ctx, store.Sales, sale)
		return err
	case queue.OpAdjustStock:
		var adj ledger.Adjustment
		if err := json.Unmarshal(op.Payload, &adj); err != nil {
			return err
		}
		_, err := o.ledger.Adjust(ctx, adj)
		return err
	default:
		return fmt.Errorf("unknown queued operation type %q", op.Type)
	}
}

type pricedLine struct {
	item          models.CartItem
	amount        decimal.Decimal
	previousStock int
}

// priceCart computes each line's payable amount and validates quantity
// against current stock. Lines for the same product are merged first:
// the ledger keys decrements on (reference, product id), so one product
// must yield one decrement. Online it re-reads the product so stale
// cart snapshots cannot oversell; offline the snapshot is all there is.
func (o *Orchestrator) priceCart(ctx context.Context, items []models.CartItem, now time.Time, offline bool) ([]pricedLine, error) {
	merged := make([]models.CartItem, 0, len(items))
	byProduct := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("invalid quantity %d for %s", item.Quantity, item.Product.Name)
		}
		if i, ok := byProduct[item.Product.ID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		byProduct[item.Product.ID] = len(merged)
		merged = append(merged, item)
	}

	lines := make([]pricedLine, 0, len(merged))
	for _, item := range merged {
		product := item.Product
		if !offline {
			var fresh models.Product
			err := o.store.Get(ctx, store.Products, item.Product.ID, &fresh)
			switch {
			case err == nil:
				product = fresh
			case errors.Is(err, store.ErrNotFound):
				return nil, fmt.Errorf("product %s no longer exists", item.Product.ID)
			case errors.Is(err, store.ErrUnavailable):
				// Fall back to the snapshot; the ledger floor check
				// still guards the decrement.
			default:
				return nil, err
			}
		}
		if item.Quantity > product.Stock {
			return nil, fmt.Errorf("%w for %s: have %d, need %d",
				ErrInsufficientStock, product.Name, product.Stock, item.Quantity)
		}
		lines = append(lines, pricedLine{
			item:          models.CartItem{Product: product, Quantity: item.Quantity},
			amount:        pricing.LinePrice(product, item.Quantity, now),
			previousStock: product.Stock,
		})
	}
	return lines, nil
}

// uniqueReceiptNumber generates a receipt number and verifies no sale
// already carries it; collisions are regenerated, never overwritten.
// Offline the remote check is impossible, so the generated number is
// validated during sync by the idempotent replay instead.
func (o *Orchestrator) uniqueReceiptNumber(ctx context.Context, now time.Time, offline bool) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		candidate := o.receiptFn(now)
		if offline {
			return candidate, nil
		}
		var existing []models.Sale
		err := o.store.List(ctx, store.Sales, map[string]any{"receipt_number": candidate}, &existing)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
		if len(existing) == 0 {
			return candidate, nil
		}
		o.log.WithField("module", "checkout").Warn("receipt number collision, regenerating: " + candidate)
	}
	return "", ErrDuplicateReceipt
}

// decrementStock fans the ledger decrements out concurrently and joins
// on completion. Unreachable-store failures become queued
// reconciliation debt; inconsistency rejections are surfaced per line
// without blocking the others.
func (o *Orchestrator) decrementStock(ctx context.Context, sale models.Sale, lines []pricedLine) []string {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
	)
	for _, line := range lines {
		wg.Add(1)
		go func(line pricedLine) {
			defer wg.Done()
			previous := line.previousStock
			adj := ledger.Adjustment{
				ProductID:             line.item.Product.ID,
				Delta:                 -line.item.Quantity,
				Type:                  models.MovementSale,
				Reason:                "Sale - " + sale.ReceiptNumber,
				EmployeeID:            sale.EmployeeID,
				Reference:             sale.ReceiptNumber,
				ExpectedPreviousStock: &previous,
				Source:                "checkout",
			}
			if _, err := o.ledger.Adjust(ctx, adj); err != nil {
				o.log.WithFields(logrus.Fields{
					"module":     "checkout",
					"product_id": adj.ProductID,
					"receipt":    sale.ReceiptNumber,
				}).Error("stock decrement failed: " + err.Error())
				if errors.Is(err, store.ErrUnavailable) {
					// The queued payload keeps the stock snapshot. The
					// stock write may already have landed; replaying with
					// the same snapshot rewrites the same value instead of
					// decrementing again from a re-read.
					if qErr := o.queue.Enqueue(queue.OpAdjustStock, adj); qErr != nil {
						o.log.WithField("module", "checkout").Error("could not queue reconciliation: " + qErr.Error())
					}
				}
				mu.Lock()
				failed = append(failed, adj.ProductID)
				mu.Unlock()
			}
		}(line)
	}
	wg.Wait()
	return failed
}

// deferCheckout records the sale and its decrements in the durable
// queue. The receipt is still returned: the sale is committed locally
// and will reach the store on the next sync.
func (o *Orchestrator) deferCheckout(sale models.Sale, lines []pricedLine) (Outcome, error) {
	if err := o.queue.Enqueue(queue.OpCreateSale, sale); err != nil {
		return Outcome{Status: StatusAborted, Reason: "could not queue sale"}, err
	}
	for _, line := range lines {
		previous := line.previousStock
		adj := ledger.Adjustment{
			ProductID:             line.item.Product.ID,
			Delta:                 -line.item.Quantity,
			Type:                  models.MovementSale,
			Reason:                "Sale - " + sale.ReceiptNumber,
			EmployeeID:            sale.EmployeeID,
			Reference:             sale.ReceiptNumber,
			ExpectedPreviousStock: &previous,
			Source:                "checkout",
		}
		if err := o.queue.Enqueue(queue.OpAdjustStock, adj); err != nil {
			return Outcome{Status: StatusPartiallySettled, Receipt: o.buildReceipt(sale),
				FailedProducts: []string{adj.ProductID}, Deferred: true}, err
		}
	}
	o.log.WithFields(logrus.Fields{
		"module":  "checkout",
		"receipt": sale.ReceiptNumber,
		"pending": o.queue.Pending(),
	}).Info("checkout deferred while offline")
	return Outcome{Status: StatusSettled, Receipt: o.buildReceipt(sale), Deferred: true}, nil
}

func (o *Orchestrator) buildReceipt(sale models.Sale) *models.Receipt {
	s := o.settings.Get()
	return &models.Receipt{
		Sale:         sale,
		BusinessName: s.StoreName,
		Address:      s.Address,
		Phone:        s.Phone,
		Email:        s.Email,
		VATNumber:    s.VATNumber,
	}
}

func abort(err error) (Outcome, error) {
	return Outcome{Status: StatusAborted, Reason: err.Error()}, err
}

// GenerateReceiptNumber builds "BE" + the last six digits of the
// current unix-millis + three random digits. Uniqueness is
// probabilistic by construction and validated before the sale write.
func GenerateReceiptNumber(now time.Time) string {
	millis := strconv.FormatInt(now.UnixMilli(), 10)
	if len(millis) > 6 {
		millis = millis[len(millis)-6:]
	}
	random := fmt.Sprintf("%03d", rand.Intn(1000))
	return "BE" + millis + random
}
