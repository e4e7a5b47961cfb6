package checkout

import (
	"context"
	"io"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClaudeNdayambaje/payesmart1/internal/events"
	"github.com/ClaudeNdayambaje/payesmart1/internal/ledger"
	"github.com/ClaudeNdayambaje/payesmart1/internal/models"
	"github.com/ClaudeNdayambaje/payesmart1/internal/queue"
	"github.com/ClaudeNdayambaje/payesmart1/internal/settings"
	"github.com/ClaudeNdayambaje/payesmart1/internal/store"
)

type fixedMode models.Mode

func (m fixedMode) Mode() models.Mode { return models.Mode(m) }

// faultStore lets a test break specific store calls with ErrUnavailable.
type faultStore struct {
	*store.MemoryStore
	failSaleCreate   bool
	failUpdateFor    string // product id whose stock write always fails
	failMovementsFor string // product id whose movement write always fails
}

func (s *faultStore) Create(ctx context.Context, collection string, doc any) (string, error) {
	if collection == store.Sales && s.failSaleCreate {
		return "", store.ErrUnavailable
	}
	if collection == store.Movements && s.failMovementsFor != "" {
		if m, ok := doc.(models.StockMovement); ok && m.ProductID == s.failMovementsFor {
			return "", store.ErrUnavailable
		}
	}
	return s.MemoryStore.Create(ctx, collection, doc)
}

func (s *faultStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	if collection == store.Products && id == s.failUpdateFor {
		return store.ErrUnavailable
	}
	return s.MemoryStore.Update(ctx, collection, id, patch)
}

type rig struct {
	store *faultStore
	queue *queue.Queue
	orch  *Orchestrator
}

func newRig(t *testing.T, mode models.Mode) *rig {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	st := &faultStore{MemoryStore: store.NewMemoryStore()}
	dir := t.TempDir()
	sf, err := settings.Load(filepath.Join(dir, "settings.json"))
	require.NoError(t, err)
	require.NoError(t, sf.Set(func(s *settings.Settings) {
		s.StoreName = "Test Store"
		s.VATNumber = "BE0123456789"
	}))
	q, err := queue.Open(filepath.Join(dir, "pending.json"))
	require.NoError(t, err)

	lg := ledger.New(st, fixedMode(mode), events.NewBus(), log, "PS-TEST")
	o := New(st, lg, q, fixedMode(mode), sf, log, "PS-TEST")
	o.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	counter := 0
	o.receiptFn = func(time.Time) string {
		counter++
		return "BE" + strconv.Itoa(100000+counter)
	}
	return &rig{store: st, queue: q, orch: o}
}

func (r *rig) seed(t *testing.T, p models.Product) {
	t.Helper()
	_, err := r.store.Create(context.Background(), store.Products, p)
	require.NoError(t, err)
}

func price(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func cartLine(p models.Product, qty int) models.CartItem {
	return models.CartItem{Product: p, Quantity: qty}
}

func TestFinalizeCheckoutEmptyCart(t *testing.T) {
	r := newRig(t, models.ModeOnline)
	outcome, err := r.orch.FinalizeCheckout(context.Background(), Request{})
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, StatusAborted, outcome.Status)

	var sales []models.Sale
	require.NoError(t, r.store.List(context.Background(), store.Sales, nil, &sales))
	assert.Empty(t, sales, "validation failures must leave no trace")
}

func TestFinalizeCheckoutInsufficientStock(t *testing.T) {
	r := newRig(t, models.ModeOnline)
	p := models.Product{ID: "p1", Name: "Cola", Price: price("2.50"), VATRate: 6, Stock: 1}
	r.seed(t, p)

	_, err := r.orch.FinalizeCheckout(context.Background(), Request{
		Items: []models.CartItem{cartLine(p, 3)}, PaymentMethod: "cash",
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var got models.Product
	require.NoError(t, r.store.Get(context.Background(), store.Products, "p1", &got))
	assert.Equal(t, 1, got.Stock)
}

func TestFinalizeCheckoutUsesFreshStockOnline(t *testing.T) {
	r := newRig(t, models.ModeOnline)
	// Stale cart snapshot claims stock 10, store says 1.
	r.seed(t, models.Product{ID: "p1", Name: "Cola", Price: price("2.50"), VATRate: 6, Stock: 1})
	stale := models.Product{ID: "p1", Name: "Cola", Price: price("2.50"), VATRate: 6, Stock: 10}

	_, err := r.orch.FinalizeCheckout(context.Background(), Request{
		Items: []models.CartItem{cartLine(stale, 3)}, PaymentMethod: "cash",
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestFinalizeCheckoutSettled(t *testing.T) {
	r := newRig(t, models.ModeOnline)
	beer := models.Product{ID: "p1", Name: "Beer", Price: price("10.00"), VATRate: 21, Stock: 5}
	bread := models.Product{ID: "p2", Name: "Bread", Price: price("5.00"), VATRate: 6, Stock: 3}
	r.seed(t, beer)
	r.seed(t, bread)

	outcome, err := r.orch.FinalizeCheckout(context.Background(), Request{
		Items:          []models.CartItem{cartLine(beer, 2), cartLine(bread, 1)},
		PaymentMethod:  "cash",
		AmountReceived: price("50.00"),
		EmployeeID:     "e1",
		LoyaltyCard:    &models.LoyaltyCard{ID: "c1", Number: "L-1", Points: 3500, Tier: "gold"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, outcome.Status)
	assert.False(t, outcome.Deferred)
	require.NotNil(t, outcome.Receipt)

	sale := outcome.Receipt.Sale
	assert.Equal(t, "BE100001", sale.ReceiptNumber)
	assert.True(t, sale.Subtotal.Equal(price("25.00")), "subtotal %s", sale.Subtotal)
	// Gold tier: 15% off.
	assert.True(t, sale.Total.Equal(price("21.25")), "total %s", sale.Total)
	assert.True(t, sale.Change.Equal(price("28.75")), "change %s", sale.Change)
	assert.Equal(t, 21, sale.PointsEarned)
	assert.Contains(t, sale.VATAmounts, "21")
	assert.Contains(t, sale.VATAmounts, "6")
	assert.Equal(t, "Test Store", outcome.Receipt.BusinessName)
	assert.Equal(t, "BE0123456789", outcome.Receipt.VATNumber)

	// Stock decremented and each decrement is on the ledger with the
	// receipt number as reference.
	var got models.Product
	require.NoError(t, r.store.Get(context.Background(), store.Products, "p1", &got))
	assert.Equal(t, 3, got.Stock)
	require.NoError(t, r.store.Get(context.Background(), store.Products, "p2", &got))
	assert.Equal(t, 2, got.Stock)

	var movements []models.StockMovement
	filter := map[string]any{"reference": sale.ReceiptNumber}
	require.NoError(t, r.store.List(context.Background(), store.Movements, filter, &movements))
	assert.Len(t, movements, 2)
	for _, m := range movements {
		assert.Equal(t, models.MovementSale, m.Type)
	}
}

func TestFinalizeCheckoutPartialSettlement(t *testing.T) {
	r := newRig(t, models.ModeOnline)
	a := models.Product{ID: "pa", Name: "A", Price: price("1.00"), VATRate: 6, Stock: 10}
	b := models.Product{ID: "pb", Name: "B", Price: price("1.00"), VATRate: 6, Stock: 10}
	r.seed(t, a)
	r.seed(t, b)
	r.store.failUpdateFor = "pb"

	outcome, err := r.orch.FinalizeCheckout(context.Background(), Request{
		Items:          []models.CartItem{cartLine(a, 1), cartLine(b, 1)},
		PaymentMethod:  "card",
		AmountReceived: price("2.00"),
	})
	require.NoError(t, err, "a committed sale is never rolled back")
	assert.Equal(t, StatusPartiallySettled, outcome.Status)
	assert.Equal(t, []string{"pb"}, outcome.FailedProducts)
	require.NotNil(t, outcome.Receipt)

	// Sale persisted, A decremented, B untouched.
	var sales []models.Sale
	require.NoError(t, r.store.List(context.Background(), store.Sales, nil, &sales))
	require.Len(t, sales, 1)
	var got models.Product
	require.NoError(t, r.store.Get(context.Background(), store.Products, "pa", &got))
	assert.Equal(t, 9, got.Stock)
	require.NoError(t, r.store.Get(context.Background(), store.Products, "pb", &got))
	assert.Equal(t, 10, got.Stock)

	// The missed decrement is queued as reconciliation debt.
	assert.Equal(t, 1, r.queue.Pending())
}

func TestFinalizeCheckoutMergesDuplicateCartLines(t *testing.T) {
	r := newRig(t, models.ModeOnline)
	p := models.Product{ID: "p1", Name: "Cola", Price: price("1.00"), VATRate: 6, Stock: 10}
	r.seed(t, p)

	// Two lines for the same product must decrement once, by the
	// combined quantity.
	outcome, err := r.orch.FinalizeCheckout(context.Background(), Request{
		Items:          []models.CartItem{cartLine(p, 2), cartLine(p, 3)},
		PaymentMethod:  "cash",
		AmountReceived: price("5.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, outcome.Status)
	assert.Empty(t, outcome.FailedProducts)

	sale := outcome.Receipt.Sale
	assert.True(t, sale.Subtotal.Equal(price("5.00")), "subtotal %s", sale.Subtotal)
	require.Len(t, sale.Items, 1)
	assert.Equal(t, 5, sale.Items[0].Quantity)

	var got models.Product
	require.NoError(t, r.store.Get(context.Background(), store.Products, "p1", &got))
	assert.Equal(t, 5, got.Stock, "both lines must be deducted")

	var movements []models.StockMovement
	require.NoError(t, r.store.List(context.Background(), store.Movements, nil, &movements))
	require.Len(t, movements, 1)
	assert.Equal(t, -5, movements[0].Quantity)
}

func TestFinalizeCheckoutMergedQuantityExceedsStock(t *testing.T) {
	r := newRig(t, models.ModeOnline)
	p := models.Product{ID: "p1", Name: "Cola", Price: price("1.00"), VATRate: 6, Stock: 10}
	r.seed(t, p)

	// Each line fits on its own; together they oversell.
	_, err := r.orch.FinalizeCheckout(context.Background(), Request{
		Items:         []models.CartItem{cartLine(p, 6), cartLine(p, 5)},
		PaymentMethod: "cash",
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestReplayedDecrementRewritesSameStock(t *testing.T) {
	r := newRig(t, models.ModeOnline)
	p := models.Product{ID: "p1", Name: "Cola", Price: price("1.00"), VATRate: 6, Stock: 10}
	r.seed(t, p)

	// Stock write lands, movement write keeps failing: the decrement is
	// applied but unrecorded, and the adjustment becomes queued debt.
	r.store.failMovementsFor = "p1"
	outcome, err := r.orch.FinalizeCheckout(context.Background(), Request{
		Items:          []models.CartItem{cartLine(p, 2)},
		PaymentMethod:  "cash",
		AmountReceived: price("2.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallySettled, outcome.Status)
	var got models.Product
	require.NoError(t, r.store.Get(context.Background(), store.Products, "p1", &got))
	require.Equal(t, 8, got.Stock)
	require.Equal(t, 1, r.queue.Pending())

	// On sync the replay must rewrite the same stock value, not
	// decrement again from a re-read.
	r.store.failMovementsFor = ""
	remaining, err := r.queue.Replay(context.Background(), r.orch.ReplayOperation)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	require.NoError(t, r.store.Get(context.Background(), store.Products, "p1", &got))
	assert.Equal(t, 8, got.Stock, "2 units sold once must decrement stock by exactly 2")
	var movements []models.StockMovement
	require.NoError(t, r.store.List(context.Background(), store.Movements, nil, &movements))
	require.Len(t, movements, 1)
	assert.Equal(t, 10, movements[0].PreviousStock)
	assert.Equal(t, 8, movements[0].NewStock)
}

func TestFinalizeCheckoutAbortsWhenSaleWriteFails(t *testing.T) {
	r := newRig(t, models.ModeOnline)
	p := models.Product{ID: "p1", Name: "Cola", Price: price("2.50"), VATRate: 6, Stock: 5}
	r.seed(t, p)
	r.store.failSaleCreate = true

	outcome, err := r.orch.FinalizeCheckout(context.Background(), Request{
		Items: []models.CartItem{cartLine(p, 2)}, PaymentMethod: "cash", AmountReceived: price("5.00"),
	})
	require.Error(t, err)
	assert.Equal(t, StatusAborted, outcome.Status)
	assert.Nil(t, outcome.Receipt)

	// No decrement happened before the sale committed.
	var got models.Product
	require.NoError(t, r.store.Get(context.Background(), store.Products, "p1", &got))
	assert.Equal(t, 5, got.Stock)
	var movements []models.StockMovement
	require.NoError(t, r.store.List(context.Background(), store.Movements, nil, &movements))
	assert.Empty(t, movements)
}

func TestFinalizeCheckoutRegeneratesCollidingReceipt(t *testing.T) {
	r := newRig(t, models.ModeOnline)
	p := models.Product{ID: "p1", Name: "Cola", Price: price("2.50"), VATRate: 6, Stock: 5}
	r.seed(t, p)
	// First candidate from the stubbed generator is already taken.
	_, err := r.store.Create(context.Background(), store.Sales, models.Sale{ReceiptNumber: "BE100001"})
	require.NoError(t, err)

	outcome, err := r.orch.FinalizeCheckout(context.Background(), Request{
		Items: []models.CartItem{cartLine(p, 1)}, PaymentMethod: "cash", AmountReceived: price("2.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "BE100002", outcome.Receipt.Sale.ReceiptNumber)
}

func TestFinalizeCheckoutGivesUpAfterRepeatedCollisions(t *testing.T) {
	r := newRig(t, models.ModeOnline)
	p := models.Product{ID: "p1", Name: "Cola", Price: price("2.50"), VATRate: 6, Stock: 5}
	r.seed(t, p)
	r.orch.receiptFn = func(time.Time) string { return "BE999999" }
	_, err := r.store.Create(context.Background(), store.Sales, models.Sale{ReceiptNumber: "BE999999"})
	require.NoError(t, err)

	_, err = r.orch.FinalizeCheckout(context.Background(), Request{
		Items: []models.CartItem{cartLine(p, 1)}, PaymentMethod: "cash", AmountReceived: price("2.50"),
	})
	require.ErrorIs(t, err, ErrDuplicateReceipt)
}

func TestFinalizeCheckoutDefersOffline(t *testing.T) {
	r := newRig(t, models.ModeOffline)
	p := models.Product{ID: "p1", Name: "Cola", Price: price("2.50"), VATRate: 6, Stock: 5}

	// Offline there is no store to consult: the cart snapshot prices the
	// sale and everything lands in the durable queue.
	outcome, err := r.orch.FinalizeCheckout(context.Background(), Request{
		Items: []models.CartItem{cartLine(p, 2)}, PaymentMethod: "cash", AmountReceived: price("5.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, outcome.Status)
	assert.True(t, outcome.Deferred)
	require.NotNil(t, outcome.Receipt)
	assert.Equal(t, 2, r.queue.Pending(), "one sale create plus one decrement")

	var sales []models.Sale
	require.NoError(t, r.store.List(context.Background(), store.Sales, nil, &sales))
	assert.Empty(t, sales, "nothing written remotely while offline")
}

func TestReplayOperationIsIdempotent(t *testing.T) {
	offline := newRig(t, models.ModeOffline)
	p := models.Product{ID: "p1", Name: "Cola", Price: price("2.50"), VATRate: 6, Stock: 5}

	_, err := offline.orch.FinalizeCheckout(context.Background(), Request{
		Items: []models.CartItem{cartLine(p, 2)}, PaymentMethod: "cash", AmountReceived: price("5.00"),
	})
	require.NoError(t, err)

	// Bring the same queue online against a store that has the product.
	online := newRig(t, models.ModeOnline)
	online.seed(t, p)

	replayAll := func() {
		for _, op := range snapshotOps(t, offline.queue) {
			require.NoError(t, online.orch.ReplayOperation(context.Background(), op))
		}
	}
	replayAll()
	replayAll() // second pass must be a no-op

	var sales []models.Sale
	require.NoError(t, online.store.List(context.Background(), store.Sales, nil, &sales))
	assert.Len(t, sales, 1)
	var got models.Product
	require.NoError(t, online.store.Get(context.Background(), store.Products, "p1", &got))
	assert.Equal(t, 3, got.Stock, "replaying twice decrements once")
	var movements []models.StockMovement
	require.NoError(t, online.store.List(context.Background(), store.Movements, nil, &movements))
	assert.Len(t, movements, 1)
}

func TestGenerateReceiptNumberFormat(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	millis := strconv.FormatInt(now.UnixMilli(), 10)
	for i := 0; i < 20; i++ {
		n := GenerateReceiptNumber(now)
		assert.Len(t, n, 11)
		assert.Equal(t, "BE", n[:2])
		assert.Equal(t, millis[len(millis)-6:], n[2:8])
		_, err := strconv.Atoi(n[8:])
		assert.NoError(t, err, "suffix must be three digits: %s", n)
	}
}

// snapshotOps drains the queue's pending operations through Replay
// without confirming them, so the caller can apply them by hand.
func snapshotOps(t *testing.T, q *queue.Queue) []queue.Operation {
	t.Helper()
	var ops []queue.Operation
	_, err := q.Replay(context.Background(), func(_ context.Context, op queue.Operation) error {
		ops = append(ops, op)
		return context.Canceled // keep the op queued
	})
	require.Error(t, err)
	return ops
}
