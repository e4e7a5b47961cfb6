package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Employee - The person operating the terminal. The hash travels with
// the stored document; handlers never echo the employee record itself.
type Employee struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         string    `json:"role"` // 'admin', 'manager', 'cashier'
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// PromotionKind is one of the three supported promotion mechanics.
type PromotionKind string

const (
	PromotionPercentage PromotionKind = "percentage"
	PromotionFixed      PromotionKind = "fixed"
	PromotionBuyXGetY   PromotionKind = "buyXgetY"
)

// Promotion is embedded on a Product (0-or-1). Active iff
// now is within [StartDate, EndDate] inclusive.
type Promotion struct {
	Kind            PromotionKind   `json:"kind"`
	Value           decimal.Decimal `json:"value"`
	BuyQuantity     int             `json:"buy_quantity,omitempty"`
	GetFreeQuantity int             `json:"get_free_quantity,omitempty"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
}

// Product - The Inventory. Stock is mutated only through the ledger,
// never written directly by handlers.
type Product struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	VATRate           int             `json:"vat_rate"` // 6, 12 or 21 (VAT-inclusive prices)
	Category          string          `json:"category"`
	Barcode           string          `json:"barcode,omitempty"`
	Stock             int             `json:"stock"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	Promotion         *Promotion      `json:"promotion,omitempty"`
}

// CartItem - one line of an in-progress checkout. The product is a
// snapshot taken at selection time; it is discarded after the sale.
type CartItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Sale - The Transaction Header. Immutable once created.
type Sale struct {
	ID             string                     `json:"id"`
	Items          []CartItem                 `json:"items"`
	Subtotal       decimal.Decimal            `json:"subtotal"`
	Total          decimal.Decimal            `json:"total"`
	Timestamp      time.Time                  `json:"timestamp"`
	PaymentMethod  string                     `json:"payment_method"` // 'cash', 'card'
	ReceiptNumber  string                     `json:"receipt_number"`
	AmountReceived decimal.Decimal            `json:"amount_received"`
	Change         decimal.Decimal            `json:"change"`
	EmployeeID     string                     `json:"employee_id"`
	TerminalID     string                     `json:"terminal_id,omitempty"`
	VATAmounts     map[string]decimal.Decimal `json:"vat_amounts"` // keyed by rate, e.g. "21"
	LoyaltyCard    *LoyaltyCard               `json:"loyalty_card,omitempty"`
	PointsEarned   int                        `json:"points_earned,omitempty"`
}

// MovementType classifies a stock delta.
type MovementType string

const (
	MovementSale       MovementType = "sale"
	MovementAdjustment MovementType = "adjustment"
)

// StockMovement - append-only audit record of one stock delta.
// Never updated or deleted. Reference links a 'sale' movement back
// to the receipt number that caused it.
type StockMovement struct {
	ID            string       `json:"id"`
	ProductID     string       `json:"product_id"`
	Quantity      int          `json:"quantity"` // signed delta
	Type          MovementType `json:"type"`
	Reason        string       `json:"reason"`
	EmployeeID    string       `json:"employee_id"`
	Reference     string       `json:"reference,omitempty"`
	PreviousStock int          `json:"previous_stock"`
	NewStock      int          `json:"new_stock"`
	TerminalID    string       `json:"terminal_id,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// LoyaltyCard identifies a customer in the loyalty program.
type LoyaltyCard struct {
	ID           string    `json:"id"`
	Number       string    `json:"number"`
	CustomerName string    `json:"customer_name"`
	Points       int       `json:"points"`
	Tier         string    `json:"tier"`
	CreatedAt    time.Time `json:"created_at"`
}

// LoyaltyTier grants a discount percentage and a points multiplier.
type LoyaltyTier struct {
	Name               string          `json:"name"`
	MinimumPoints      int             `json:"minimum_points"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	PointsMultiplier   decimal.Decimal `json:"points_multiplier"`
}

// Mode is the connectivity state gating remote operations.
type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// ConnectivityState is the one piece of process-wide mutable state.
// It is owned by the connectivity monitor; everyone else reads a copy.
type ConnectivityState struct {
	Mode           Mode `json:"mode"`
	ManualOverride bool `json:"manual_override"`
	PendingCount   int  `json:"pending_count"`
}

// Receipt is what the checkout hands back to the caller once the
// sale is committed: the sale plus the store header from settings.
type Receipt struct {
	Sale         Sale   `json:"sale"`
	BusinessName string `json:"business_name"`
	Address      string `json:"address"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	VATNumber    string `json:"vat_number"`
}
