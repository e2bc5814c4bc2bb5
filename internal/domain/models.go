package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog record. QuantityOnHand tracks current stock, but the
// inventory log is the source of truth: every change to it goes through a log
// entry written in the same transaction.
type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Price          decimal.Decimal `json:"price"`
	Cost           decimal.Decimal `json:"cost"`
	TaxRatePercent float64         `json:"tax_rate_percent"`
	QuantityOnHand int             `json:"quantity_on_hand"`
	ReorderLevel   int             `json:"reorder_level"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Price          decimal.Decimal `json:"price"`
	Cost           decimal.Decimal `json:"cost"`
	TaxRatePercent float64         `json:"tax_rate_percent"`
	ReorderLevel   int             `json:"reorder_level"`
	InitialStock   int             `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name           *string          `json:"name,omitempty"`
	Category       *string          `json:"category,omitempty"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	Cost           *decimal.Decimal `json:"cost,omitempty"`
	TaxRatePercent *float64         `json:"tax_rate_percent,omitempty"`
	ReorderLevel   *int             `json:"reorder_level,omitempty"`
	Active         *bool            `json:"active,omitempty"`
}

// CartLine is client-supplied and ephemeral. UnitPrice and TaxRatePercent are
// the client's display snapshot; checkout revalidates every line against the
// live catalog and never trusts these fields for pricing or availability.
type CartLine struct {
	ProductID      string          `json:"product_id"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price,omitempty"`
	TaxRatePercent float64         `json:"tax_rate_percent,omitempty"`
}

type Order struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"order_number"`
	PrincipalID   string          `json:"principal_id"`
	Status        string          `json:"status"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Lines         []OrderLine     `json:"lines"`
}

// OrderLine snapshots unit price and tax rate at time of sale. The snapshot is
// immutable afterwards and does not track later catalog edits.
type OrderLine struct {
	ProductID      string          `json:"product_id"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TaxRatePercent float64         `json:"tax_rate_percent"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

// InventoryLogEntry records a single stock-affecting event. The log is
// append-only: entries are never updated or deleted.
type InventoryLogEntry struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"product_id"`
	Type           string    `json:"transaction_type"`
	QuantityChange int       `json:"quantity_change"`
	OrderID        string    `json:"order_id,omitempty"`
	PrincipalID    string    `json:"principal_id"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type CheckoutRequest struct {
	Lines         []CartLine `json:"lines"`
	PaymentMethod string     `json:"payment_method"`
	Notes         string     `json:"notes,omitempty"`
}

type CancelOrderRequest struct {
	Reason     string `json:"reason,omitempty"`
	ManagerPIN string `json:"manager_pin"`
}

type StockInRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes,omitempty"`
}

type StockAdjustmentRequest struct {
	ProductID      string `json:"product_id"`
	QuantityChange int    `json:"quantity_change"`
	Notes          string `json:"notes,omitempty"`
}

// LedgerReconciliation compares a product's quantity on hand against the sum
// of its inventory log entries. The two must always agree.
type LedgerReconciliation struct {
	ProductID      string `json:"product_id"`
	QuantityOnHand int    `json:"quantity_on_hand"`
	LedgerSum      int    `json:"ledger_sum"`
	Consistent     bool   `json:"consistent"`
}

type InventoryValueReport struct {
	TotalValue  decimal.Decimal `json:"total_value"`
	GeneratedAt time.Time       `json:"generated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated principal performing an action. Username doubles
// as the principal id recorded on orders and inventory log entries.
type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

const (
	PaymentCash   = "cash"
	PaymentCard   = "card"
	PaymentMobile = "mobile"
)

const (
	LedgerSale       = "sale"
	LedgerStockIn    = "stock_in"
	LedgerAdjustment = "adjustment"
	LedgerReturn     = "return"
)
