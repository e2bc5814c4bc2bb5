package store

import (
	"context"
	"errors"
	"time"

	"warungpos/backend/internal/domain"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrConstraintViolation  = errors.New("constraint violation")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
	ErrInvalidRequest       = errors.New("invalid request")
)

// Repository is the persistence contract. CreateOrder and CancelOrder are
// atomic: the order write, its lines, the stock mutation, and the inventory
// log entries commit together or not at all.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product, initialEntry *domain.InventoryLogEntry) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)

	// RecordInventoryEntry appends a ledger entry and applies its quantity
	// change to the product, rejecting with ErrInsufficientStock when the
	// change would drive quantity on hand negative.
	RecordInventoryEntry(ctx context.Context, entry domain.InventoryLogEntry) (*domain.InventoryLogEntry, error)
	ListInventoryLog(ctx context.Context, productID string, limit int) ([]domain.InventoryLogEntry, error)
	LedgerQuantitySum(ctx context.Context, productID string) (int, error)
	InventoryValue(ctx context.Context) (domain.InventoryValueReport, error)

	// CreateOrder persists the order with its lines, conditionally decrements
	// stock for every line, and appends one sale entry per line. Any line
	// whose decrement would fail aborts the whole order.
	CreateOrder(ctx context.Context, order domain.Order, entries []domain.InventoryLogEntry) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	ListOrders(ctx context.Context, limit int) ([]domain.Order, error)
	ListOrdersByPrincipal(ctx context.Context, principalID string, limit int) ([]domain.Order, error)
	ListOrdersByDateRange(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Order, error)

	// CancelOrder flips a completed order to cancelled, restores stock, and
	// appends one return entry per line. Non-completed orders fail with
	// ErrInvalidTransition.
	CancelOrder(ctx context.Context, id string, reason string, principalID string, at time.Time) (*domain.Order, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
