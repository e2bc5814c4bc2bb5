package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
)

// Store is an in-memory Repository used for dev mode and tests. One mutex
// guards every method, so CreateOrder and CancelOrder are trivially atomic:
// validation and mutation happen under the same critical section.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	ledger          []domain.InventoryLogEntry
	ordersByID      map[string]*domain.Order
	ordersByNumber  map[string]*domain.Order
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "PRD-MIE-01", Name: "Mie Goreng Instan", Category: "grocery", Price: dec("3500"), Cost: dec("2700"), TaxRatePercent: 11, ReorderLevel: 20, Active: true},
		{ID: "PRD-TELUR-01", Name: "Telur 10 Butir", Category: "grocery", Price: dec("26500"), Cost: dec("23000"), TaxRatePercent: 0, ReorderLevel: 15, Active: true},
		{ID: "PRD-SUSU-01", Name: "Susu UHT 1L", Category: "dairy", Price: dec("18900"), Cost: dec("13600"), TaxRatePercent: 11, ReorderLevel: 12, Active: true},
		{ID: "PRD-ROTI-01", Name: "Roti Tawar", Category: "bakery", Price: dec("17800"), Cost: dec("12500"), TaxRatePercent: 11, ReorderLevel: 10, Active: true},
		{ID: "PRD-KOPI-01", Name: "Kopi Sachet", Category: "beverage", Price: dec("2600"), Cost: dec("1700"), TaxRatePercent: 11, ReorderLevel: 40, Active: true},
		{ID: "PRD-GULA-01", Name: "Gula 1kg", Category: "grocery", Price: dec("17400"), Cost: dec("15300"), TaxRatePercent: 0, ReorderLevel: 15, Active: true},
		{ID: "PRD-TEH-01", Name: "Teh Celup", Category: "beverage", Price: dec("9800"), Cost: dec("7300"), TaxRatePercent: 11, ReorderLevel: 20, Active: true},
		{ID: "PRD-AIR-01", Name: "Air Mineral 600ml", Category: "beverage", Price: dec("3900"), Cost: dec("3200"), TaxRatePercent: 11, ReorderLevel: 48, Active: true},
		{ID: "PRD-KERIPIK-01", Name: "Keripik Singkong", Category: "snack", Price: dec("12800"), Cost: dec("8100"), TaxRatePercent: 11, ReorderLevel: 18, Active: true},
		{ID: "PRD-COKLAT-01", Name: "Coklat Batang", Category: "snack", Price: dec("8600"), Cost: dec("5600"), TaxRatePercent: 11, ReorderLevel: 24, Active: true},
		{ID: "PRD-SABUN-01", Name: "Sabun Mandi", Category: "household", Price: dec("7400"), Cost: dec("5000"), TaxRatePercent: 11, ReorderLevel: 12, Active: true},
		{ID: "PRD-SHAMPOO-01", Name: "Shampoo Sachet", Category: "household", Price: dec("3200"), Cost: dec("2100"), TaxRatePercent: 11, ReorderLevel: 30, Active: true},
	}

	s := &Store{
		products:        make(map[string]domain.Product, len(products)),
		ledger:          make([]domain.InventoryLogEntry, 0, 256),
		ordersByID:      make(map[string]*domain.Order),
		ordersByNumber:  make(map[string]*domain.Order),
		usersByUsername: seedUsers(),
	}

	// Seed stock through the ledger rather than writing quantities directly,
	// so the log sum matches quantity on hand from the first request.
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
		s.appendEntryLocked(domain.InventoryLogEntry{
			ID:             uuid.NewString(),
			ProductID:      p.ID,
			Type:           domain.LedgerStockIn,
			QuantityChange: 120,
			PrincipalID:    "system",
			Notes:          "initial seed stock",
			CreatedAt:      now,
		})
	}

	return s
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// appendEntryLocked applies a ledger entry to its product and records it.
// Callers hold s.mu and have already validated the product and the resulting
// quantity.
func (s *Store) appendEntryLocked(entry domain.InventoryLogEntry) {
	p := s.products[entry.ProductID]
	p.QuantityOnHand += entry.QuantityChange
	p.UpdatedAt = entry.CreatedAt
	s.products[entry.ProductID] = p
	s.ledger = append(s.ledger, entry)
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.Active {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, initialEntry *domain.InventoryLogEntry) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.Category == "" || !product.Price.IsPositive() {
		return nil, store.ErrConstraintViolation
	}
	if product.Cost.IsNegative() || product.TaxRatePercent < 0 || product.TaxRatePercent > 100 || product.ReorderLevel < 0 {
		return nil, store.ErrConstraintViolation
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConstraintViolation
	}

	now := time.Now().UTC()
	product.Active = true
	product.QuantityOnHand = 0
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product

	if initialEntry != nil {
		if initialEntry.QuantityChange < 0 {
			return nil, store.ErrConstraintViolation
		}
		entry := *initialEntry
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		entry.ProductID = product.ID
		s.appendEntryLocked(entry)
	}

	created := s.products[product.ID]
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.Category == "" || !product.Price.IsPositive() {
		return nil, store.ErrConstraintViolation
	}
	if product.Cost.IsNegative() || product.TaxRatePercent < 0 || product.TaxRatePercent > 100 || product.ReorderLevel < 0 {
		return nil, store.ErrConstraintViolation
	}
	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}

	// Quantity on hand is owned by the ledger, not by catalog edits.
	product.QuantityOnHand = existing.QuantityOnHand
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, 8)
	for _, p := range s.products {
		if !p.Active || p.QuantityOnHand > p.ReorderLevel {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.QuantityOnHand == b.QuantityOnHand {
			return cmpString(a.ID, b.ID)
		}
		if a.QuantityOnHand < b.QuantityOnHand {
			return -1
		}
		return 1
	})
	return products, nil
}

func (s *Store) RecordInventoryEntry(_ context.Context, entry domain.InventoryLogEntry) (*domain.InventoryLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ProductID == "" || entry.QuantityChange == 0 {
		return nil, store.ErrConstraintViolation
	}
	switch entry.Type {
	case domain.LedgerSale, domain.LedgerStockIn, domain.LedgerAdjustment, domain.LedgerReturn:
	default:
		return nil, store.ErrConstraintViolation
	}

	product, exists := s.products[entry.ProductID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.QuantityOnHand+entry.QuantityChange < 0 {
		return nil, store.ErrInsufficientStock
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.appendEntryLocked(entry)
	created := entry
	return &created, nil
}

func (s *Store) ListInventoryLog(_ context.Context, productID string, limit int) ([]domain.InventoryLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	result := make([]domain.InventoryLogEntry, 0, limit)
	for _, entry := range s.ledger {
		if productID != "" && entry.ProductID != productID {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.InventoryLogEntry) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) LedgerQuantitySum(_ context.Context, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.products[productID]; !exists {
		return 0, store.ErrNotFound
	}
	sum := 0
	for _, entry := range s.ledger {
		if entry.ProductID == productID {
			sum += entry.QuantityChange
		}
	}
	return sum, nil
}

func (s *Store) InventoryValue(_ context.Context) (domain.InventoryValueReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, p := range s.products {
		if !p.Active || p.QuantityOnHand < 1 {
			continue
		}
		total = total.Add(p.Cost.Mul(decimal.NewFromInt(int64(p.QuantityOnHand))))
	}
	return domain.InventoryValueReport{
		TotalValue:  total.Round(2),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order, entries []domain.InventoryLogEntry) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.OrderNumber == "" || len(order.Lines) == 0 {
		return nil, store.ErrConstraintViolation
	}
	if _, exists := s.ordersByNumber[order.OrderNumber]; exists {
		return nil, store.ErrDuplicateOrderNumber
	}

	// Validate every decrement before applying any, so a failing line leaves
	// no partial writes behind. Deltas are accumulated per product in case the
	// cart carries the same product on more than one line.
	pending := make(map[string]int, len(entries))
	for _, entry := range entries {
		product, exists := s.products[entry.ProductID]
		if !exists || !product.Active {
			return nil, store.ErrNotFound
		}
		pending[entry.ProductID] += entry.QuantityChange
		if product.QuantityOnHand+pending[entry.ProductID] < 0 {
			return nil, store.ErrInsufficientStock
		}
	}

	now := time.Now().UTC()
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt
	if order.Status == "" {
		order.Status = domain.OrderStatusCompleted
	}

	for _, entry := range entries {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = order.CreatedAt
		}
		entry.OrderID = order.ID
		s.appendEntryLocked(entry)
	}

	orderCopy := cloneOrder(&order)
	s.ordersByID[order.ID] = orderCopy
	s.ordersByNumber[order.OrderNumber] = orderCopy

	return cloneOrder(orderCopy), nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) GetOrderByNumber(_ context.Context, orderNumber string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByNumber[orderNumber]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) ListOrders(_ context.Context, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listOrdersLocked(limit, func(*domain.Order) bool { return true }), nil
}

func (s *Store) ListOrdersByPrincipal(_ context.Context, principalID string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listOrdersLocked(limit, func(o *domain.Order) bool {
		return o.PrincipalID == principalID
	}), nil
}

func (s *Store) ListOrdersByDateRange(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listOrdersLocked(limit, func(o *domain.Order) bool {
		return !o.CreatedAt.Before(from) && o.CreatedAt.Before(to)
	}), nil
}

func (s *Store) listOrdersLocked(limit int, keep func(*domain.Order) bool) []domain.Order {
	if limit < 1 {
		limit = 100
	}
	result := make([]domain.Order, 0, limit)
	for _, order := range s.ordersByID {
		// Listings show completed orders only; cancelled orders stay
		// reachable by id.
		if order.Status != domain.OrderStatusCompleted || !keep(order) {
			continue
		}
		result = append(result, *cloneOrder(order))
	}
	slices.SortFunc(result, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (s *Store) CancelOrder(_ context.Context, id string, reason string, principalID string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.OrderStatusCompleted {
		return nil, store.ErrInvalidTransition
	}

	for _, line := range order.Lines {
		s.appendEntryLocked(domain.InventoryLogEntry{
			ID:             uuid.NewString(),
			ProductID:      line.ProductID,
			Type:           domain.LedgerReturn,
			QuantityChange: line.Quantity,
			OrderID:        order.ID,
			PrincipalID:    principalID,
			Notes:          "cancellation reversal: " + reason,
			CreatedAt:      at,
		})
	}

	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = at
	if reason != "" {
		if order.Notes != "" {
			order.Notes += "; "
		}
		order.Notes += "cancelled: " + reason
	}

	return cloneOrder(order), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" || user.Role == "" {
		return store.ErrConstraintViolation
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConstraintViolation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrConstraintViolation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneOrder(src *domain.Order) *domain.Order {
	if src == nil {
		return nil
	}
	dup := *src
	lines := make([]domain.OrderLine, len(src.Lines))
	copy(lines, src.Lines)
	dup.Lines = lines
	return &dup
}
