package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"warungpos/backend/internal/cache"
	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/ordernum"
	"warungpos/backend/internal/store"
)

const (
	catalogCacheKey  = "catalog:active"
	orderNumberTries = 3
)

var (
	ErrEmptyCart = errors.New("cart has no lines")

	// ErrAdminRequired marks operations reserved for the admin role.
	ErrAdminRequired = errors.New("admin role required")
)

// ProductNotFoundError identifies which cart line referenced a product the
// catalog does not carry.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InsufficientStockError reports the product whose available quantity cannot
// cover the requested amount.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// PersistenceError wraps a storage failure that the caller cannot repair by
// changing the request.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo              store.Repository
	catalog           cache.ProductCache
	logger            *zap.Logger
	orderNumberPrefix string
	catalogTTL        time.Duration
}

func New(repo store.Repository, catalog cache.ProductCache, logger *zap.Logger, orderNumberPrefix string, catalogTTL time.Duration) *Service {
	if catalog == nil {
		catalog = cache.NoopProductCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if orderNumberPrefix == "" {
		orderNumberPrefix = "POS"
	}
	if catalogTTL <= 0 {
		catalogTTL = 30 * time.Second
	}

	return &Service{
		repo:              repo,
		catalog:           catalog,
		logger:            logger,
		orderNumberPrefix: orderNumberPrefix,
		catalogTTL:        catalogTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if cached, hit, err := s.catalog.Get(ctx, catalogCacheKey); err == nil && hit {
		return cached, nil
	} else if err != nil {
		s.logger.Warn("catalog cache read failed", zap.Error(err))
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.Set(ctx, catalogCacheKey, products, s.catalogTTL); err != nil {
		s.logger.Warn("catalog cache write failed", zap.Error(err))
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrConstraintViolation
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Product{}, &ProductNotFoundError{ProductID: id}
		}
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, ErrAdminRequired
	}

	req.ID = strings.ToUpper(strings.TrimSpace(req.ID))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	if req.ID == "" || req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrConstraintViolation
	}
	if !req.Price.IsPositive() || req.Cost.IsNegative() || req.InitialStock < 0 || req.ReorderLevel < 0 {
		return domain.Product{}, store.ErrConstraintViolation
	}
	if req.TaxRatePercent < 0 || req.TaxRatePercent > 100 {
		return domain.Product{}, store.ErrConstraintViolation
	}

	product := domain.Product{
		ID:             req.ID,
		Name:           req.Name,
		Category:       req.Category,
		Price:          req.Price.Round(2),
		Cost:           req.Cost.Round(2),
		TaxRatePercent: req.TaxRatePercent,
		ReorderLevel:   req.ReorderLevel,
		Active:         true,
	}

	var initialEntry *domain.InventoryLogEntry
	if req.InitialStock > 0 {
		initialEntry = &domain.InventoryLogEntry{
			Type:           domain.LedgerStockIn,
			QuantityChange: req.InitialStock,
			PrincipalID:    actor.Username,
			Notes:          "initial stock",
		}
	}

	created, err := s.repo.CreateProduct(ctx, product, initialEntry)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("product created",
		zap.String("product_id", created.ID),
		zap.String("actor", actor.Username),
		zap.Int("initial_stock", req.InitialStock))

	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, ErrAdminRequired
	}

	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return domain.Product{}, store.ErrConstraintViolation
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Product{}, &ProductNotFoundError{ProductID: id}
		}
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrConstraintViolation
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrConstraintViolation
		}
		updated.Category = category
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return domain.Product{}, store.ErrConstraintViolation
		}
		updated.Price = req.Price.Round(2)
	}
	if req.Cost != nil {
		if req.Cost.IsNegative() {
			return domain.Product{}, store.ErrConstraintViolation
		}
		updated.Cost = req.Cost.Round(2)
	}
	if req.TaxRatePercent != nil {
		if *req.TaxRatePercent < 0 || *req.TaxRatePercent > 100 {
			return domain.Product{}, store.ErrConstraintViolation
		}
		updated.TaxRatePercent = *req.TaxRatePercent
	}
	if req.ReorderLevel != nil {
		if *req.ReorderLevel < 0 {
			return domain.Product{}, store.ErrConstraintViolation
		}
		updated.ReorderLevel = *req.ReorderLevel
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("product updated",
		zap.String("product_id", saved.ID),
		zap.String("actor", actor.Username),
		zap.Bool("active", saved.Active))

	return *saved, nil
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx)
}

func (s *Service) StockIn(ctx context.Context, req domain.StockInRequest) (domain.InventoryLogEntry, error) {
	actor, _ := ActorFromContext(ctx)

	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" || req.Quantity < 1 {
		return domain.InventoryLogEntry{}, store.ErrConstraintViolation
	}

	entry, err := s.repo.RecordInventoryEntry(ctx, domain.InventoryLogEntry{
		ProductID:      req.ProductID,
		Type:           domain.LedgerStockIn,
		QuantityChange: req.Quantity,
		PrincipalID:    principalID(actor),
		Notes:          strings.TrimSpace(req.Notes),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.InventoryLogEntry{}, &ProductNotFoundError{ProductID: req.ProductID}
		}
		return domain.InventoryLogEntry{}, err
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("stock in recorded",
		zap.String("product_id", entry.ProductID),
		zap.Int("quantity", entry.QuantityChange),
		zap.String("actor", entry.PrincipalID))

	return *entry, nil
}

// AdjustStock records a manual correction. The change may be negative; the
// same non-negative stock guard applies as to any other entry.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.InventoryLogEntry, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.InventoryLogEntry{}, ErrAdminRequired
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" || req.QuantityChange == 0 {
		return domain.InventoryLogEntry{}, store.ErrConstraintViolation
	}

	entry, err := s.repo.RecordInventoryEntry(ctx, domain.InventoryLogEntry{
		ProductID:      req.ProductID,
		Type:           domain.LedgerAdjustment,
		QuantityChange: req.QuantityChange,
		PrincipalID:    actor.Username,
		Notes:          strings.TrimSpace(req.Notes),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.InventoryLogEntry{}, &ProductNotFoundError{ProductID: req.ProductID}
		}
		if errors.Is(err, store.ErrInsufficientStock) {
			product, getErr := s.repo.GetProduct(ctx, req.ProductID)
			if getErr == nil {
				return domain.InventoryLogEntry{}, &InsufficientStockError{
					ProductID: req.ProductID,
					Requested: -req.QuantityChange,
					Available: product.QuantityOnHand,
				}
			}
			return domain.InventoryLogEntry{}, err
		}
		return domain.InventoryLogEntry{}, err
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("stock adjusted",
		zap.String("product_id", entry.ProductID),
		zap.Int("quantity_change", entry.QuantityChange),
		zap.String("actor", entry.PrincipalID))

	return *entry, nil
}

func (s *Service) ListInventoryLog(ctx context.Context, productID string, limit int) ([]domain.InventoryLogEntry, error) {
	return s.repo.ListInventoryLog(ctx, strings.TrimSpace(productID), limit)
}

func (s *Service) InventoryValue(ctx context.Context) (domain.InventoryValueReport, error) {
	return s.repo.InventoryValue(ctx)
}

// ReconcileInventory checks a product's quantity on hand against the sum of
// its ledger entries. Divergence means a stock write bypassed the log.
func (s *Service) ReconcileInventory(ctx context.Context, productID string) (domain.LedgerReconciliation, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.LedgerReconciliation{}, store.ErrConstraintViolation
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LedgerReconciliation{}, &ProductNotFoundError{ProductID: productID}
		}
		return domain.LedgerReconciliation{}, err
	}
	sum, err := s.repo.LedgerQuantitySum(ctx, productID)
	if err != nil {
		return domain.LedgerReconciliation{}, err
	}

	result := domain.LedgerReconciliation{
		ProductID:      productID,
		QuantityOnHand: product.QuantityOnHand,
		LedgerSum:      sum,
		Consistent:     product.QuantityOnHand == sum,
	}
	if !result.Consistent {
		s.logger.Error("inventory ledger divergence",
			zap.String("product_id", productID),
			zap.Int("quantity_on_hand", result.QuantityOnHand),
			zap.Int("ledger_sum", result.LedgerSum))
	}
	return result, nil
}

// Checkout validates the cart against the live catalog, computes totals with
// line-level rounding, and persists the order atomically with its stock
// decrements and sale entries. The availability check here is advisory: the
// store re-checks every decrement at commit time, so two concurrent checkouts
// contending for the last unit cannot both succeed.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Order, error) {
	actor, _ := ActorFromContext(ctx)

	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.Order{}, store.ErrConstraintViolation
	}

	lines := normalizeLines(req.Lines)
	if len(lines) == 0 {
		return domain.Order{}, ErrEmptyCart
	}
	for _, line := range lines {
		if line.Quantity < 1 {
			return domain.Order{}, store.ErrConstraintViolation
		}
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.Order{}, err
	}

	requested := make(map[string]int, len(lines))
	for _, line := range lines {
		requested[line.ProductID] += line.Quantity
	}
	for id, qty := range requested {
		product, exists := products[id]
		if !exists {
			return domain.Order{}, &ProductNotFoundError{ProductID: id}
		}
		if product.QuantityOnHand < qty {
			return domain.Order{}, &InsufficientStockError{
				ProductID: id,
				Requested: qty,
				Available: product.QuantityOnHand,
			}
		}
	}

	subtotal := decimal.Zero
	taxTotal := decimal.Zero
	orderLines := make([]domain.OrderLine, 0, len(lines))
	entries := make([]domain.InventoryLogEntry, 0, len(lines))
	principal := principalID(actor)

	for _, line := range lines {
		product := products[line.ProductID]
		qty := decimal.NewFromInt(int64(line.Quantity))
		lineSubtotal := product.Price.Mul(qty)
		lineTax := taxAmount(lineSubtotal, product.TaxRatePercent)
		lineTotal := lineSubtotal.Add(lineTax)

		subtotal = subtotal.Add(lineSubtotal)
		taxTotal = taxTotal.Add(lineTax)

		orderLines = append(orderLines, domain.OrderLine{
			ProductID:      product.ID,
			Quantity:       line.Quantity,
			UnitPrice:      product.Price,
			TaxRatePercent: product.TaxRatePercent,
			LineTotal:      lineTotal,
		})
		entries = append(entries, domain.InventoryLogEntry{
			ProductID:      product.ID,
			Type:           domain.LedgerSale,
			QuantityChange: -line.Quantity,
			PrincipalID:    principal,
		})
	}

	subtotal = subtotal.Round(2)
	taxTotal = taxTotal.Round(2)
	order := domain.Order{
		PrincipalID:   principal,
		Status:        domain.OrderStatusCompleted,
		Subtotal:      subtotal,
		TaxTotal:      taxTotal,
		Total:         subtotal.Add(taxTotal),
		PaymentMethod: req.PaymentMethod,
		Notes:         strings.TrimSpace(req.Notes),
		Lines:         orderLines,
	}

	var created *domain.Order
	for attempt := 1; ; attempt++ {
		order.OrderNumber = ordernum.New(s.orderNumberPrefix)
		entriesCopy := make([]domain.InventoryLogEntry, len(entries))
		copy(entriesCopy, entries)

		created, err = s.repo.CreateOrder(ctx, order, entriesCopy)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrDuplicateOrderNumber) {
			if attempt >= orderNumberTries {
				return domain.Order{}, &PersistenceError{
					Op:  "checkout",
					Err: fmt.Errorf("order number collision persisted after %d attempts", orderNumberTries),
				}
			}
			s.logger.Warn("order number collision, retrying",
				zap.String("order_number", order.OrderNumber),
				zap.Int("attempt", attempt))
			continue
		}
		if errors.Is(err, store.ErrNotFound) {
			return domain.Order{}, &ProductNotFoundError{ProductID: firstMissingProduct(ctx, s.repo, ids)}
		}
		if errors.Is(err, store.ErrInsufficientStock) {
			return domain.Order{}, s.describeStockFailure(ctx, requested)
		}
		return domain.Order{}, err
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("checkout completed",
		zap.String("order_id", created.ID),
		zap.String("order_number", created.OrderNumber),
		zap.String("principal", created.PrincipalID),
		zap.String("total", created.Total.StringFixed(2)),
		zap.Int("line_count", len(created.Lines)))

	return *created, nil
}

// describeStockFailure re-reads current quantities so an InsufficientStock
// rejection from the atomic commit still names the losing product.
func (s *Service) describeStockFailure(ctx context.Context, requested map[string]int) error {
	for id, qty := range requested {
		product, err := s.repo.GetProduct(ctx, id)
		if err != nil {
			continue
		}
		if product.QuantityOnHand < qty {
			return &InsufficientStockError{
				ProductID: id,
				Requested: qty,
				Available: product.QuantityOnHand,
			}
		}
	}
	return store.ErrInsufficientStock
}

func firstMissingProduct(ctx context.Context, repo store.Repository, ids []string) string {
	products, err := repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return ""
	}
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			return id
		}
	}
	return ""
}

// CancelOrder reverses a completed order: one compensating return entry per
// line, stock restored, status flipped to cancelled. The original sale
// entries stay in the log untouched.
func (s *Service) CancelOrder(ctx context.Context, orderID string, req domain.CancelOrderRequest) (domain.Order, error) {
	actor, _ := ActorFromContext(ctx)

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, store.ErrConstraintViolation
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "unspecified"
	}

	cancelled, err := s.repo.CancelOrder(ctx, orderID, reason, principalID(actor), time.Now().UTC())
	if err != nil {
		return domain.Order{}, err
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("order cancelled",
		zap.String("order_id", cancelled.ID),
		zap.String("order_number", cancelled.OrderNumber),
		zap.String("actor", principalID(actor)),
		zap.String("reason", reason))

	return *cancelled, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Order{}, store.ErrConstraintViolation
	}
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) GetOrderByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, store.ErrConstraintViolation
	}
	order, err := s.repo.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx, limit)
}

func (s *Service) ListOrdersByPrincipal(ctx context.Context, principal string, limit int) ([]domain.Order, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return nil, store.ErrConstraintViolation
	}
	return s.repo.ListOrdersByPrincipal(ctx, principal, limit)
}

func (s *Service) ListOrdersByDateRange(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Order, error) {
	if !to.After(from) {
		return nil, store.ErrConstraintViolation
	}
	return s.repo.ListOrdersByDateRange(ctx, from, to, limit)
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.catalog.Invalidate(ctx, catalogCacheKey); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

// taxAmount rounds per line, half away from zero, to two decimal places.
func taxAmount(lineSubtotal decimal.Decimal, ratePercent float64) decimal.Decimal {
	if ratePercent == 0 {
		return decimal.Zero
	}
	rate := decimal.NewFromFloat(ratePercent)
	return lineSubtotal.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
}

func normalizeLines(lines []domain.CartLine) []domain.CartLine {
	normalized := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		line.ProductID = strings.TrimSpace(line.ProductID)
		if line.ProductID == "" {
			continue
		}
		normalized = append(normalized, line)
	}
	return normalized
}

func principalID(actor domain.Actor) string {
	if actor.Username != "" {
		return actor.Username
	}
	return "unknown"
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentMobile:
		return true
	}
	return false
}
