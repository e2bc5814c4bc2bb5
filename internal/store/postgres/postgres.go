package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price, cost, tax_rate_percent, quantity_on_hand, reorder_level, active, created_at, updated_at
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, price, cost, tax_rate_percent, quantity_on_hand, reorder_level, active, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price, cost, tax_rate_percent, quantity_on_hand, reorder_level, active, created_at, updated_at
		FROM products
		WHERE active = true AND id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, initialEntry *domain.InventoryLogEntry) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Category == "" || !product.Price.IsPositive() {
		return nil, store.ErrConstraintViolation
	}
	if product.Cost.IsNegative() || product.TaxRatePercent < 0 || product.TaxRatePercent > 100 || product.ReorderLevel < 0 {
		return nil, store.ErrConstraintViolation
	}
	if initialEntry != nil && initialEntry.QuantityChange < 0 {
		return nil, store.ErrConstraintViolation
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	product.Active = true
	product.QuantityOnHand = 0
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price, cost, tax_rate_percent, quantity_on_hand, reorder_level, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7,$8,now(),now())
	`, product.ID, product.Name, product.Category, product.Price, product.Cost, product.TaxRatePercent, product.ReorderLevel, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConstraintViolation
		}
		if isCheckViolation(err) {
			return nil, store.ErrConstraintViolation
		}
		return nil, err
	}

	if initialEntry != nil && initialEntry.QuantityChange > 0 {
		entry := *initialEntry
		entry.ProductID = product.ID
		if err := applyEntryTx(ctx, pgTx, &entry); err != nil {
			return nil, err
		}
		product.QuantityOnHand = entry.QuantityChange
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Category == "" || !product.Price.IsPositive() {
		return nil, store.ErrConstraintViolation
	}
	if product.Cost.IsNegative() || product.TaxRatePercent < 0 || product.TaxRatePercent > 100 || product.ReorderLevel < 0 {
		return nil, store.ErrConstraintViolation
	}

	// quantity_on_hand is deliberately not in the SET list: only ledger
	// entries move stock.
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price = $4, cost = $5, tax_rate_percent = $6, reorder_level = $7, active = $8, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.Price, product.Cost, product.TaxRatePercent, product.ReorderLevel, product.Active)
	if err != nil {
		if isCheckViolation(err) {
			return nil, store.ErrConstraintViolation
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProduct(ctx, product.ID)
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price, cost, tax_rate_percent, quantity_on_hand, reorder_level, active, created_at, updated_at
		FROM products
		WHERE active = true AND quantity_on_hand <= reorder_level
		ORDER BY quantity_on_hand ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) RecordInventoryEntry(ctx context.Context, entry domain.InventoryLogEntry) (*domain.InventoryLogEntry, error) {
	if entry.ProductID == "" || entry.QuantityChange == 0 {
		return nil, store.ErrConstraintViolation
	}
	switch entry.Type {
	case domain.LedgerSale, domain.LedgerStockIn, domain.LedgerAdjustment, domain.LedgerReturn:
	default:
		return nil, store.ErrConstraintViolation
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := applyEntryTx(ctx, pgTx, &entry); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := entry
	return &created, nil
}

// applyEntryTx inserts a ledger row and applies its delta to the product in
// one statement pair. The decrement is conditional on the resulting quantity
// staying non-negative, which is what closes the read-then-write race: the
// guard is evaluated against committed state at commit time, not against
// whatever the caller read earlier.
//
// Only sale entries require an active product. Returns, restocks, and
// adjustments must still land on a deactivated product, otherwise a
// cancellation could not restore stock for an item pulled from the catalog
// after it was sold.
func applyEntryTx(ctx context.Context, pgTx *sql.Tx, entry *domain.InventoryLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	activeClause := ""
	if entry.Type == domain.LedgerSale {
		activeClause = "AND active = true "
	}

	res, err := pgTx.ExecContext(ctx, `
		UPDATE products
		SET quantity_on_hand = quantity_on_hand + $1, updated_at = now()
		WHERE id = $2 `+activeClause+`AND quantity_on_hand + $1 >= 0
	`, entry.QuantityChange, entry.ProductID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var one int
		probeErr := pgTx.QueryRowContext(ctx, `
			SELECT 1 FROM products WHERE id = $1 `+activeClause+`
		`, entry.ProductID).Scan(&one)
		if errors.Is(probeErr, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if probeErr != nil {
			return probeErr
		}
		return store.ErrInsufficientStock
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO inventory_log (id, product_id, transaction_type, quantity_change, order_id, principal_id, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ProductID, entry.Type, entry.QuantityChange, nullIfEmpty(entry.OrderID), entry.PrincipalID, strings.TrimSpace(entry.Notes), entry.CreatedAt)
	if isCheckViolation(err) {
		return store.ErrConstraintViolation
	}
	return err
}

func (s *Store) ListInventoryLog(ctx context.Context, productID string, limit int) ([]domain.InventoryLogEntry, error) {
	if limit < 1 {
		limit = 200
	}

	query := `
		SELECT id, product_id, transaction_type, quantity_change, COALESCE(order_id, ''), principal_id, COALESCE(notes, ''), created_at
		FROM inventory_log
	`
	args := []any{}
	if productID != "" {
		query += ` WHERE product_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
		args = append(args, productID, limit)
	} else {
		query += ` ORDER BY created_at DESC, id DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.InventoryLogEntry, 0, limit)
	for rows.Next() {
		var entry domain.InventoryLogEntry
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.Type, &entry.QuantityChange, &entry.OrderID, &entry.PrincipalID, &entry.Notes, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) LedgerQuantitySum(ctx context.Context, productID string) (int, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM products WHERE id = $1`, productID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	var sum int
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_change), 0)
		FROM inventory_log
		WHERE product_id = $1
	`, productID).Scan(&sum)
	if err != nil {
		return 0, err
	}
	return sum, nil
}

func (s *Store) InventoryValue(ctx context.Context) (domain.InventoryValueReport, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost * quantity_on_hand), 0)
		FROM products
		WHERE active = true AND quantity_on_hand > 0
	`).Scan(&total)
	if err != nil {
		return domain.InventoryValueReport{}, err
	}
	return domain.InventoryValueReport{
		TotalValue:  total.Round(2),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order, entries []domain.InventoryLogEntry) (*domain.Order, error) {
	if order.OrderNumber == "" || len(order.Lines) == 0 {
		return nil, store.ErrConstraintViolation
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt
	if order.Status == "" {
		order.Status = domain.OrderStatusCompleted
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, principal_id, status, subtotal, tax_total, total, payment_method, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, order.ID, order.OrderNumber, order.PrincipalID, order.Status, order.Subtotal, order.TaxTotal, order.Total,
		order.PaymentMethod, strings.TrimSpace(order.Notes), order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateOrderNumber
		}
		if isCheckViolation(err) {
			return nil, store.ErrConstraintViolation
		}
		return nil, err
	}

	for _, line := range order.Lines {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, product_id, quantity, unit_price, tax_rate_percent, line_total)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, order.ID, line.ProductID, line.Quantity, line.UnitPrice, line.TaxRatePercent, line.LineTotal)
		if err != nil {
			if isCheckViolation(err) {
				return nil, store.ErrConstraintViolation
			}
			return nil, err
		}
	}

	for i := range entries {
		entries[i].OrderID = order.ID
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = order.CreatedAt
		}
		if err := applyEntryTx(ctx, pgTx, &entries[i]); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &order, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.findOrder(ctx, "id", id)
}

func (s *Store) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return s.findOrder(ctx, "order_number", orderNumber)
}

func (s *Store) findOrder(ctx context.Context, column string, value string) (*domain.Order, error) {
	var order domain.Order
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_number, principal_id, status, subtotal, tax_total, total, payment_method, COALESCE(notes, ''), created_at, updated_at
		FROM orders
		WHERE `+column+` = $1
	`, value).Scan(&order.ID, &order.OrderNumber, &order.PrincipalID, &order.Status, &order.Subtotal,
		&order.TaxTotal, &order.Total, &order.PaymentMethod, &order.Notes, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()

	lines, err := s.orderLines(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return &order, nil
}

func (s *Store) orderLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, tax_rate_percent, line_total
		FROM order_lines
		WHERE order_id = $1
		ORDER BY product_id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0, 8)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.UnitPrice, &line.TaxRatePercent, &line.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	return s.listOrders(ctx, `
		SELECT id, order_number, principal_id, status, subtotal, tax_total, total, payment_method, COALESCE(notes, ''), created_at, updated_at
		FROM orders
		WHERE status = 'completed'
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, normalizeLimit(limit))
}

func (s *Store) ListOrdersByPrincipal(ctx context.Context, principalID string, limit int) ([]domain.Order, error) {
	return s.listOrders(ctx, `
		SELECT id, order_number, principal_id, status, subtotal, tax_total, total, payment_method, COALESCE(notes, ''), created_at, updated_at
		FROM orders
		WHERE principal_id = $1 AND status = 'completed'
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, principalID, normalizeLimit(limit))
}

func (s *Store) ListOrdersByDateRange(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Order, error) {
	return s.listOrders(ctx, `
		SELECT id, order_number, principal_id, status, subtotal, tax_total, total, payment_method, COALESCE(notes, ''), created_at, updated_at
		FROM orders
		WHERE created_at >= $1 AND created_at < $2 AND status = 'completed'
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, normalizeLimit(limit))
}

func (s *Store) listOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 32)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.OrderNumber, &order.PrincipalID, &order.Status, &order.Subtotal,
			&order.TaxTotal, &order.Total, &order.PaymentMethod, &order.Notes, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		order.CreatedAt = order.CreatedAt.UTC()
		order.UpdatedAt = order.UpdatedAt.UTC()
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		lines, err := s.orderLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

func (s *Store) CancelOrder(ctx context.Context, id string, reason string, principalID string, at time.Time) (*domain.Order, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var order domain.Order
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, order_number, principal_id, status, subtotal, tax_total, total, payment_method, COALESCE(notes, ''), created_at
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&order.ID, &order.OrderNumber, &order.PrincipalID, &order.Status, &order.Subtotal,
		&order.TaxTotal, &order.Total, &order.PaymentMethod, &order.Notes, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if order.Status != domain.OrderStatusCompleted {
		return nil, store.ErrInvalidTransition
	}

	lineRows, err := pgTx.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, tax_rate_percent, line_total
		FROM order_lines
		WHERE order_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	lines := make([]domain.OrderLine, 0, 8)
	for lineRows.Next() {
		var line domain.OrderLine
		if err := lineRows.Scan(&line.ProductID, &line.Quantity, &line.UnitPrice, &line.TaxRatePercent, &line.LineTotal); err != nil {
			_ = lineRows.Close()
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := lineRows.Err(); err != nil {
		_ = lineRows.Close()
		return nil, err
	}
	_ = lineRows.Close()

	notes := order.Notes
	if reason != "" {
		if notes != "" {
			notes += "; "
		}
		notes += "cancelled: " + reason
	}
	_, err = pgTx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, notes = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`, id, domain.OrderStatusCancelled, notes, at, domain.OrderStatusCompleted)
	if err != nil {
		return nil, err
	}

	for _, line := range lines {
		entry := domain.InventoryLogEntry{
			ID:             uuid.NewString(),
			ProductID:      line.ProductID,
			Type:           domain.LedgerReturn,
			QuantityChange: line.Quantity,
			OrderID:        id,
			PrincipalID:    principalID,
			Notes:          "cancellation reversal: " + reason,
			CreatedAt:      at,
		}
		if err := applyEntryTx(ctx, pgTx, &entry); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatusCancelled
	order.Notes = notes
	order.UpdatedAt = at
	order.CreatedAt = order.CreatedAt.UTC()
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	order.Lines = lines
	return &order, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrConstraintViolation
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConstraintViolation
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrConstraintViolation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Cost, &p.TaxRatePercent,
		&p.QuantityOnHand, &p.ReorderLevel, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func normalizeLimit(limit int) int {
	if limit < 1 {
		return 100
	}
	return limit
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
