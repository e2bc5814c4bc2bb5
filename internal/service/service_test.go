package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"warungpos/backend/internal/cache"
	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopProductCache{}, zap.NewNop(), "POS", 30*time.Second)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "admin",
		Role:     "admin",
	})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "cashier",
		Role:     "cashier",
	})
}

func mustCreateProduct(t *testing.T, svc *Service, id string, price string, taxRate float64, initialStock int) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		ID:             id,
		Name:           "Produk " + id,
		Category:       "snack",
		Price:          decimal.RequireFromString(price),
		Cost:           decimal.RequireFromString(price).Mul(decimal.RequireFromString("0.7")).Round(2),
		TaxRatePercent: taxRate,
		ReorderLevel:   2,
		InitialStock:   initialStock,
	})
	if err != nil {
		t.Fatalf("create product %s failed: %v", id, err)
	}
	return product
}

func TestCheckoutComputesLineLevelTotals(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, "PRD-COFFEE-01", "12.99", 10, 50)

	order, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Lines: []domain.CartLine{
			{ProductID: "PRD-COFFEE-01", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if got := order.Subtotal.StringFixed(2); got != "25.98" {
		t.Fatalf("expected subtotal 25.98, got %s", got)
	}
	if got := order.TaxTotal.StringFixed(2); got != "2.60" {
		t.Fatalf("expected tax total 2.60, got %s", got)
	}
	if got := order.Total.StringFixed(2); got != "28.58" {
		t.Fatalf("expected total 28.58, got %s", got)
	}
	if order.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed order, got %s", order.Status)
	}
	if len(order.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(order.Lines))
	}
	if got := order.Lines[0].LineTotal.StringFixed(2); got != "28.58" {
		t.Fatalf("expected line total 28.58, got %s", got)
	}
	if order.OrderNumber == "" {
		t.Fatalf("expected order number to be assigned")
	}
	if order.PrincipalID != "cashier" {
		t.Fatalf("expected principal cashier, got %s", order.PrincipalID)
	}
}

func TestCheckoutDecrementsStockAndWritesLedger(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, "PRD-LEDGER-01", "10.00", 0, 10)

	order, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Lines: []domain.CartLine{
			{ProductID: "PRD-LEDGER-01", Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	product, err := svc.GetProduct(context.Background(), "PRD-LEDGER-01")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.QuantityOnHand != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", product.QuantityOnHand)
	}

	entries, err := svc.ListInventoryLog(context.Background(), "PRD-LEDGER-01", 10)
	if err != nil {
		t.Fatalf("list inventory log failed: %v", err)
	}
	var sale *domain.InventoryLogEntry
	for i := range entries {
		if entries[i].Type == domain.LedgerSale {
			sale = &entries[i]
			break
		}
	}
	if sale == nil {
		t.Fatalf("expected a sale ledger entry")
	}
	if sale.QuantityChange != -3 {
		t.Fatalf("expected sale quantity change -3, got %d", sale.QuantityChange)
	}
	if sale.OrderID != order.ID {
		t.Fatalf("expected sale entry linked to order %s, got %s", order.ID, sale.OrderID)
	}
}

func TestCheckoutEmptyCartRejected(t *testing.T) {
	svc := newTestService()

	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}

	_, err = svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Lines: []domain.CartLine{
			{ProductID: "   ", Quantity: 1},
		},
	})
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart for blank product ids, got %v", err)
	}
}

func TestCheckoutUnknownProductRejected(t *testing.T) {
	svc := newTestService()

	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Lines: []domain.CartLine{
			{ProductID: "PRD-DOES-NOT-EXIST", Quantity: 1},
		},
	})
	var notFound *ProductNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ProductNotFoundError, got %v", err)
	}
	if notFound.ProductID != "PRD-DOES-NOT-EXIST" {
		t.Fatalf("expected offending product id in error, got %s", notFound.ProductID)
	}
}

func TestCheckoutInsufficientStockLeavesNoTrace(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, "PRD-SCARCE-01", "5.00", 0, 2)

	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Lines: []domain.CartLine{
			{ProductID: "PRD-SCARCE-01", Quantity: 5},
		},
	})
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Requested != 5 || insufficient.Available != 2 {
		t.Fatalf("unexpected error detail: requested %d available %d", insufficient.Requested, insufficient.Available)
	}

	product, err := svc.GetProduct(context.Background(), "PRD-SCARCE-01")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.QuantityOnHand != 2 {
		t.Fatalf("expected stock unchanged at 2, got %d", product.QuantityOnHand)
	}

	orders, err := svc.ListOrders(context.Background(), 10)
	if err != nil {
		t.Fatalf("list orders failed: %v", err)
	}
	for _, o := range orders {
		for _, line := range o.Lines {
			if line.ProductID == "PRD-SCARCE-01" {
				t.Fatalf("expected no persisted order for failed checkout")
			}
		}
	}
}

func TestCheckoutIgnoresClientPriceSnapshot(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, "PRD-SNAPSHOT-01", "10.00", 0, 10)

	order, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Lines: []domain.CartLine{
			{
				ProductID:      "PRD-SNAPSHOT-01",
				Quantity:       1,
				UnitPrice:      decimal.RequireFromString("0.01"),
				TaxRatePercent: 99,
			},
		},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if got := order.Total.StringFixed(2); got != "10.00" {
		t.Fatalf("expected total priced from catalog (10.00), got %s", got)
	}
}

func TestCancelOrderRestoresStockAndKeepsSaleEntries(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, "PRD-CANCEL-01", "8.00", 0, 10)

	order, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Lines: []domain.CartLine{
			{ProductID: "PRD-CANCEL-01", Quantity: 4},
		},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	cancelled, err := svc.CancelOrder(adminCtx(), order.ID, domain.CancelOrderRequest{Reason: "customer changed mind"})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	product, err := svc.GetProduct(context.Background(), "PRD-CANCEL-01")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.QuantityOnHand != 10 {
		t.Fatalf("expected stock restored to 10, got %d", product.QuantityOnHand)
	}

	entries, err := svc.ListInventoryLog(context.Background(), "PRD-CANCEL-01", 20)
	if err != nil {
		t.Fatalf("list inventory log failed: %v", err)
	}
	sales, returns := 0, 0
	for _, entry := range entries {
		switch entry.Type {
		case domain.LedgerSale:
			sales++
		case domain.LedgerReturn:
			returns++
			if entry.QuantityChange != 4 {
				t.Fatalf("expected return entry +4, got %d", entry.QuantityChange)
			}
			if entry.OrderID != order.ID {
				t.Fatalf("expected return entry linked to order")
			}
		}
	}
	if sales != 1 {
		t.Fatalf("expected original sale entry preserved, found %d", sales)
	}
	if returns != 1 {
		t.Fatalf("expected exactly one return entry, found %d", returns)
	}
}

func TestCancelOrderRestoresStockAfterProductDeactivated(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, "PRD-DISC-01", "8.00", 0, 5)

	order, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Lines: []domain.CartLine{
			{ProductID: "PRD-DISC-01", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	// The product leaves the catalog between sale and cancellation; the
	// return entry must still land so the stock count stays truthful.
	inactive := false
	if _, err := svc.UpdateProduct(adminCtx(), "PRD-DISC-01", domain.ProductUpdateRequest{Active: &inactive}); err != nil {
		t.Fatalf("deactivate product failed: %v", err)
	}

	cancelled, err := svc.CancelOrder(adminCtx(), order.ID, domain.CancelOrderRequest{Reason: "item discontinued"})
	if err != nil {
		t.Fatalf("cancel after deactivation failed: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	product, err := svc.GetProduct(context.Background(), "PRD-DISC-01")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.QuantityOnHand != 5 {
		t.Fatalf("expected stock restored to 5, got %d", product.QuantityOnHand)
	}
	if product.Active {
		t.Fatalf("expected product to stay inactive after cancellation")
	}
}

func TestCancelOrderTwiceRejected(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, "PRD-DOUBLE-01", "8.00", 0, 5)

	order, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Lines: []domain.CartLine{
			{ProductID: "PRD-DOUBLE-01", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if _, err := svc.CancelOrder(adminCtx(), order.ID, domain.CancelOrderRequest{Reason: "first"}); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}

	_, err = svc.CancelOrder(adminCtx(), order.ID, domain.CancelOrderRequest{Reason: "second"})
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double cancel, got %v", err)
	}

	product, err := svc.GetProduct(context.Background(), "PRD-DOUBLE-01")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.QuantityOnHand != 5 {
		t.Fatalf("expected stock 5 after single reversal, got %d", product.QuantityOnHand)
	}
}

func TestConcurrentCheckoutsExactlyOneWins(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, "PRD-LAST-01", "9.99", 0, 1)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, results[slot] = svc.Checkout(cashierCtx(), domain.CheckoutRequest{
				PaymentMethod: domain.PaymentCash,
				Lines: []domain.CartLine{
					{ProductID: "PRD-LAST-01", Quantity: 1},
				},
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		var insufficient *InsufficientStockError
		if !errors.As(err, &insufficient) && !errors.Is(err, store.ErrInsufficientStock) {
			t.Fatalf("loser should fail with insufficient stock, got %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning checkout, got %d", wins)
	}

	product, err := svc.GetProduct(context.Background(), "PRD-LAST-01")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.QuantityOnHand != 0 {
		t.Fatalf("expected stock 0 after single winner, got %d", product.QuantityOnHand)
	}
}

func TestLedgerConservation(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, "PRD-CONSERVE-01", "4.50", 11, 20)

	if _, err := svc.StockIn(adminCtx(), domain.StockInRequest{ProductID: "PRD-CONSERVE-01", Quantity: 15}); err != nil {
		t.Fatalf("stock in failed: %v", err)
	}
	if _, err := svc.AdjustStock(adminCtx(), domain.StockAdjustmentRequest{ProductID: "PRD-CONSERVE-01", QuantityChange: -3, Notes: "breakage"}); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	order, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCard,
		Lines: []domain.CartLine{
			{ProductID: "PRD-CONSERVE-01", Quantity: 6},
		},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if _, err := svc.CancelOrder(adminCtx(), order.ID, domain.CancelOrderRequest{Reason: "test"}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	report, err := svc.ReconcileInventory(context.Background(), "PRD-CONSERVE-01")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !report.Consistent {
		t.Fatalf("expected ledger sum %d to match quantity on hand %d", report.LedgerSum, report.QuantityOnHand)
	}
	if report.QuantityOnHand != 32 {
		t.Fatalf("expected quantity 32 (20+15-3-6+6), got %d", report.QuantityOnHand)
	}
}

func TestAdjustStockCannotDriveQuantityNegative(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, "PRD-ADJ-01", "3.00", 0, 2)

	_, err := svc.AdjustStock(adminCtx(), domain.StockAdjustmentRequest{
		ProductID:      "PRD-ADJ-01",
		QuantityChange: -5,
		Notes:          "should fail",
	})
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}

	product, err := svc.GetProduct(context.Background(), "PRD-ADJ-01")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.QuantityOnHand != 2 {
		t.Fatalf("expected stock unchanged at 2, got %d", product.QuantityOnHand)
	}
}

func TestAdjustStockRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.AdjustStock(cashierCtx(), domain.StockAdjustmentRequest{
		ProductID:      "PRD-MIE-01",
		QuantityChange: -1,
	})
	if !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected ErrAdminRequired for non-admin adjustment, got %v", err)
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(cashierCtx(), domain.ProductCreateRequest{
		ID:       "PRD-BARU-01",
		Name:     "Kerupuk Udang",
		Category: "snack",
		Price:    decimal.RequireFromString("7000"),
	})
	if !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected ErrAdminRequired for non-admin create product, got %v", err)
	}
}

func TestCatalogEditDoesNotRewriteOrderSnapshot(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, "PRD-REPRICE-01", "10.00", 0, 10)

	order, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Lines: []domain.CartLine{
			{ProductID: "PRD-REPRICE-01", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	newPrice := decimal.RequireFromString("99.00")
	if _, err := svc.UpdateProduct(adminCtx(), "PRD-REPRICE-01", domain.ProductUpdateRequest{Price: &newPrice}); err != nil {
		t.Fatalf("update product failed: %v", err)
	}

	reloaded, err := svc.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if got := reloaded.Lines[0].UnitPrice.StringFixed(2); got != "10.00" {
		t.Fatalf("expected snapshot price 10.00, got %s", got)
	}
	if got := reloaded.Total.StringFixed(2); got != "10.00" {
		t.Fatalf("expected order total unchanged at 10.00, got %s", got)
	}
}

func TestInventoryValueAndLowStock(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "PRD-VALUE-01", "10.00", 0, 1)
	if product.ReorderLevel != 2 {
		t.Fatalf("expected reorder level 2, got %d", product.ReorderLevel)
	}

	low, err := svc.ListLowStockProducts(context.Background())
	if err != nil {
		t.Fatalf("list low stock failed: %v", err)
	}
	found := false
	for _, p := range low {
		if p.ID == "PRD-VALUE-01" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected PRD-VALUE-01 in low stock list")
	}

	report, err := svc.InventoryValue(context.Background())
	if err != nil {
		t.Fatalf("inventory value failed: %v", err)
	}
	if !report.TotalValue.IsPositive() {
		t.Fatalf("expected positive inventory value, got %s", report.TotalValue)
	}
}
