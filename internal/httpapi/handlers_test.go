package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"warungpos/backend/internal/cache"
	"warungpos/backend/internal/service"
	"warungpos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopProductCache{}, zap.NewNop(), "POS", 30*time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)

	return New(svc, auth, zap.NewNop(), "*")
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

// loginAs authenticates against the API and returns a bearer token.
func loginAs(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode login data: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access token in login response")
	}
	return resp.AccessToken
}

// csrfToken fetches a fresh CSRF token from the API.
func csrfToken(t *testing.T, handler http.Handler) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token fetch failed: %d %s", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	var resp struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode csrf data: %v", err)
	}
	return resp.CSRFToken
}

// doJSON issues a request with auth and CSRF headers pre-set.
func doJSON(t *testing.T, handler http.Handler, method, path, token, csrf string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", rec.Body.String())
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Success || env.Error != codeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED envelope, got %s", rec.Body.String())
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	// The loginLimiter allows 5 attempts per minute. Fire 6 requests from
	// the same address (httptest defaults RemoteAddr to 192.0.2.1:1234).
	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "badpass",
	})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_ListWithValidToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	var data struct {
		Products []struct {
			ID string `json:"id"`
		} `json:"products"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(data.Products) == 0 {
		t.Fatalf("expected seeded products in response")
	}
}

func TestHandleCheckout_RejectsMissingCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")

	body := map[string]any{
		"lines": []map[string]any{
			{"product_id": "PRD-MIE-01", "quantity": 1},
		},
		"payment_method": "cash",
	}
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, "", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleCheckout_CompletesOrder(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")
	csrf := csrfToken(t, handler)

	// PRD-MIE-01 is seeded at price 3500 with 11% tax: 2 units come to
	// 7000 + 770 = 7770.
	body := map[string]any{
		"lines": []map[string]any{
			{"product_id": "PRD-MIE-01", "quantity": 2},
		},
		"payment_method": "cash",
	}
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, csrf, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	var data struct {
		Order struct {
			ID          string `json:"id"`
			OrderNumber string `json:"order_number"`
			Status      string `json:"status"`
			Subtotal    string `json:"subtotal"`
			TaxTotal    string `json:"tax_total"`
			Total       string `json:"total"`
			PrincipalID string `json:"principal_id"`
		} `json:"order"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if data.Order.Status != "completed" {
		t.Fatalf("expected completed status, got %s", data.Order.Status)
	}
	if data.Order.Subtotal != "7000" || data.Order.TaxTotal != "770" || data.Order.Total != "7770" {
		t.Fatalf("unexpected totals: subtotal=%s tax=%s total=%s",
			data.Order.Subtotal, data.Order.TaxTotal, data.Order.Total)
	}
	if data.Order.PrincipalID != "cashier" {
		t.Fatalf("expected principal cashier, got %s", data.Order.PrincipalID)
	}
	if data.Order.OrderNumber == "" {
		t.Fatalf("expected order number to be assigned")
	}
}

func TestHandleCheckout_EmptyCartCode(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")
	csrf := csrfToken(t, handler)

	body := map[string]any{
		"lines":          []map[string]any{},
		"payment_method": "cash",
	}
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, csrf, body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Error != codeEmptyCart {
		t.Fatalf("expected EMPTY_CART, got %s", env.Error)
	}
}

func TestHandleCheckout_UnknownProductCode(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")
	csrf := csrfToken(t, handler)

	body := map[string]any{
		"lines": []map[string]any{
			{"product_id": "PRD-DOES-NOT-EXIST", "quantity": 1},
		},
		"payment_method": "cash",
	}
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, csrf, body)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Error != codeProductNotFound {
		t.Fatalf("expected PRODUCT_NOT_FOUND, got %s", env.Error)
	}
}

func TestHandleCheckout_InsufficientStockCode(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")
	csrf := csrfToken(t, handler)

	body := map[string]any{
		"lines": []map[string]any{
			{"product_id": "PRD-MIE-01", "quantity": 100000},
		},
		"payment_method": "cash",
	}
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, csrf, body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Error != codeInsufficientStock {
		t.Fatalf("expected INSUFFICIENT_STOCK, got %s", env.Error)
	}
}

// checkoutOrder is a test helper that completes a small order and returns its id.
func checkoutOrder(t *testing.T, handler http.Handler, token, csrf string) string {
	t.Helper()

	body := map[string]any{
		"lines": []map[string]any{
			{"product_id": "PRD-KOPI-01", "quantity": 3},
		},
		"payment_method": "cash",
	}
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, csrf, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout failed: %d %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	var data struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	return data.Order.ID
}

func TestHandleOrderCancel_RequiresManagerPIN(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")
	csrf := csrfToken(t, handler)
	orderID := checkoutOrder(t, handler, token, csrf)

	rec := doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/cancel", orderID), token, csrf, map[string]any{
		"reason":      "keyed wrong item",
		"manager_pin": "000000",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong pin, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleOrderCancel_RestoresOrderState(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")
	csrf := csrfToken(t, handler)
	orderID := checkoutOrder(t, handler, token, csrf)

	rec := doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/cancel", orderID), token, csrf, map[string]any{
		"reason":      "customer walked out",
		"manager_pin": "123456",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	var data struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if data.Order.Status != "cancelled" {
		t.Fatalf("expected cancelled status, got %s", data.Order.Status)
	}

	// A second cancel must be rejected as an invalid transition.
	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/cancel", orderID), token, csrf, map[string]any{
		"reason":      "again",
		"manager_pin": "123456",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second cancel, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	env = decodeEnvelope(t, rec)
	if env.Error != codeInvalidStateTransition {
		t.Fatalf("expected INVALID_STATE_TRANSITION, got %s", env.Error)
	}
}

func TestHandleProducts_CreateRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")
	csrf := csrfToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, csrf, map[string]any{
		"name":     "Minyak Goreng 1L",
		"category": "grocery",
		"price":    "21500",
		"cost":     "18400",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier create, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Error != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN error code, got %q", env.Error)
	}
}

func TestHandleOrders_CashierSeesOnlyOwnOrders(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	csrf := csrfToken(t, handler)

	adminToken := loginAs(t, handler, "admin", "admin123")
	cashierToken := loginAs(t, handler, "cashier", "cashier123")

	checkoutOrder(t, handler, adminToken, csrf)
	checkoutOrder(t, handler, cashierToken, csrf)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/orders", cashierToken, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	var data struct {
		Orders []struct {
			PrincipalID string `json:"principal_id"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode orders: %v", err)
	}
	if len(data.Orders) != 1 {
		t.Fatalf("expected exactly 1 order for cashier, got %d", len(data.Orders))
	}
	if data.Orders[0].PrincipalID != "cashier" {
		t.Fatalf("expected cashier's own order, got principal %s", data.Orders[0].PrincipalID)
	}
}

func TestHandleStockAdjustment_AdminOnlyRoute(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	csrf := csrfToken(t, handler)
	cashierToken := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/inventory/adjustments", cashierToken, csrf, map[string]any{
		"product_id":      "PRD-MIE-01",
		"quantity_change": -2,
		"notes":           "damaged",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier adjustment, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	adminToken := loginAs(t, handler, "admin", "admin123")
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/inventory/adjustments", adminToken, csrf, map[string]any{
		"product_id":      "PRD-MIE-01",
		"quantity_change": -2,
		"notes":           "damaged",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin adjustment, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}
