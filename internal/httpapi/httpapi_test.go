package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/accounts"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/catalog"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/orders"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/saga"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCoordinator struct {
	cached    saga.InfoResult
	refreshed saga.InfoResult
	refreshEr error
	confirmEr error
	confirmed []string
}

func (f *fakeCoordinator) Lookup(string) saga.InfoResult { return f.cached }

func (f *fakeCoordinator) RequestInfo(context.Context, string, string, string) (saga.InfoResult, error) {
	return f.refreshed, f.refreshEr
}

func (f *fakeCoordinator) ConfirmDeletion(_ context.Context, userID, _ string) (saga.InfoResult, error) {
	f.confirmed = append(f.confirmed, userID)
	return f.cached, f.confirmEr
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func newUserRouter(t *testing.T, coord *fakeCoordinator) (*gin.Engine, *accounts.MemoryStore) {
	t.Helper()
	profiles := accounts.NewMemoryStore()
	if err := profiles.Create(context.Background(), accounts.Profile{UserID: "u1", Email: "u1@example.com"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return NewRouter(zap.NewNop(), NewUserHandler(profiles, coord, zap.NewNop())), profiles
}

func TestNewRouter_RoutesExist(t *testing.T) {
	router := NewRouter(zap.NewNop(),
		NewUserHandler(accounts.NewMemoryStore(), &fakeCoordinator{}, zap.NewNop()),
		NewCatalogHandler(nil, zap.NewNop()),
		NewStockHandler(nil, zap.NewNop()),
		NewOrderHandler(nil, zap.NewNop()),
	)

	expected := []string{
		"GET /health",
		"POST /users",
		"GET /users/:id",
		"GET /users/:id/deletion-info",
		"POST /users/:id/deletion-info",
		"DELETE /users/:id",
		"GET /products/:id",
		"GET /stock/:id",
		"POST /orders",
		"GET /orders/:id",
		"POST /orders/:id/cancel",
	}

	found := make(map[string]bool)
	for _, r := range router.Routes() {
		found[r.Method+" "+r.Path] = true
	}
	for _, key := range expected {
		if !found[key] {
			t.Errorf("missing route %s", key)
		}
	}
}

func TestCorrelationIDMiddleware(t *testing.T) {
	router := NewRouter(zap.NewNop())

	w := do(t, router, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w.Header().Get(CorrelationIDHeader) == "" {
		t.Error("expected a generated correlation id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(CorrelationIDHeader, "corr-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get(CorrelationIDHeader); got != "corr-123" {
		t.Errorf("expected corr-123 to be echoed, got %q", got)
	}
}

func TestCorrelationID_OneIDPerRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := NewRouter(zap.New(core), NewUserHandler(accounts.NewMemoryStore(), &fakeCoordinator{}, zap.NewNop()))

	w := do(t, router, http.MethodGet, "/users/ghost", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}

	header := w.Header().Get(CorrelationIDHeader)
	if header == "" {
		t.Fatal("expected a generated correlation id header")
	}
	var body struct {
		CorrelationID string `json:"correlation_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.CorrelationID != header {
		t.Errorf("expected body id %q to match header %q", body.CorrelationID, header)
	}

	entries := logs.FilterMessage("HTTP request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["correlation_id"]; got != header {
		t.Errorf("expected logged id %q, got %v", header, got)
	}
}

func TestGetDeletionInfo_ReadsCacheOnly(t *testing.T) {
	router, _ := newUserRouter(t, &fakeCoordinator{cached: saga.InfoResult{Status: saga.StatusUnknown}})

	w := do(t, router, http.MethodGet, "/users/u1/deletion-info", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var res map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res["status"] != "unknown" {
		t.Errorf("expected unknown status, got %v", res["status"])
	}

	if w := do(t, router, http.MethodGet, "/users/nobody/deletion-info", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown user, got %d", w.Code)
	}
}

func TestRefreshDeletionInfo(t *testing.T) {
	tests := []struct {
		name   string
		coord  *fakeCoordinator
		status int
	}{
		{"answered", &fakeCoordinator{refreshed: saga.InfoResult{Status: saga.StatusKnown}}, http.StatusOK},
		{"timed out", &fakeCoordinator{refreshed: saga.InfoResult{Status: saga.StatusTimedOut}}, http.StatusAccepted},
		{"not delivered", &fakeCoordinator{refreshEr: errors.New("dead-lettered")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newUserRouter(t, tt.coord)
			if w := do(t, router, http.MethodPost, "/users/u1/deletion-info", ""); w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body)
			}
		})
	}
}

func TestDeleteUser(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"started", nil, http.StatusAccepted},
		{"unknown info", saga.ErrInfoUnknown, http.StatusConflict},
		{"missing user", fmt.Errorf("%w: u1", saga.ErrUserNotFound), http.StatusNotFound},
		{"failure", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coord := &fakeCoordinator{confirmEr: tt.err}
			router, _ := newUserRouter(t, coord)

			if w := do(t, router, http.MethodDelete, "/users/u1", ""); w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body)
			}
			if len(coord.confirmed) != 1 || coord.confirmed[0] != "u1" {
				t.Errorf("expected deletion of u1, got %v", coord.confirmed)
			}
		})
	}
}

func TestCreateUser(t *testing.T) {
	router, profiles := newUserRouter(t, &fakeCoordinator{})

	w := do(t, router, http.MethodPost, "/users", `{"user_id":"u2","email":"u2@example.com","name":"Grace"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body)
	}
	if _, found, _ := profiles.Get(context.Background(), "u2"); !found {
		t.Error("expected profile to be stored")
	}

	if w := do(t, router, http.MethodPost, "/users", `{"user_id":"u1","email":"u1@example.com"}`); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate, got %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/users", `{"user_id":"u3","email":"not-an-email"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid email, got %d", w.Code)
	}
}

func TestGetProduct(t *testing.T) {
	store := catalog.NewMemoryStore()
	_, _ = store.CreateIfAbsent(context.Background(), catalog.Product{ID: "p1", Name: "Mug", PriceCents: 900})
	router := NewRouter(zap.NewNop(), NewCatalogHandler(catalog.New(store, 16, 0, zap.NewNop()), zap.NewNop()))

	w := do(t, router, http.MethodGet, "/products/p1", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"Mug"`) {
		t.Fatalf("expected product, got %d: %s", w.Code, w.Body)
	}
	if w := do(t, router, http.MethodGet, "/products/p404", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

type stubStock map[string]int

func (s stubStock) Quantity(_ context.Context, id string) (int, bool, error) {
	q, ok := s[id]
	return q, ok, nil
}

func TestGetStock(t *testing.T) {
	router := NewRouter(zap.NewNop(), NewStockHandler(stubStock{"p1": -5}, zap.NewNop()))

	w := do(t, router, http.MethodGet, "/stock/p1", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"quantity":-5`) {
		t.Fatalf("expected quantity -5, got %d: %s", w.Code, w.Body)
	}
	if w := do(t, router, http.MethodGet, "/stock/p2", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

type stubOrders struct {
	placed   []orders.PlaceOrderRequest
	cancelEr error
}

func (s *stubOrders) PlaceOrder(_ context.Context, req orders.PlaceOrderRequest) (orders.Order, error) {
	if len(req.Items) == 0 {
		return orders.Order{}, orders.ErrInvalidOrder
	}
	s.placed = append(s.placed, req)
	return orders.Order{ID: "o1", UserID: req.UserID, Status: orders.StatusPending}, nil
}

func (s *stubOrders) CancelOrder(context.Context, string) (orders.Order, error) {
	return orders.Order{ID: "o1", Status: orders.StatusCancelled}, s.cancelEr
}

func (s *stubOrders) Get(context.Context, string) (orders.Order, error) {
	return orders.Order{}, orders.ErrNotFound
}

func TestOrderEndpoints(t *testing.T) {
	svc := &stubOrders{cancelEr: orders.ErrAlreadyCancelled}
	router := NewRouter(zap.NewNop(), NewOrderHandler(svc, zap.NewNop()))

	w := do(t, router, http.MethodPost, "/orders", `{"user_id":"u1","items":[{"product_id":"p1","quantity":2,"price_cents":100}]}`)
	if w.Code != http.StatusCreated || len(svc.placed) != 1 {
		t.Fatalf("expected order placed, got %d: %s", w.Code, w.Body)
	}
	if w := do(t, router, http.MethodPost, "/orders", `{"user_id":"u1","items":[]}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/orders/o1/cancel", ""); w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/orders/o1", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
