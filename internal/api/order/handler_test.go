package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nazeru/storefront-go/internal/catalog"
	"github.com/nazeru/storefront-go/internal/order"
	"github.com/nazeru/storefront-go/internal/order/domain"
	"github.com/nazeru/storefront-go/pkg/idempotency"
)

type testServer struct {
	store  *catalog.MemoryStore
	router *chi.Mux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := catalog.NewMemoryStore(
		catalog.Product{ID: "P1", Name: "Mug", Price: decimal.RequireFromString("10.00"), Stock: 5, IsActive: true},
		catalog.Product{ID: "P2", Name: "Lamp", Price: decimal.RequireFromString("30.00"), Stock: 1, IsActive: true},
	)
	svc, err := order.NewService(order.Deps{
		Ledger:            order.NewMemoryLedger(),
		Catalog:           store,
		Logger:            zap.NewNop(),
		StrictTransitions: true,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	router := chi.NewRouter()
	NewOrderHandler(svc, zap.NewNop()).RegisterRoutes()(router)
	return &testServer{store: store, router: router}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: invalid json %q", method, path, rec.Body.String())
	}
	return rec.Code, out
}

const addressJSON = `{"fullName":"Ada Lovelace","phone":"555-0100","street":"1 Analytical Way","city":"Portland","state":"OR","zipCode":"97201"}`

func placeBody(items string) string {
	return fmt.Sprintf(`{"userId":"user-1","customerEmail":"ada@example.com","items":%s,"shippingAddress":%s,"paymentMethod":"credit_card","shippingMethod":"standard"}`, items, addressJSON)
}

func (s *testServer) place(t *testing.T) (id, number string) {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/api/orders", placeBody(`[{"productId":"P1","quantity":2}]`))
	if code != http.StatusCreated {
		t.Fatalf("place: status %d body %v", code, body)
	}
	number = body["order"].(map[string]any)["orderNumber"].(string)

	_, mine := s.do(t, http.MethodGet, "/api/orders/my-orders?userId=user-1", "")
	for _, o := range mine["orders"].([]any) {
		o := o.(map[string]any)
		if o["orderNumber"] == number {
			return o["id"].(string), number
		}
	}
	t.Fatalf("placed order %s not listed", number)
	return "", ""
}

func (s *testServer) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := s.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return p.Stock
}

func TestPlaceOrder(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/api/orders", placeBody(`[{"productId":"P1","quantity":2}]`))
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", code, body)
	}
	if body["success"] != true || body["message"] != "Order placed successfully" {
		t.Errorf("unexpected envelope %v", body)
	}
	o := body["order"].(map[string]any)
	if o["total"] != "27.59" || o["status"] != "pending" {
		t.Errorf("unexpected order %v", o)
	}
	if !domain.ValidOrderNumber(o["orderNumber"].(string)) {
		t.Errorf("unexpected order number %v", o["orderNumber"])
	}
	if _, ok := o["estimatedDelivery"]; !ok {
		t.Error("estimatedDelivery missing")
	}
	if got := s.stock(t, "P1"); got != 3 {
		t.Errorf("expected stock 3, got %d", got)
	}
}

func TestPlaceOrderErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{name: "invalid_json", body: `{`, code: http.StatusBadRequest, msg: "invalid json"},
		{name: "empty_cart", body: placeBody(`[]`), code: http.StatusBadRequest, msg: "no items in order"},
		{name: "unknown_product", body: placeBody(`[{"productId":"P9","quantity":1}]`), code: http.StatusBadRequest, msg: "product not found"},
		{name: "insufficient_stock", body: placeBody(`[{"productId":"P2","quantity":2}]`), code: http.StatusBadRequest, msg: "insufficient stock for Lamp"},
		{name: "zero_quantity", body: placeBody(`[{"productId":"P1","quantity":0}]`), code: http.StatusBadRequest, msg: "invalid order input"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := newTestServer(t)

			code, body := s.do(t, http.MethodPost, "/api/orders", test.body)
			if code != test.code {
				t.Fatalf("expected %d, got %d: %v", test.code, code, body)
			}
			if body["success"] != false || !strings.Contains(body["error"].(string), test.msg) {
				t.Errorf("unexpected error body %v", body)
			}
			if s.stock(t, "P1") != 5 || s.stock(t, "P2") != 1 {
				t.Error("stock changed on rejected order")
			}
		})
	}
}

func TestPlaceOrderIdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	body := placeBody(`[{"productId":"P1","quantity":2}]`)

	_, first := s.do(t, http.MethodPost, "/api/orders", body, idempotency.Header, "abc")
	_, second := s.do(t, http.MethodPost, "/api/orders", body, idempotency.Header, "abc")

	n1 := first["order"].(map[string]any)["orderNumber"]
	n2 := second["order"].(map[string]any)["orderNumber"]
	if n1 != n2 {
		t.Errorf("replay returned a different order: %v vs %v", n1, n2)
	}
	if got := s.stock(t, "P1"); got != 3 {
		t.Errorf("expected stock 3, got %d", got)
	}
}

func TestPlaceOrderRejectsMalformedIdempotencyKey(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/api/orders", placeBody(`[{"productId":"P1","quantity":1}]`),
		idempotency.Header, strings.Repeat("x", idempotency.MaxLen+1))
	if code != http.StatusBadRequest || body["success"] != false {
		t.Fatalf("expected 400 envelope, got %d %v", code, body)
	}
	if got := s.stock(t, "P1"); got != 5 {
		t.Errorf("stock changed: %d", got)
	}
}

func TestGetAndTrackOrder(t *testing.T) {
	s := newTestServer(t)
	id, number := s.place(t)

	code, body := s.do(t, http.MethodGet, "/api/orders/"+id, "")
	if code != http.StatusOK {
		t.Fatalf("get: %d %v", code, body)
	}
	o := body["order"].(map[string]any)
	if o["subtotal"] != "20.00" || o["tax"] != "1.60" || o["shippingCost"] != "5.99" || o["userId"] != "user-1" {
		t.Errorf("unexpected order %v", o)
	}

	code, body = s.do(t, http.MethodGet, "/api/orders/track/"+number, "")
	if code != http.StatusOK {
		t.Fatalf("track: %d %v", code, body)
	}
	tr := body["tracking"].(map[string]any)
	if tr["orderNumber"] != number || tr["status"] != "pending" {
		t.Errorf("unexpected tracking %v", tr)
	}
	addr := tr["shippingAddress"].(map[string]any)
	if len(addr) != 2 || addr["city"] != "Portland" || addr["state"] != "OR" {
		t.Errorf("tracking leaks address fields: %v", addr)
	}
	if _, ok := tr["customerEmail"]; ok {
		t.Error("tracking leaks customer email")
	}

	if code, _ := s.do(t, http.MethodGet, "/api/orders/missing", ""); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/api/orders/track/ORD-20200101-0000", ""); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestMyOrdersRequiresUser(t *testing.T) {
	s := newTestServer(t)
	code, body := s.do(t, http.MethodGet, "/api/orders/my-orders", "")
	if code != http.StatusBadRequest || body["error"] != "userId is required" {
		t.Errorf("unexpected response %d %v", code, body)
	}
}

func TestCancelOrder(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.place(t)

	code, body := s.do(t, http.MethodPut, "/api/orders/"+id+"/cancel", `{"reason":"changed my mind"}`)
	if code != http.StatusOK || body["message"] != "Order cancelled successfully" {
		t.Fatalf("cancel: %d %v", code, body)
	}
	if got := s.stock(t, "P1"); got != 5 {
		t.Errorf("expected stock 5, got %d", got)
	}

	code, body = s.do(t, http.MethodPut, "/api/orders/"+id+"/cancel", "")
	if code != http.StatusBadRequest || body["error"] != "order cannot be cancelled at this stage: order is cancelled" {
		t.Errorf("second cancel: %d %v", code, body)
	}
	if code, _ := s.do(t, http.MethodPut, "/api/orders/missing/cancel", ""); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestCancelOrderWithEmptyChunkedBody(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.place(t)

	req := httptest.NewRequest(http.MethodPut, "/api/orders/"+id+"/cancel", io.NopCloser(strings.NewReader("")))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if got := s.stock(t, "P1"); got != 5 {
		t.Errorf("expected stock 5, got %d", got)
	}

	other, _ := s.place(t)
	if code, body := s.do(t, http.MethodPut, "/api/orders/"+other+"/cancel", `{"reason":`); code != http.StatusBadRequest || body["error"] != "invalid json" {
		t.Errorf("malformed body: %d %v", code, body)
	}
}

func TestUpdateStatus(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.place(t)

	code, body := s.do(t, http.MethodPut, "/api/orders/"+id+"/status",
		`{"status":"shipped","note":"left warehouse","trackingNumber":"1Z999","carrier":"UPS"}`)
	if code != http.StatusOK {
		t.Fatalf("update: %d %v", code, body)
	}
	o := body["order"].(map[string]any)
	if o["status"] != "shipped" || o["trackingNumber"] != "1Z999" || o["carrier"] != "UPS" {
		t.Errorf("unexpected order %v", o)
	}
	if h := o["statusHistory"].([]any); len(h) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(h))
	}

	tests := []struct {
		body string
		code int
	}{
		{body: `{"status":"pending"}`, code: http.StatusConflict},
		{body: `{"status":"lost"}`, code: http.StatusBadRequest},
		{body: `{"status":"cancelled"}`, code: http.StatusBadRequest},
		{body: `nope`, code: http.StatusBadRequest},
	}
	for _, test := range tests {
		if code, body := s.do(t, http.MethodPut, "/api/orders/"+id+"/status", test.body); code != test.code {
			t.Errorf("%s: expected %d, got %d %v", test.body, test.code, code, body)
		}
	}
	if got := s.stock(t, "P1"); got != 3 {
		t.Errorf("stock changed after rejected updates: %d", got)
	}
}

func TestListOrders(t *testing.T) {
	s := newTestServer(t)
	s.place(t)
	s.place(t)

	code, body := s.do(t, http.MethodGet, "/api/orders?status=pending&page=1&limit=1", "")
	if code != http.StatusOK {
		t.Fatalf("list: %d %v", code, body)
	}
	if body["count"] != float64(1) || body["total"] != float64(2) || body["pages"] != float64(2) || body["currentPage"] != float64(1) {
		t.Errorf("unexpected page %v", body)
	}

	for _, q := range []string{"status=lost", "page=0", "limit=x"} {
		if code, _ := s.do(t, http.MethodGet, "/api/orders?"+q, ""); code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, code)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{order.ErrEmptyCart, http.StatusBadRequest},
		{fmt.Errorf("%w: P1", catalog.ErrProductNotFound), http.StatusBadRequest},
		{&catalog.StockError{ProductID: "P1"}, http.StatusBadRequest},
		{order.ErrInvalidInput, http.StatusBadRequest},
		{order.ErrNotCancellable, http.StatusBadRequest},
		{order.ErrOrderNotFound, http.StatusNotFound},
		{order.ErrPersistenceConflict, http.StatusConflict},
		{order.ErrInvalidTransition, http.StatusConflict},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, test := range tests {
		if got := StatusFor(test.err); got != test.code {
			t.Errorf("StatusFor(%v) = %d, want %d", test.err, got, test.code)
		}
	}
}
