package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/health"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/order"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/pricing"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/stock"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

type testAPI struct {
	router  http.Handler
	catalog domain.CatalogAccessor
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	catalog := memory.NewCatalog(
		domain.Product{ID: "p-1", Name: "Widget", PriceMinor: 55000, Stock: 10},
		domain.Product{ID: "p-2", Name: "Gadget", PriceMinor: 20000, Stock: 5},
	)
	orders := memory.NewOrderRepository()
	users := memory.NewUserDirectory("u-1")
	outbox := memory.NewOutboxRepository()
	manager := stock.NewManager(catalog, nil, nil)
	machine := lifecycle.NewMachine(orders, manager, nil, nil)
	engine := pricing.NewEngine(pricing.DefaultConfig())

	svc := order.NewService(orders, catalog, users, manager, engine, machine, outbox, nil, nil)
	handler := NewHandler(svc, memory.NewIdempotencyRepository(), nil)

	return &testAPI{
		router:  NewRouter(handler, health.NewHandler("test")),
		catalog: catalog,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reader).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &reader)
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func validCreateBody() map[string]interface{} {
	return map[string]interface{}{
		"user_id": "u-1",
		"items": []map[string]interface{}{
			{"product_id": "p-1", "qty": 2},
		},
		"shipping_method": "standard",
		"payment_method":  "card",
		"shipping_address": map[string]interface{}{
			"line1":       "1 Main st",
			"city":        "Springfield",
			"postal_code": "00001",
			"country":     "US",
		},
	}
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) orderResponse {
	t.Helper()
	var resp orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode order response: %v (body %s)", err, rec.Body.String())
	}
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (body %s)", err, rec.Body.String())
	}
	return resp.Error
}

func (a *testAPI) createOrder(t *testing.T) orderResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/orders", validCreateBody(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: status %d, body %s", rec.Code, rec.Body.String())
	}
	return decodeOrder(t, rec)
}

func TestCreateOrderEndpoint(t *testing.T) {
	api := newTestAPI(t)

	created := api.createOrder(t)
	if created.Status != "pending" {
		t.Fatalf("status = %s, want pending", created.Status)
	}
	if created.SubtotalMinor != 110000 || created.TaxMinor != 17600 || created.TotalMinor != 127600 {
		t.Fatalf("totals = %d/%d/%d, want 110000/17600/127600",
			created.SubtotalMinor, created.TaxMinor, created.TotalMinor)
	}
	if len(created.Items) != 1 || created.Items[0].Name != "Widget" {
		t.Fatalf("unexpected items: %+v", created.Items)
	}
	if len(created.StatusHistory) != 1 || created.StatusHistory[0].Status != "pending" {
		t.Fatalf("unexpected history: %+v", created.StatusHistory)
	}

	product, err := api.catalog.GetProduct("p-1")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if product.Stock != 8 {
		t.Fatalf("stock = %d, want 8", product.Stock)
	}
}

func TestCreateOrderEndpointValidation(t *testing.T) {
	api := newTestAPI(t)

	body := validCreateBody()
	body["items"] = []map[string]interface{}{}
	rec := api.do(t, http.MethodPost, "/api/v1/orders", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if kind := decodeError(t, rec).Kind; kind != "validation" {
		t.Fatalf("error kind = %s, want validation", kind)
	}
}

func TestCreateOrderEndpointMalformedJSON(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateOrderEndpointInsufficientStock(t *testing.T) {
	api := newTestAPI(t)

	body := validCreateBody()
	body["items"] = []map[string]interface{}{{"product_id": "p-2", "qty": 6}}
	rec := api.do(t, http.MethodPost, "/api/v1/orders", body, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body %s", rec.Code, rec.Body.String())
	}
	errBody := decodeError(t, rec)
	if errBody.Details["product_id"] != "p-2" {
		t.Fatalf("details = %v, want product_id p-2", errBody.Details)
	}
}

func TestGetOrderEndpoint(t *testing.T) {
	api := newTestAPI(t)
	created := api.createOrder(t)

	rec := api.do(t, http.MethodGet, "/api/v1/orders/"+created.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decodeOrder(t, rec); got.Number != created.Number {
		t.Fatalf("number = %s, want %s", got.Number, created.Number)
	}

	rec = api.do(t, http.MethodGet, "/api/v1/orders/number/"+created.Number, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup by number: status %d", rec.Code)
	}
	if got := decodeOrder(t, rec); got.ID != created.ID {
		t.Fatalf("id = %s, want %s", got.ID, created.ID)
	}
}

func TestGetOrderEndpointNotFound(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/orders/missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListUserOrdersEndpoint(t *testing.T) {
	api := newTestAPI(t)
	first := api.createOrder(t)
	api.createOrder(t)

	rec := api.do(t, http.MethodGet, "/api/v1/users/u-1/orders", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var listed struct {
		Orders []orderResponse `json:"orders"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(listed.Orders))
	}

	firstPage := listed.Orders[0].ID

	rec = api.do(t, http.MethodGet, "/api/v1/users/u-1/orders?status=pending&limit=1&offset=1", nil, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode filtered list: %v", err)
	}
	if len(listed.Orders) != 1 {
		t.Fatalf("got %d orders after paging, want 1", len(listed.Orders))
	}
	if listed.Orders[0].ID == firstPage {
		t.Fatalf("offset=1 returned the same order %s as the first page", firstPage)
	}
	if id := listed.Orders[0].ID; id != first.ID && firstPage != first.ID {
		t.Fatalf("neither page contained order %s, got %s and %s", first.ID, firstPage, id)
	}
}

func TestListUserOrdersEndpointUnknownUser(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/users/u-ghost/orders", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestTransitionStatusEndpoint(t *testing.T) {
	api := newTestAPI(t)
	created := api.createOrder(t)

	rec := api.do(t, http.MethodPost, "/api/v1/orders/"+created.ID+"/status",
		map[string]interface{}{"status": "confirmed", "actor": "ops", "note": "payment checked"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	updated := decodeOrder(t, rec)
	if updated.Status != "confirmed" {
		t.Fatalf("order status = %s, want confirmed", updated.Status)
	}
	if len(updated.StatusHistory) != 2 || updated.StatusHistory[1].Actor != "ops" {
		t.Fatalf("unexpected history: %+v", updated.StatusHistory)
	}

	rec = api.do(t, http.MethodPost, "/api/v1/orders/"+created.ID+"/status",
		map[string]interface{}{"status": "delivered"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("invalid transition: status %d, want 409", rec.Code)
	}
}

func TestCancelOrderEndpoint(t *testing.T) {
	api := newTestAPI(t)
	created := api.createOrder(t)

	rec := api.do(t, http.MethodPost, "/api/v1/orders/"+created.ID+"/cancel",
		map[string]interface{}{"actor": "customer", "reason": "changed mind"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeOrder(t, rec); got.Status != "cancelled" {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}

	product, err := api.catalog.GetProduct("p-1")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if product.Stock != 10 {
		t.Fatalf("stock after cancel = %d, want 10", product.Stock)
	}
}

func TestSetPaymentStatusEndpoint(t *testing.T) {
	api := newTestAPI(t)
	created := api.createOrder(t)

	rec := api.do(t, http.MethodPost, "/api/v1/orders/"+created.ID+"/payment-status",
		map[string]interface{}{"payment_status": "paid"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeOrder(t, rec); got.PaymentStatus != "paid" {
		t.Fatalf("payment status = %s, want paid", got.PaymentStatus)
	}

	rec = api.do(t, http.MethodPost, "/api/v1/orders/"+created.ID+"/payment-status",
		map[string]interface{}{"payment_status": "sideways"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid payment status: code %d, want 400", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/livez"} {
		rec := api.do(t, http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d, want 200", path, rec.Code)
		}
	}
}
