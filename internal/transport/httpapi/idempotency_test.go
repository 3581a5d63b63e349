package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestIdempotentCreateReplaysResponse(t *testing.T) {
	api := newTestAPI(t)
	headers := map[string]string{idempotencyHeader: "key-1"}

	first := api.do(t, http.MethodPost, "/api/v1/orders", validCreateBody(), headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("first request: status %d, body %s", first.Code, first.Body.String())
	}
	if first.Header().Get(idempotencyReplayedHeader) != "" {
		t.Fatalf("first request must not be marked as replayed")
	}

	second := api.do(t, http.MethodPost, "/api/v1/orders", validCreateBody(), headers)
	if second.Code != http.StatusCreated {
		t.Fatalf("replay: status %d, body %s", second.Code, second.Body.String())
	}
	if second.Header().Get(idempotencyReplayedHeader) != "true" {
		t.Fatalf("replay must carry the %s header", idempotencyReplayedHeader)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replayed body differs:\nfirst:  %s\nsecond: %s", first.Body.String(), second.Body.String())
	}

	created := decodeOrder(t, second)
	product, err := api.catalog.GetProduct("p-1")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if product.Stock != 8 {
		t.Fatalf("stock = %d, want 8: order %s must be created exactly once", product.Stock, created.Number)
	}
}

func TestIdempotencyKeyReusedWithDifferentPayload(t *testing.T) {
	api := newTestAPI(t)
	headers := map[string]string{idempotencyHeader: "key-1"}

	if rec := api.do(t, http.MethodPost, "/api/v1/orders", validCreateBody(), headers); rec.Code != http.StatusCreated {
		t.Fatalf("first request: status %d", rec.Code)
	}

	other := validCreateBody()
	other["items"] = []map[string]interface{}{{"product_id": "p-2", "qty": 1}}
	rec := api.do(t, http.MethodPost, "/api/v1/orders", other, headers)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != "idempotency_hash_mismatch" {
		t.Fatalf("error code = %s, want idempotency_hash_mismatch", code)
	}
}

func TestIdempotentFailureIsReplayed(t *testing.T) {
	api := newTestAPI(t)
	headers := map[string]string{idempotencyHeader: "key-err"}

	body := validCreateBody()
	body["items"] = []map[string]interface{}{{"product_id": "p-ghost", "qty": 1}}

	first := api.do(t, http.MethodPost, "/api/v1/orders", body, headers)
	if first.Code != http.StatusNotFound {
		t.Fatalf("first request: status %d, want 404", first.Code)
	}

	second := api.do(t, http.MethodPost, "/api/v1/orders", body, headers)
	if second.Code != http.StatusNotFound {
		t.Fatalf("replay: status %d, want 404", second.Code)
	}
	if second.Header().Get(idempotencyReplayedHeader) != "true" {
		t.Fatalf("failed response must still be replayed")
	}
}

func TestRequestsWithoutKeyAreIndependent(t *testing.T) {
	api := newTestAPI(t)

	var numbers [2]string
	for i := range numbers {
		rec := api.do(t, http.MethodPost, "/api/v1/orders", validCreateBody(), nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
		var resp orderResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		numbers[i] = resp.Number
	}
	if numbers[0] == numbers[1] {
		t.Fatalf("orders without idempotency key must be distinct, both got %s", numbers[0])
	}
}
