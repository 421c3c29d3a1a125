package product

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/georgemunganga/stockwatch/internal/modules/changefeed"
	"github.com/georgemunganga/stockwatch/internal/modules/tenant"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

func newTestRouter(t *testing.T) (http.Handler, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(changefeed.NewLog(1))
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.NotFound(Unsupported)
	r.MethodNotAllowed(Unsupported)
	NewHandler(NewService(store), tenant.Resolver{Header: "X-Shop-Id"}).RegisterRoutes(r)
	return r, store
}

func do(t *testing.T, h http.Handler, method, path, shop, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if shop != "" {
		req.Header.Set("X-Shop-Id", shop)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeProduct(t *testing.T, rec *httptest.ResponseRecorder) Product {
	t.Helper()
	var p Product
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode product: %v (%s)", err, rec.Body.String())
	}
	return p
}

func TestCreateAndGetProduct(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/products", "S1", `{"name":"Mug","price":4.5,"stock":10,"threshold":3}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeProduct(t, rec)
	if created.TenantID != "S1" || created.ProductID == "" || created.Stock != 10 {
		t.Fatalf("unexpected created product: %+v", created)
	}
	if !strings.Contains(rec.Body.String(), `"price":4.5`) {
		t.Fatalf("price should be a JSON number: %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/products/"+created.ProductID, "S1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeProduct(t, rec); got.Name != "Mug" || got.Threshold != 3 {
		t.Fatalf("unexpected product: %+v", got)
	}
}

func TestGetMissingProductIsEmptyObject(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/products/nope", "S1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Fatalf("expected {}, got %s", rec.Body.String())
	}
}

func TestTenantIsolationOverHTTP(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/products", "S1", `{"productId":"P1","name":"Mug"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/products/P1", "S2", "")
	if strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Fatalf("other tenant must not see P1: %s", rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/products", "S2", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("other tenant list should be empty: %s", rec.Body.String())
	}
}

func TestCreateConflictAndValidation(t *testing.T) {
	h, _ := newTestRouter(t)
	_ = do(t, h, http.MethodPost, "/products", "S1", `{"productId":"P1"}`)
	if rec := do(t, h, http.MethodPost, "/products", "S1", `{"productId":"P1"}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/products", "S1", `{"price":-1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative price, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/products", "S1", `{"tenantId":"S2"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for tenantId in body, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/products", "S1", `{`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rec.Code)
	}
}

func TestPatchProduct(t *testing.T) {
	h, _ := newTestRouter(t)
	_ = do(t, h, http.MethodPost, "/products", "S1", `{"productId":"P1","name":"Mug","stock":10,"threshold":5}`)

	rec := do(t, h, http.MethodPatch, "/products/P1", "S1", `{"stock":4}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeProduct(t, rec); got.Stock != 4 || got.Name != "Mug" || got.Threshold != 5 {
		t.Fatalf("unexpected patched product: %+v", got)
	}
	if rec := do(t, h, http.MethodPatch, "/products/P1", "S1", `{"tenantId":"S2"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for immutable field, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPatch, "/products/missing", "S1", `{"stock":1}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdjustAndDelete(t *testing.T) {
	h, _ := newTestRouter(t)
	_ = do(t, h, http.MethodPost, "/products", "S1", `{"productId":"P1","stock":10}`)

	rec := do(t, h, http.MethodPost, "/products/P1/adjust", "S1", `{"delta":-3,"reason":"sale"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeProduct(t, rec); got.Stock != 7 {
		t.Fatalf("expected stock 7, got %d", got.Stock)
	}
	if rec := do(t, h, http.MethodPost, "/products/P1/adjust", "S1", `{"delta":0}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero delta, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/products/P1/adjust", "S1", `{"delta":9223372036854775807}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for overflowing delta, got %d", rec.Code)
	}
	if got := decodeProduct(t, do(t, h, http.MethodGet, "/products/P1", "S1", "")); got.Stock != 7 {
		t.Fatalf("overflowing adjust must leave stock at 7, got %d", got.Stock)
	}
	if rec := do(t, h, http.MethodDelete, "/products/P1", "S1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/products/P1", "S1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMissingTenantIsUnauthorized(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/products", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestUnsupportedOperation(t *testing.T) {
	h, _ := newTestRouter(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodPut, "/products/P1"},
		{http.MethodGet, "/widgets"},
		{http.MethodDelete, "/products"},
	} {
		rec := do(t, h, tc.method, tc.path, "S1", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d", tc.method, tc.path, rec.Code)
		}
		var body errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode error body: %v", err)
		}
		if body.Message != "Unsupported operation" || body.RequestID == "" {
			t.Fatalf("unexpected error body: %+v", body)
		}
	}
}

func TestSchemaEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/schema/patch", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	props, _ := doc["properties"].(map[string]any)
	if _, ok := props["stock"]; !ok {
		t.Fatalf("patch schema lacks stock: %s", rec.Body.String())
	}
	if _, ok := props["tenantId"]; ok {
		t.Fatalf("patch schema must not list tenantId")
	}
	if rec := do(t, h, http.MethodGet, "/schema/nope", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown schema, got %d", rec.Code)
	}
}

func TestProductPriceIsJSONNumber(t *testing.T) {
	if decimal.MarshalJSONWithoutQuotes {
		t.Fatalf("package must not change the global decimal encoding")
	}
	b, err := json.Marshal(Product{TenantID: "S1", ProductID: "P1", Price: decimal.RequireFromString("4.50")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"price":4.5`) || strings.Count(string(b), `"price"`) != 1 {
		t.Fatalf("unexpected encoding: %s", b)
	}
	var back Product
	if err := json.Unmarshal(b, &back); err != nil || !back.Price.Equal(decimal.RequireFromString("4.5")) || back.ProductID != "P1" {
		t.Fatalf("decode: %+v %v", back, err)
	}
	if b, _ := json.Marshal(decimal.RequireFromString("1.5")); string(b) != `"1.5"` {
		t.Fatalf("plain decimals keep their default encoding: %s", b)
	}
}
