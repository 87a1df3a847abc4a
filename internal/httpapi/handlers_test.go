package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"inventario/internal/auth"
	"inventario/internal/domain"
	"inventario/internal/service"
	"inventario/internal/store/memory"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	repo := memory.NewSeeded()
	authSvc := auth.New(repo, time.Hour, auth.Defaults{})
	svc := service.New(repo, nil, 0)
	return New(svc, authSvc).Handler()
}

func doJSON(t *testing.T, h http.Handler, method string, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler, username string, password string) *http.Cookie {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d, body %s", username, rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatalf("login %s: no session cookie set", username)
	return nil
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func firstProductByCode(t *testing.T, h http.Handler, cookie *http.Cookie, code string) domain.Product {
	t.Helper()
	rec := doJSON(t, h, http.MethodGet, "/api/products", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("list products: status %d", rec.Code)
	}
	for _, p := range decodeBody[[]domain.Product](t, rec) {
		if p.Code == code {
			return p
		}
	}
	t.Fatalf("seeded product %s not found", code)
	return domain.Product{}
}

func TestLoginSetsHttpOnlySessionCookie(t *testing.T) {
	h := newTestHandler(t)
	cookie := login(t, h, "admin", "admin123")

	if !cookie.HttpOnly {
		t.Fatal("expected HttpOnly session cookie")
	}
	if cookie.Path != "/" {
		t.Fatalf("cookie path: got %q, want /", cookie.Path)
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie SameSite: got %v, want Lax", cookie.SameSite)
	}
	if cookie.Expires.IsZero() || !cookie.Expires.After(time.Now()) {
		t.Fatalf("expected future cookie expiry, got %v", cookie.Expires)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "admin",
		"password": "wrong",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["error"] != "invalid credentials" {
		t.Fatalf("expected generic error, got %q", body["error"])
	}
}

func TestLoginValidatesBody(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/auth/login", map[string]string{"username": "admin"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
}

func TestSessionEndpointReflectsCookie(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/api/auth/session", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous session: status %d", rec.Code)
	}
	if resp := decodeBody[domain.SessionResponse](t, rec); resp.Authenticated || resp.User != nil {
		t.Fatalf("expected unauthenticated response, got %+v", resp)
	}

	cookie := login(t, h, "seller", "seller123")
	rec = doJSON(t, h, http.MethodGet, "/api/auth/session", nil, cookie)
	resp := decodeBody[domain.SessionResponse](t, rec)
	if !resp.Authenticated || resp.User == nil || resp.User.Username != "seller" {
		t.Fatalf("expected seller session, got %+v", resp)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	h := newTestHandler(t)
	cookie := login(t, h, "admin", "admin123")

	rec := doJSON(t, h, http.MethodPost, "/api/auth/logout", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status %d", rec.Code)
	}
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("expected logout to clear the session cookie")
	}

	rec = doJSON(t, h, http.MethodGet, "/api/auth/session", nil, cookie)
	if resp := decodeBody[domain.SessionResponse](t, rec); resp.Authenticated {
		t.Fatal("expected revoked session to be unauthenticated")
	}

	rec = doJSON(t, h, http.MethodPost, "/api/auth/logout", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("second logout should still succeed, got %d", rec.Code)
	}
}

func TestProductLifecycleAsAdmin(t *testing.T) {
	h := newTestHandler(t)
	cookie := login(t, h, "admin", "admin123")

	rec := doJSON(t, h, http.MethodPost, "/api/products", domain.ProductCreateRequest{
		Code:      "TE-100",
		Name:      "Té verde",
		UnitCost:  2,
		SalePrice: 5,
	}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[domain.Product](t, rec)
	if created.ID == "" || created.CurrentStock != 0 {
		t.Fatalf("unexpected created product %+v", created)
	}

	newPrice := 6.5
	rec = doJSON(t, h, http.MethodPut, "/api/products", domain.ProductUpdateRequest{
		ID:        created.ID,
		SalePrice: &newPrice,
	}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d, body %s", rec.Code, rec.Body.String())
	}
	if got := firstProductByCode(t, h, cookie, "TE-100"); got.SalePrice != newPrice {
		t.Fatalf("sale price after update: got %v, want %v", got.SalePrice, newPrice)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/products?id="+created.ID, nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/products", domain.ProductCreateRequest{
		Code: "", Name: "", UnitCost: 0, SalePrice: 0,
	}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid create: status %d, want 400", rec.Code)
	}
}

func TestSellerCannotMutateProducts(t *testing.T) {
	h := newTestHandler(t)
	cookie := login(t, h, "seller", "seller123")

	rec := doJSON(t, h, http.MethodPost, "/api/products", domain.ProductCreateRequest{
		Code: "NO-1", Name: "No", UnitCost: 1, SalePrice: 2,
	}, cookie)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("seller create product: status %d, want 403", rec.Code)
	}
}

func TestSellerSubmitsSale(t *testing.T) {
	h := newTestHandler(t)
	cookie := login(t, h, "seller", "seller123")
	product := firstProductByCode(t, h, cookie, "CAF-250")

	rec := doJSON(t, h, http.MethodPost, "/api/sales", map[string]any{
		"items": []map[string]any{{"productId": product.ID, "quantity": 1}},
	}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale: status %d, body %s", rec.Code, rec.Body.String())
	}
	receipt := decodeBody[domain.SaleReceipt](t, rec)
	if len(receipt.Items) != 1 || receipt.Items[0].SellerName != "seller" {
		t.Fatalf("expected seller-attributed sale line, got %+v", receipt.Items)
	}
}

func TestCheckoutInsufficientStockConflict(t *testing.T) {
	h := newTestHandler(t)
	cookie := login(t, h, "admin", "admin123")
	product := firstProductByCode(t, h, cookie, "CAF-250")

	rec := doJSON(t, h, http.MethodPost, "/api/sales", map[string]any{
		"items": []map[string]any{{"productId": product.ID, "quantity": 1e9}},
	}, cookie)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want 409", rec.Code)
	}
	if body := decodeBody[map[string]string](t, rec); !strings.Contains(body["error"], "CAF-250") {
		t.Fatalf("expected error to name product code, got %q", body["error"])
	}
}

func TestSellerForbiddenFromAdminAPI(t *testing.T) {
	h := newTestHandler(t)
	cookie := login(t, h, "seller", "seller123")

	for _, path := range []string{"/api/entries", "/api/summary", "/api/prices/adjust"} {
		rec := doJSON(t, h, http.MethodGet, path, nil, cookie)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: status %d, want 403", path, rec.Code)
		}
	}
}

func TestUnauthenticatedAPIRequestsGet401(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/api/products", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", rec.Code)
	}
}

func TestPageGateRedirects(t *testing.T) {
	h := newTestHandler(t)
	adminCookie := login(t, h, "admin", "admin123")
	sellerCookie := login(t, h, "seller", "seller123")

	cases := []struct {
		name     string
		cookie   *http.Cookie
		path     string
		location string
	}{
		{"anonymous page carries origin", nil, "/productos", "/login?from=/productos"},
		{"anonymous root", nil, "/", "/login"},
		{"admin leaves login", adminCookie, "/login", "/resumen"},
		{"seller leaves login", sellerCookie, "/login", "/salidas"},
		{"seller confined to own page", sellerCookie, "/resumen", "/salidas?denied=1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodGet, tc.path, nil, tc.cookie)
			if rec.Code != http.StatusFound {
				t.Fatalf("status: got %d, want 302", rec.Code)
			}
			if got := rec.Header().Get("Location"); got != tc.location {
				t.Fatalf("location: got %q, want %q", got, tc.location)
			}
		})
	}
}

func TestEntriesAndSummaryAsAdmin(t *testing.T) {
	h := newTestHandler(t)
	cookie := login(t, h, "admin", "admin123")
	product := firstProductByCode(t, h, cookie, "AZU-1K")

	rec := doJSON(t, h, http.MethodPost, "/api/entries", domain.EntryCreateRequest{
		ProductID: product.ID,
		Quantity:  5,
		UnitCost:  2,
	}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("entry: status %d, body %s", rec.Code, rec.Body.String())
	}
	entry := decodeBody[domain.Entry](t, rec)
	if entry.TotalCost != 10 {
		t.Fatalf("entry total cost: got %v, want 10", entry.TotalCost)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/summary", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: status %d", rec.Code)
	}
	if summary := decodeBody[domain.Summary](t, rec); summary.TotalInvested <= 0 {
		t.Fatalf("expected positive invested total, got %+v", summary)
	}
}

func TestPriceAdjustEndpoint(t *testing.T) {
	h := newTestHandler(t)
	cookie := login(t, h, "admin", "admin123")

	rec := doJSON(t, h, http.MethodPost, "/api/prices/adjust", map[string]any{"percent": 10}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("adjust: status %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[domain.PriceAdjustResponse](t, rec)
	if !resp.OK || resp.Adjusted < 1 {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/prices/adjust", map[string]any{}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing percent: status %d, want 400", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t)
	cookie := login(t, h, "admin", "admin123")

	rec := doJSON(t, h, http.MethodDelete, "/api/sales", nil, cookie)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: got %d, want 405", rec.Code)
	}
}
