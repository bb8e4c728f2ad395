package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vastra/backend/internal/cache"
	"vastra/backend/internal/domain"
	"vastra/backend/internal/service"
	"vastra/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopCouponCache{}, service.Pricing{
		TaxRatePercent:       5,
		ShippingFlatPaise:    9900,
		FreeShippingMinPaise: 199900,
	})
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

// loginAs logs in through the real handler and returns the access token.
func loginAs(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	payload, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed with status %d (body: %s)", username, rec.Code, rec.Body.String())
	}

	var body domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	return body.AccessToken
}

func loginAsAdmin(t *testing.T, api *API) string {
	t.Helper()
	return loginAs(t, api, "admin", "admin123")
}

func loginAsCustomer(t *testing.T, api *API) string {
	t.Helper()
	return loginAs(t, api, "customer", "customer123")
}

// doJSON issues an authenticated JSON request through the full middleware
// chain, including the CSRF header for mutating methods.
func doJSON(t *testing.T, api *API, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	}

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
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
	if body := decodeBody(t, rec); body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	if token == "" {
		t.Fatalf("expected access token")
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleRegister_ThenLogin(t *testing.T) {
	api := newTestAPI(t)

	payload, _ := json.Marshal(domain.RegisterRequest{Username: "priya", Password: "s3cret-pass"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	token := loginAs(t, api, "priya", "s3cret-pass")
	if token == "" {
		t.Fatalf("expected registered customer to log in")
	}
}

func TestCatalogIsPublic(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected public catalog, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/products/VST-TEE-01", nil)
	rec = httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected public product detail, got %d", rec.Code)
	}
}

func TestProductCreateRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCustomer(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{
		SKU: "VST-SCARF-01", Name: "Silk Scarf", Category: "scarves", PricePaise: 99900,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", rec.Code)
	}

	admin := loginAsAdmin(t, api)
	rec = doJSON(t, api, http.MethodPost, "/api/v1/products", admin, domain.ProductCreateRequest{
		SKU: "VST-SCARF-01", Name: "Silk Scarf", Category: "scarves", PricePaise: 99900,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCheckoutRequiresToken(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/checkout", "", domain.CheckoutRequest{
		Items:         []domain.CartItem{{SKU: "VST-TEE-01", Qty: 1}},
		PaymentMethod: domain.PaymentMethodCOD,
		ShipTo:        "1 Test Lane",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestCheckoutFlow(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCustomer(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/checkout", token, domain.CheckoutRequest{
		Items:         []domain.CartItem{{SKU: "VST-TEE-01", Size: "M", Qty: 2}},
		PaymentMethod: domain.PaymentMethodCOD,
		ShipTo:        "12 MG Road, Bengaluru 560001",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.CheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode checkout response: %v", err)
	}
	if resp.SubtotalPaise != 139800 || resp.TotalPaise != 156690 {
		t.Fatalf("unexpected totals: subtotal %d total %d", resp.SubtotalPaise, resp.TotalPaise)
	}
	if resp.PaymentStatus != domain.PaymentPending {
		t.Fatalf("expected cod order pending, got %s", resp.PaymentStatus)
	}

	listRec := doJSON(t, api, http.MethodGet, "/api/v1/orders", token, nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing orders, got %d", listRec.Code)
	}
	body := decodeBody(t, listRec)
	orders, ok := body["orders"].([]any)
	if !ok || len(orders) != 1 {
		t.Fatalf("expected 1 order, got %v", body["orders"])
	}
}

func TestCheckoutUnknownCouponReturnsCode(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCustomer(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/checkout", token, domain.CheckoutRequest{
		Items:         []domain.CartItem{{SKU: "VST-TEE-01", Qty: 1}},
		CouponCode:    "DOESNOTEXIST",
		PaymentMethod: domain.PaymentMethodCOD,
		ShipTo:        "12 MG Road, Bengaluru 560001",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["error"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND code, got %v", body["error"])
	}
}

func TestCouponPreviewEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCustomer(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/coupons/preview", token, domain.CouponPreviewRequest{
		Code:  "FESTIVE500",
		Items: []domain.CartItem{{SKU: "VST-SAREE-01", Qty: 1}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.CouponPreviewResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if !resp.Valid || resp.DiscountPaise != 50000 {
		t.Fatalf("unexpected preview %+v", resp)
	}
}

func TestCancelOrderEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCustomer(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/checkout", token, domain.CheckoutRequest{
		Items:         []domain.CartItem{{SKU: "VST-TEE-01", Qty: 1}},
		PaymentMethod: domain.PaymentMethodCOD,
		ShipTo:        "3 Jubilee Hills, Hyderabad 500033",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout failed: %d", rec.Code)
	}
	var placed domain.CheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&placed); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}

	cancelRec := doJSON(t, api, http.MethodPost, "/api/v1/orders/"+placed.OrderID+"/cancel", token, domain.CancelOrderRequest{Reason: "changed my mind"})
	if cancelRec.Code != http.StatusOK {
		t.Fatalf("expected 200 cancelling, got %d (body: %s)", cancelRec.Code, cancelRec.Body.String())
	}

	// Cancelling a cancelled order is an illegal transition with from/to in
	// the response body.
	againRec := doJSON(t, api, http.MethodPost, "/api/v1/orders/"+placed.OrderID+"/cancel", token, domain.CancelOrderRequest{})
	if againRec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", againRec.Code)
	}
	body := decodeBody(t, againRec)
	if body["error"] != "ILLEGAL_TRANSITION" {
		t.Fatalf("expected ILLEGAL_TRANSITION, got %v", body["error"])
	}
	if body["from"] != domain.OrderStatusCancelled || body["to"] != domain.OrderStatusCancelled {
		t.Fatalf("expected from/to in body, got %v", body)
	}
}

func TestAdminPaymentRejectCancelsOrder(t *testing.T) {
	api := newTestAPI(t)
	customer := loginAsCustomer(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/checkout", customer, domain.CheckoutRequest{
		Items:         []domain.CartItem{{SKU: "VST-KURTA-01", Size: "M", Qty: 1}},
		PaymentMethod: domain.PaymentMethodUPI,
		UPIReference:  "UTR123456789",
		ShipTo:        "31 Connaught Place, New Delhi 110001",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout failed: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var placed domain.CheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&placed); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}
	if placed.PaymentStatus != domain.PaymentAwaitingVerification {
		t.Fatalf("expected awaiting_verification, got %s", placed.PaymentStatus)
	}

	admin := loginAsAdmin(t, api)
	rejectRec := doJSON(t, api, http.MethodPost, "/api/v1/admin/orders/"+placed.OrderID+"/payment", admin, domain.PaymentDecisionRequest{Approve: false, Note: "no matching transfer"})
	if rejectRec.Code != http.StatusOK {
		t.Fatalf("expected 200 rejecting, got %d (body: %s)", rejectRec.Code, rejectRec.Body.String())
	}

	body := decodeBody(t, rejectRec)
	order, ok := body["order"].(map[string]any)
	if !ok {
		t.Fatalf("expected order in body, got %v", body)
	}
	if order["payment_status"] != domain.PaymentFailed {
		t.Fatalf("expected failed, got %v", order["payment_status"])
	}
	if order["status"] != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %v", order["status"])
	}
}

func TestAdminFulfillmentAdvance(t *testing.T) {
	api := newTestAPI(t)
	customer := loginAsCustomer(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/checkout", customer, domain.CheckoutRequest{
		Items:         []domain.CartItem{{SKU: "VST-TEE-01", Qty: 1}},
		PaymentMethod: domain.PaymentMethodCOD,
		ShipTo:        "19 Law Garden, Ahmedabad 380006",
	})
	var placed domain.CheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&placed); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}

	admin := loginAsAdmin(t, api)
	advRec := doJSON(t, api, http.MethodPost, "/api/v1/admin/orders/"+placed.OrderID+"/status", admin, domain.StatusAdvanceRequest{Status: domain.OrderStatusShipped})
	if advRec.Code != http.StatusOK {
		t.Fatalf("expected 200 advancing, got %d (body: %s)", advRec.Code, advRec.Body.String())
	}

	// shipped -> confirmed is backwards and must 409.
	backRec := doJSON(t, api, http.MethodPost, "/api/v1/admin/orders/"+placed.OrderID+"/status", admin, domain.StatusAdvanceRequest{Status: domain.OrderStatusConfirmed})
	if backRec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for backwards transition, got %d", backRec.Code)
	}
	if body := decodeBody(t, backRec); body["error"] != "ILLEGAL_TRANSITION" {
		t.Fatalf("expected ILLEGAL_TRANSITION, got %v", body["error"])
	}
}

func TestAdminRoutesForbiddenForCustomers(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCustomer(t, api)

	for _, path := range []string{
		"/api/v1/admin/orders",
		"/api/v1/admin/coupons",
		"/api/v1/admin/audit-logs",
	} {
		rec := doJSON(t, api, http.MethodGet, path, token, nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for %s, got %d", path, rec.Code)
		}
	}
}

func TestAdminCouponLifecycleEndpoints(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)

	now := time.Now().UTC()
	createRec := doJSON(t, api, http.MethodPost, "/api/v1/admin/coupons", admin, domain.CouponCreateRequest{
		Code:       "SUMMER20",
		Type:       domain.CouponTypePercent,
		Percent:    20,
		ValidFrom:  now,
		ValidUntil: now.Add(30 * 24 * time.Hour),
	})
	if createRec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", createRec.Code, createRec.Body.String())
	}
	body := decodeBody(t, createRec)
	coupon, ok := body["coupon"].(map[string]any)
	if !ok {
		t.Fatalf("expected coupon in body, got %v", body)
	}
	couponID, _ := coupon["id"].(string)
	if couponID == "" {
		t.Fatalf("expected coupon id, got %v", coupon)
	}

	toggleRec := doJSON(t, api, http.MethodPost, "/api/v1/admin/coupons/"+couponID+"/active", admin, map[string]bool{"active": false})
	if toggleRec.Code != http.StatusOK {
		t.Fatalf("expected 200 toggling, got %d (body: %s)", toggleRec.Code, toggleRec.Body.String())
	}

	listRec := doJSON(t, api, http.MethodGet, "/api/v1/admin/coupons", admin, nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing coupons, got %d", listRec.Code)
	}
}

func TestAuditLogsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	customer := loginAsCustomer(t, api)

	doJSON(t, api, http.MethodPost, "/api/v1/checkout", customer, domain.CheckoutRequest{
		Items:         []domain.CartItem{{SKU: "VST-TEE-01", Qty: 1}},
		PaymentMethod: domain.PaymentMethodCOD,
		ShipTo:        "6 Baner Road, Pune 411045",
	})

	admin := loginAsAdmin(t, api)
	rec := doJSON(t, api, http.MethodGet, "/api/v1/admin/audit-logs", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	logs, ok := body["logs"].([]any)
	if !ok || len(logs) == 0 {
		t.Fatalf("expected audit entries, got %v", body["logs"])
	}
}
