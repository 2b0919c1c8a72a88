package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"stockledger/backend/internal/billpdf"
	"stockledger/backend/internal/domain"
	"stockledger/backend/internal/service"
	"stockledger/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, zerolog.Nop())
	auth := NewAuthManager("test-secret-key", time.Hour, repo)
	bills, err := billpdf.NewRenderer("", nil, billpdf.BusinessInfo{Name: "Test Traders"})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}

	return New(svc, auth, bills, "*")
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func doJSON(t *testing.T, api *API, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
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
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
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

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"user_id":  "admin",
		"password": "admin123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["token"] == "" || body["token"] == nil {
		t.Fatalf("expected token in response, got %v", body)
	}
	if body["role"] != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %v", body["role"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"user_id":  "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestItemsRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestListItemsHidesPurchaseRateFromSales(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "sales", "sales123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/items", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "purchase_rate_paise") {
		t.Fatalf("expected purchase rate to be hidden from sales role")
	}
}

func TestGetItemShowsPurchaseRateToSuperAdmin(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "superadmin", "super123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/items/item-seed-01", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "purchase_rate_paise") {
		t.Fatalf("expected purchase rate to be visible to super_admin")
	}
}

func TestCreateItemForbiddenForSales(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "sales", "sales123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/items", token, csrf, map[string]any{
		"product_name":    "Cable Tie 200mm",
		"sale_rate_paise": 1500,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for sales creating item, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCreateItemAsAdmin(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/items", token, csrf, map[string]any{
		"product_name":        "Cable Tie 200mm",
		"product_code":        "CT-200",
		"brand":               "GiffexIndia",
		"sale_rate_paise":     1500,
		"purchase_rate_paise": 900,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Cable Tie 200mm") {
		t.Fatalf("expected created item in response")
	}
}

func TestSaleLifecycle(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "sales", "sales123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/transactions/sale", token, csrf, map[string]any{
		"seller_party_id": "party-seed-02",
		"payment_status":  "fully_paid",
		"with_gst":        true,
		"items": []map[string]any{
			{"item_id": "item-seed-02", "quantity": 2, "sale_rate_paise": 11000},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var created struct {
		Sale domain.SaleTransaction `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	sale := created.Sale
	if sale.BillNumber == "" {
		t.Fatalf("expected bill number to be assigned")
	}
	if sale.TotalAmountPaise != 22000 {
		t.Fatalf("expected total 22000, got %d", sale.TotalAmountPaise)
	}
	// GST-inclusive: 22000 / 1.18 rounds to 18644 taxable, 3356 tax.
	if sale.SubtotalPaise != 18644 || sale.TaxAmountPaise != 3356 {
		t.Fatalf("unexpected tax split: subtotal %d tax %d", sale.SubtotalPaise, sale.TaxAmountPaise)
	}
	if sale.PaidAmountPaise != 22000 || sale.BalanceAmountPaise != 0 {
		t.Fatalf("fully paid sale should settle at zero balance, got paid %d balance %d", sale.PaidAmountPaise, sale.BalanceAmountPaise)
	}

	// Stock must drop from 120 to 118.
	itemRec := doJSON(t, api, http.MethodGet, "/api/v1/items/item-seed-02", token, "", nil)
	var itemBody struct {
		Item domain.Item `json:"item"`
	}
	if err := json.NewDecoder(itemRec.Body).Decode(&itemBody); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if itemBody.Item.Quantity != 118 {
		t.Fatalf("expected quantity 118 after sale, got %d", itemBody.Item.Quantity)
	}

	// Posted sale is retrievable by id.
	getRec := doJSON(t, api, http.MethodGet, "/api/v1/transactions/sales/"+sale.ID, token, "", nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching sale, got %d", getRec.Code)
	}

	// The bill renders as HTML when no PDF converter is configured.
	billRec := doJSON(t, api, http.MethodGet, "/api/v1/bills/"+sale.ID+"/pdf", token, "", nil)
	if billRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for bill, got %d (body: %s)", billRec.Code, billRec.Body.String())
	}
	if ct := billRec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("expected html fallback, got content type %q", ct)
	}
	if !strings.Contains(billRec.Body.String(), sale.BillNumber) {
		t.Fatalf("expected bill number in rendered invoice")
	}
}

func TestSaleInsufficientStockConflicts(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "sales", "sales123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/transactions/sale", token, csrf, map[string]any{
		"seller_party_id": "party-seed-02",
		"payment_status":  "fully_paid",
		"items": []map[string]any{
			{"item_id": "item-seed-04", "quantity": 999, "sale_rate_paise": 6200},
		},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for oversell, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestOrdersListAndExport(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/orders?status=pending", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	// item-seed-04 is seeded below its alert threshold.
	if !strings.Contains(rec.Body.String(), "item-seed-04") {
		t.Fatalf("expected low-stock seed item in pending orders")
	}

	exportRec := doJSON(t, api, http.MethodGet, "/api/v1/orders/export", token, "", nil)
	if exportRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for export, got %d", exportRec.Code)
	}
	if ct := exportRec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("expected xlsx content type, got %q", ct)
	}
}

func TestSalesReportProfitOnlyForSuperAdmin(t *testing.T) {
	api := newTestAPI(t)
	salesToken := loginAs(t, api, "sales", "sales123")
	superToken := loginAs(t, api, "superadmin", "super123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/transactions/sale", salesToken, csrf, map[string]any{
		"seller_party_id": "party-seed-02",
		"payment_status":  "fully_paid",
		"with_gst":        true,
		"items": []map[string]any{
			{"item_id": "item-seed-05", "quantity": 1, "sale_rate_paise": 21500},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale posting failed: %d (body: %s)", rec.Code, rec.Body.String())
	}

	salesRec := doJSON(t, api, http.MethodGet, "/api/v1/reports/sales", salesToken, "", nil)
	if salesRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", salesRec.Code)
	}
	if strings.Contains(salesRec.Body.String(), "total_profit_paise") {
		t.Fatalf("expected profit to be hidden from sales role")
	}

	superRec := doJSON(t, api, http.MethodGet, "/api/v1/reports/sales", superToken, "", nil)
	if superRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", superRec.Code)
	}
	if !strings.Contains(superRec.Body.String(), "total_profit_paise") {
		t.Fatalf("expected profit figure for super_admin")
	}
}

func TestAuditLogsForbiddenForSales(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "sales", "sales123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/audit-logs", token, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRegisterRequiresSuperAdmin(t *testing.T) {
	api := newTestAPI(t)
	adminToken := loginAs(t, api, "admin", "admin123")
	superToken := loginAs(t, api, "superadmin", "super123")
	csrf := fetchCSRFToken(t, api)

	payload := map[string]string{
		"user_id":  "counter1",
		"password": "pass1234",
		"role":     "sales",
	}

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/register", adminToken, csrf, payload)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for admin registering users, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/auth/register", superToken, csrf, payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	login := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"user_id":  "counter1",
		"password": "pass1234",
	})
	if login.Code != http.StatusOK {
		t.Fatalf("expected new account to log in, got %d", login.Code)
	}
}

func TestPurchaseForbiddenForSales(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "sales", "sales123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/transactions/purchase", token, csrf, map[string]any{
		"buyer_party_id": "party-seed-01",
		"items": []map[string]any{
			{"item_id": "item-seed-02", "quantity": 10, "purchase_rate_paise": 7800, "sale_rate_paise": 11000},
		},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for sales posting purchase, got %d", rec.Code)
	}
}

func loginAs(t *testing.T, api *API, userID, password string) string {
	t.Helper()

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"user_id":  userID,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("%s login failed, status %d (body: %s)", userID, rec.Code, rec.Body.String())
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if strings.TrimSpace(payload.Token) == "" {
		t.Fatalf("expected token in login response")
	}
	return payload.Token
}
