package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	auditdomain "genieacs-portal/internal/audit/domain"
	"genieacs-portal/internal/gateway"
	"genieacs-portal/internal/policy/engine"
	"genieacs-portal/internal/portal/service"
	"genieacs-portal/internal/security"
	"genieacs-portal/internal/server/middleware"
	"genieacs-portal/internal/settings"
)

type fakeCustomer struct {
	loginRes  *service.LoginResult
	loginErr  error
	verifyRes *service.SessionResult
	verifyErr error
	viewErr   error
	actionErr error
	calls     []string
}

func (f *fakeCustomer) Login(ctx context.Context, n string) (*service.LoginResult, error) {
	f.calls = append(f.calls, "login:"+n)
	return f.loginRes, f.loginErr
}

func (f *fakeCustomer) Challenge(n string) (*service.OTPChallenge, error) {
	return &service.OTPChallenge{CustomerNumber: n, Length: 6, ExpiryMinutes: 5}, nil
}

func (f *fakeCustomer) VerifyOTP(ctx context.Context, n, code string) (*service.SessionResult, error) {
	f.calls = append(f.calls, "verify:"+n+":"+code)
	return f.verifyRes, f.verifyErr
}

func (f *fakeCustomer) Dashboard(ctx context.Context, deviceID, username string) (service.DeviceView, error) {
	f.calls = append(f.calls, "dashboard:"+deviceID)
	if f.viewErr != nil {
		return service.UnavailableView(username), f.viewErr
	}
	return service.DeviceView{ID: deviceID, Username: username, Model: "HG8245"}, nil
}

func (f *fakeCustomer) UpdateWiFi(ctx context.Context, actor, deviceID string, u service.WiFiUpdate) (string, error) {
	f.calls = append(f.calls, "wifi:"+deviceID+":"+u.SSID2G)
	return "SSID updated", f.actionErr
}

func (f *fakeCustomer) Reboot(ctx context.Context, actor, deviceID string) error {
	f.calls = append(f.calls, "reboot:"+deviceID)
	return f.actionErr
}

func (f *fakeCustomer) Refresh(ctx context.Context, actor, deviceID string) error {
	f.calls = append(f.calls, "refresh:"+deviceID)
	return f.actionErr
}

func (f *fakeCustomer) UpdateCustomerNumber(ctx context.Context, actor, deviceID, n string) error {
	f.calls = append(f.calls, "tag:"+deviceID+":"+n)
	return f.actionErr
}

type fakeAdmin struct {
	tokens    *security.SessionTokens
	refreshID string
	err       error
}

func (f *fakeAdmin) Authenticate(ctx context.Context, u, p string) (*service.SessionResult, error) {
	if p != "secret" {
		return nil, service.ErrInvalidCredentials
	}
	token, sess, err := f.tokens.IssueAdmin(u)
	return &service.SessionResult{Token: token, Session: sess}, err
}

func (f *fakeAdmin) ListDevices(ctx context.Context) ([]service.DeviceSummary, error) {
	return []service.DeviceSummary{{ID: "dev-1"}, {ID: "dev-2"}}, f.err
}

func (f *fakeAdmin) RefreshDevice(ctx context.Context, actor, id string) (string, error) {
	f.refreshID = id
	return strings.ReplaceAll(id, "%2D", "-"), f.err
}

func (f *fakeAdmin) RefreshAll(ctx context.Context, actor string) (service.RefreshSummary, error) {
	return service.RefreshSummary{Total: 3, Succeeded: 2, Failed: 1}, f.err
}

func (f *fakeAdmin) Settings(ctx context.Context) (settings.Settings, error) {
	return settings.Defaults(), f.err
}

func (f *fakeAdmin) SaveOTPSettings(ctx context.Context, actor string, o settings.OTP) (settings.Settings, error) {
	if err := o.Validate(); err != nil {
		return settings.Settings{}, err
	}
	return settings.Defaults(), nil
}

func (f *fakeAdmin) SaveGatewaySettings(ctx context.Context, actor string, p gateway.Provider, g gateway.Gateways) (settings.Settings, error) {
	return settings.Defaults(), f.err
}

func (f *fakeAdmin) TestGateway(ctx context.Context, actor string) error {
	return f.err
}

func (f *fakeAdmin) AuditLog(ctx context.Context, deviceID string, limit int) ([]*auditdomain.AuditLog, error) {
	return []*auditdomain.AuditLog{{ID: "a1", DeviceID: deviceID, Action: fmt.Sprint(limit)}}, f.err
}

type harness struct {
	router   *mux.Router
	tokens   *security.SessionTokens
	customer *fakeCustomer
	admin    *fakeAdmin
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tokens, err := security.NewSessionTokens([]byte("0123456789abcdef0123"), time.Hour)
	if err != nil {
		t.Fatalf("NewSessionTokens: %v", err)
	}
	authz, err := engine.NewOPAAuthorizer(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewOPAAuthorizer: %v", err)
	}
	customer := &fakeCustomer{}
	admin := &fakeAdmin{tokens: tokens}
	r := mux.NewRouter()
	r.UseEncodedPath()
	r.Use(middleware.Session(tokens))
	New(customer, admin, authz, Options{SessionTTL: time.Hour}).RegisterRoutes(r)
	return &harness{router: r, tokens: tokens, customer: customer, admin: admin}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: token})
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	var resp response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %s %s: %v (%q)", method, path, err, rr.Body.String())
	}
	return rr, resp
}

func (h *harness) customerToken(t *testing.T, deviceID string) string {
	t.Helper()
	token, _, err := h.tokens.IssueCustomer("0812", deviceID)
	if err != nil {
		t.Fatalf("IssueCustomer: %v", err)
	}
	return token
}

func (h *harness) adminToken(t *testing.T) string {
	t.Helper()
	token, _, err := h.tokens.IssueAdmin("admin")
	if err != nil {
		t.Fatalf("IssueAdmin: %v", err)
	}
	return token
}

func TestLogin_SetsSessionCookie(t *testing.T) {
	h := newHarness(t)
	token, sess, _ := h.tokens.IssueCustomer("0812", "dev-1")
	h.customer.loginRes = &service.LoginResult{Session: &service.SessionResult{Token: token, Session: sess}}

	rr, resp := h.do(t, http.MethodPost, "/api/login", "", loginRequest{CustomerNumber: "0812"})
	if rr.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status = %d, resp = %+v", rr.Code, resp)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != middleware.SessionCookie || cookies[0].Value != token || !cookies[0].HttpOnly {
		t.Errorf("cookies = %+v", cookies)
	}
}

func TestLogin_OTPChallenge(t *testing.T) {
	h := newHarness(t)
	h.customer.loginRes = &service.LoginResult{OTP: &service.OTPChallenge{CustomerNumber: "0812", Length: 4, ExpiryMinutes: 10}}

	rr, resp := h.do(t, http.MethodPost, "/api/login", "", loginRequest{CustomerNumber: "0812"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	data := resp.Data.(map[string]any)
	if data["otpRequired"] != true || data["otpLength"] != float64(4) || data["otpExpiry"] != float64(10) {
		t.Errorf("data = %v", data)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Error("no session cookie before OTP verification")
	}
}

func TestLogin_ErrorMapping(t *testing.T) {
	testCases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: customer number must be numeric", service.ErrInvalidInput), http.StatusBadRequest},
		{service.ErrCustomerNotFound, http.StatusNotFound},
		{service.ErrOTPSendFailed, http.StatusInternalServerError},
		{fmt.Errorf("%w: dial tcp: refused", service.ErrUpstream), http.StatusBadGateway},
	}
	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			h := newHarness(t)
			h.customer.loginErr = tc.err
			rr, resp := h.do(t, http.MethodPost, "/api/login", "", loginRequest{CustomerNumber: "x"})
			if rr.Code != tc.code || resp.Success {
				t.Errorf("status = %d, want %d (resp %+v)", rr.Code, tc.code, resp)
			}
			if strings.Contains(resp.Message, "dial tcp") {
				t.Errorf("upstream detail leaked: %q", resp.Message)
			}
		})
	}
}

func TestLogin_BadBody(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestVerifyOTP_InvalidReturnsChallenge(t *testing.T) {
	h := newHarness(t)
	h.customer.verifyErr = service.ErrInvalidOTP
	rr, resp := h.do(t, http.MethodPost, "/api/verify-otp", "", verifyRequest{CustomerNumber: "0812", OTP: "000000"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	data := resp.Data.(map[string]any)
	if data["customerNumber"] != "0812" || data["otpLength"] != float64(6) {
		t.Errorf("data = %v", data)
	}
}

func TestCustomerRoutes_RequireSession(t *testing.T) {
	h := newHarness(t)
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/dashboard"},
		{http.MethodPost, "/api/update-wifi"},
		{http.MethodPost, "/api/reboot"},
		{http.MethodPost, "/api/refresh"},
		{http.MethodPost, "/api/update-customer-number"},
	} {
		rr, _ := h.do(t, route.method, route.path, "", map[string]string{})
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", route.method, route.path, rr.Code)
		}
	}
	if len(h.customer.calls) != 0 {
		t.Errorf("service called without session: %v", h.customer.calls)
	}
}

func TestCustomerRoutes_UseBoundDevice(t *testing.T) {
	h := newHarness(t)
	token := h.customerToken(t, "dev-7")

	rr, resp := h.do(t, http.MethodGet, "/api/dashboard", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rr.Code)
	}
	if data := resp.Data.(map[string]any); data["_id"] != "dev-7" || data["username"] != "0812" {
		t.Errorf("dashboard data = %v", data)
	}

	h.do(t, http.MethodPost, "/api/update-wifi", token, service.WiFiUpdate{SSID2G: "home"})
	h.do(t, http.MethodPost, "/api/reboot", token, nil)
	h.do(t, http.MethodPost, "/api/refresh", token, nil)
	h.do(t, http.MethodPost, "/api/update-customer-number", token, loginRequest{CustomerNumber: "0999"})

	want := []string{"dashboard:dev-7", "wifi:dev-7:home", "reboot:dev-7", "refresh:dev-7", "tag:dev-7:0999"}
	if fmt.Sprint(h.customer.calls) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", h.customer.calls, want)
	}
}

func TestDashboard_FailureCarriesPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.customer.viewErr = service.ErrDeviceNotFound
	rr, resp := h.do(t, http.MethodGet, "/api/dashboard", h.customerToken(t, "dev-1"), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if data := resp.Data.(map[string]any); data["model"] != "N/A" || data["status"] != "unknown" {
		t.Errorf("data = %v", data)
	}
}

func TestAdminRoutes_DenyCustomers(t *testing.T) {
	h := newHarness(t)
	token := h.customerToken(t, "dev-1")
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/admin/api/devices"},
		{http.MethodPost, "/admin/api/refresh-device/dev-1"},
		{http.MethodPost, "/admin/api/refresh-all"},
		{http.MethodGet, "/admin/api/settings"},
		{http.MethodPost, "/admin/api/settings/otp"},
		{http.MethodPost, "/admin/api/test-gateway"},
		{http.MethodGet, "/admin/api/audit"},
	} {
		rr, _ := h.do(t, route.method, route.path, token, map[string]string{})
		if rr.Code != http.StatusForbidden {
			t.Errorf("%s %s status = %d, want 403", route.method, route.path, rr.Code)
		}
	}
}

func TestAdminLogin(t *testing.T) {
	h := newHarness(t)
	rr, _ := h.do(t, http.MethodPost, "/admin/api/login", "", adminLoginRequest{Username: "admin", Password: "nope"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", rr.Code)
	}
	rr, resp := h.do(t, http.MethodPost, "/admin/api/login", "", adminLoginRequest{Username: "admin", Password: "secret"})
	if rr.Code != http.StatusOK || resp.Data.(map[string]any)["role"] != "admin" {
		t.Errorf("status = %d, resp = %+v", rr.Code, resp)
	}
}

func TestRefreshDevice_KeepsEncodedID(t *testing.T) {
	h := newHarness(t)
	rr, resp := h.do(t, http.MethodPost, "/admin/api/refresh-device/202BC1%2DBM632w%2D000001", h.adminToken(t), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if h.admin.refreshID != "202BC1%2DBM632w%2D000001" {
		t.Errorf("service id = %q, want the encoded segment decoded once by the service", h.admin.refreshID)
	}
	if resp.Data.(map[string]any)["deviceId"] != "202BC1-BM632w-000001" {
		t.Errorf("data = %v", resp.Data)
	}
}

func TestRefreshAll_Message(t *testing.T) {
	h := newHarness(t)
	rr, resp := h.do(t, http.MethodPost, "/admin/api/refresh-all", h.adminToken(t), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp.Message != "Refresh completed. Success: 2, Failed: 1" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestSaveOTPSettings_Invalid(t *testing.T) {
	h := newHarness(t)
	rr, resp := h.do(t, http.MethodPost, "/admin/api/settings/otp", h.adminToken(t), settings.OTP{Expiry: 10, Length: 6})
	if rr.Code != http.StatusBadRequest || !strings.Contains(resp.Message, "otpExpiry") {
		t.Errorf("status = %d, message = %q", rr.Code, resp.Message)
	}
}

func TestTestGateway_Errors(t *testing.T) {
	h := newHarness(t)
	token := h.adminToken(t)

	h.admin.err = service.ErrAdminWhatsappMissing
	if rr, _ := h.do(t, http.MethodPost, "/admin/api/test-gateway", token, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("missing number status = %d, want 400", rr.Code)
	}
	h.admin.err = service.ErrGatewaySendFailed
	if rr, _ := h.do(t, http.MethodPost, "/admin/api/test-gateway", token, nil); rr.Code != http.StatusInternalServerError {
		t.Errorf("send failure status = %d, want 500", rr.Code)
	}
	h.admin.err = nil
	if rr, _ := h.do(t, http.MethodPost, "/admin/api/test-gateway", token, nil); rr.Code != http.StatusOK {
		t.Errorf("success status = %d, want 200", rr.Code)
	}
}

func TestAuditLog_Query(t *testing.T) {
	h := newHarness(t)
	rr, resp := h.do(t, http.MethodGet, "/admin/api/audit?deviceId=dev-3&limit=20", h.adminToken(t), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	entries := resp.Data.([]any)
	first := entries[0].(map[string]any)
	if first["deviceId"] != "dev-3" || first["action"] != "20" {
		t.Errorf("entry = %v", first)
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	h := newHarness(t)
	rr, _ := h.do(t, http.MethodPost, "/api/logout", "", nil)
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 || cookies[0].Value != "" {
		t.Errorf("cookies = %+v", cookies)
	}
}
