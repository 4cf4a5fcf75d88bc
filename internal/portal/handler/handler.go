// Package handler exposes the portal flows as a JSON HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	auditdomain "genieacs-portal/internal/audit/domain"
	"genieacs-portal/internal/gateway"
	policydomain "genieacs-portal/internal/policy/domain"
	"genieacs-portal/internal/policy/engine"
	"genieacs-portal/internal/portal/service"
	"genieacs-portal/internal/security"
	"genieacs-portal/internal/server/middleware"
	"genieacs-portal/internal/settings"
)

const maxBodyBytes = 1 << 20

// CustomerService is implemented by *service.Customer.
type CustomerService interface {
	Login(ctx context.Context, customerNumber string) (*service.LoginResult, error)
	Challenge(customerNumber string) (*service.OTPChallenge, error)
	VerifyOTP(ctx context.Context, customerNumber, code string) (*service.SessionResult, error)
	Dashboard(ctx context.Context, deviceID, username string) (service.DeviceView, error)
	UpdateWiFi(ctx context.Context, actor, deviceID string, u service.WiFiUpdate) (string, error)
	Reboot(ctx context.Context, actor, deviceID string) error
	Refresh(ctx context.Context, actor, deviceID string) error
	UpdateCustomerNumber(ctx context.Context, actor, deviceID, customerNumber string) error
}

// AdminService is implemented by *service.Admin.
type AdminService interface {
	Authenticate(ctx context.Context, username, password string) (*service.SessionResult, error)
	ListDevices(ctx context.Context) ([]service.DeviceSummary, error)
	RefreshDevice(ctx context.Context, actor, id string) (string, error)
	RefreshAll(ctx context.Context, actor string) (service.RefreshSummary, error)
	Settings(ctx context.Context) (settings.Settings, error)
	SaveOTPSettings(ctx context.Context, actor string, o settings.OTP) (settings.Settings, error)
	SaveGatewaySettings(ctx context.Context, actor string, provider gateway.Provider, gateways gateway.Gateways) (settings.Settings, error)
	TestGateway(ctx context.Context, actor string) error
	AuditLog(ctx context.Context, deviceID string, limit int) ([]*auditdomain.AuditLog, error)
}

// Options configure session cookies and logging.
type Options struct {
	SessionTTL   time.Duration
	SecureCookie bool
	Logger       *zap.Logger
}

// Handler serves the customer and admin APIs.
type Handler struct {
	customer CustomerService
	admin    AdminService
	authz    engine.Authorizer
	opts     Options
	logger   *zap.Logger
}

// New returns a Handler. Every authenticated route is checked against authz.
func New(customer CustomerService, admin AdminService, authz engine.Authorizer, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{customer: customer, admin: admin, authz: authz, opts: opts, logger: logger}
}

// RegisterRoutes mounts the customer API under /api and the admin API under /admin/api.
// Routes expect middleware.Session to run first.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/verify-otp", h.verifyOTP).Methods(http.MethodPost)
	api.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	api.HandleFunc("/dashboard", h.dashboard).Methods(http.MethodGet)
	api.HandleFunc("/update-wifi", h.updateWiFi).Methods(http.MethodPost)
	api.HandleFunc("/reboot", h.reboot).Methods(http.MethodPost)
	api.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
	api.HandleFunc("/update-customer-number", h.updateCustomerNumber).Methods(http.MethodPost)

	adm := r.PathPrefix("/admin/api").Subrouter()
	adm.HandleFunc("/login", h.adminLogin).Methods(http.MethodPost)
	adm.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	adm.HandleFunc("/devices", h.listDevices).Methods(http.MethodGet)
	adm.HandleFunc("/refresh-device/{id}", h.refreshDevice).Methods(http.MethodPost)
	adm.HandleFunc("/refresh-all", h.refreshAll).Methods(http.MethodPost)
	adm.HandleFunc("/settings", h.getSettings).Methods(http.MethodGet)
	adm.HandleFunc("/settings/otp", h.saveOTPSettings).Methods(http.MethodPost)
	adm.HandleFunc("/settings/gateway", h.saveGatewaySettings).Methods(http.MethodPost)
	adm.HandleFunc("/test-gateway", h.testGateway).Methods(http.MethodPost)
	adm.HandleFunc("/audit", h.auditLog).Methods(http.MethodGet)
}

// response is the envelope of every API reply.
type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, response{Success: true, Message: message, Data: data})
}

// fail maps err to a status code and writes a failure envelope. Upstream details are logged,
// never returned.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, data any) {
	code, message := classify(err)
	if code >= http.StatusInternalServerError {
		h.logger.Warn("portal request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.RequestIDFrom(r.Context())),
			zap.Error(err))
	}
	writeJSON(w, code, response{Success: false, Message: message, Data: data})
}

var (
	errUnauthenticated = errors.New("login required")
	errForbidden       = errors.New("access denied")
	errBadBody         = errors.New("invalid request body")
)

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadBody),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, settings.ErrInvalidSettings),
		errors.Is(err, service.ErrAdminWhatsappMissing):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errUnauthenticated),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidOTP):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrCustomerNotFound),
		errors.Is(err, service.ErrDeviceNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrUpstream):
		return http.StatusBadGateway, service.ErrUpstream.Error()
	case errors.Is(err, service.ErrOTPSendFailed),
		errors.Is(err, service.ErrGatewaySendFailed):
		return http.StatusInternalServerError, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// authorize returns the caller's session when the policy allows action on deviceID.
// An empty deviceID targets the session's own device.
func (h *Handler) authorize(r *http.Request, action policydomain.Action, deviceID string) (security.Session, error) {
	sess, found := middleware.SessionFrom(r.Context())
	if !found {
		return security.Session{}, errUnauthenticated
	}
	if deviceID == "" {
		deviceID = sess.DeviceID
	}
	allowed, err := h.authz.Allow(r.Context(), policydomain.Request{
		Subject: policydomain.Subject{
			Role:     string(sess.Role),
			Username: sess.Username,
			DeviceID: sess.DeviceID,
		},
		Action:   action,
		DeviceID: deviceID,
	})
	if err != nil || !allowed {
		return security.Session{}, errForbidden
	}
	return sess, nil
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errBadBody
	}
	return nil
}

func (h *Handler) setSession(w http.ResponseWriter, res *service.SessionResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.Session.ExpiresAt,
		MaxAge:   int(h.opts.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	ok(w, "Logged out", nil)
}
