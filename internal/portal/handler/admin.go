package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"genieacs-portal/internal/gateway"
	policydomain "genieacs-portal/internal/policy/domain"
	"genieacs-portal/internal/settings"
)

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type gatewayRequest struct {
	WhatsappGateway gateway.Provider `json:"whatsappGateway"`
	Gateways        gateway.Gateways `json:"gateways"`
}

func (h *Handler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	res, err := h.admin.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.setSession(w, res)
	ok(w, "Login successful", sessionBody(res))
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authorize(r, policydomain.ActionAdminListDevices, ""); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	devices, err := h.admin.ListDevices(r.Context())
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	ok(w, "", devices)
}

func (h *Handler) refreshDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := h.authorize(r, policydomain.ActionAdminRefreshDevice, id)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	deviceID, err := h.admin.RefreshDevice(r.Context(), sess.Username, id)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	ok(w, "Device refreshed", map[string]string{"deviceId": deviceID})
}

func (h *Handler) refreshAll(w http.ResponseWriter, r *http.Request) {
	sess, err := h.authorize(r, policydomain.ActionAdminRefreshAll, "")
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	summary, err := h.admin.RefreshAll(r.Context(), sess.Username)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	ok(w, summary.Message(), summary)
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authorize(r, policydomain.ActionAdminReadSettings, ""); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	doc, err := h.admin.Settings(r.Context())
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	ok(w, "", doc)
}

func (h *Handler) saveOTPSettings(w http.ResponseWriter, r *http.Request) {
	sess, err := h.authorize(r, policydomain.ActionAdminWriteSettings, "")
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	var req settings.OTP
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	doc, err := h.admin.SaveOTPSettings(r.Context(), sess.Username, req)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	ok(w, "OTP settings saved", doc)
}

func (h *Handler) saveGatewaySettings(w http.ResponseWriter, r *http.Request) {
	sess, err := h.authorize(r, policydomain.ActionAdminWriteSettings, "")
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	var req gatewayRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	doc, err := h.admin.SaveGatewaySettings(r.Context(), sess.Username, req.WhatsappGateway, req.Gateways)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	ok(w, "Gateway settings saved", doc)
}

func (h *Handler) testGateway(w http.ResponseWriter, r *http.Request) {
	sess, err := h.authorize(r, policydomain.ActionAdminTestGateway, "")
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	if err := h.admin.TestGateway(r.Context(), sess.Username); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	ok(w, "Test message sent", nil)
}

func (h *Handler) auditLog(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authorize(r, policydomain.ActionAdminReadSettings, ""); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	entries, err := h.admin.AuditLog(r.Context(), q.Get("deviceId"), limit)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	ok(w, "", entries)
}
