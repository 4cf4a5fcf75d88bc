package handler

import (
	"errors"
	"net/http"

	policydomain "genieacs-portal/internal/policy/domain"
	"genieacs-portal/internal/portal/service"
)

type loginRequest struct {
	CustomerNumber string `json:"customerNumber"`
}

type verifyRequest struct {
	CustomerNumber string `json:"customerNumber"`
	OTP            string `json:"otp"`
}

type sessionData struct {
	Role     string `json:"role"`
	Username string `json:"username"`
	DeviceID string `json:"deviceId,omitempty"`
	// Token is returned for API clients that cannot hold cookies.
	Token string `json:"token"`
}

type otpData struct {
	OTPRequired bool `json:"otpRequired"`
	*service.OTPChallenge
}

func sessionBody(res *service.SessionResult) sessionData {
	return sessionData{
		Role:     string(res.Session.Role),
		Username: res.Session.Username,
		DeviceID: res.Session.DeviceID,
		Token:    res.Token,
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	res, err := h.customer.Login(r.Context(), req.CustomerNumber)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	if res.OTP != nil {
		ok(w, "OTP sent", otpData{OTPRequired: true, OTPChallenge: res.OTP})
		return
	}
	h.setSession(w, res.Session)
	ok(w, "Login successful", sessionBody(res.Session))
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	res, err := h.customer.VerifyOTP(r.Context(), req.CustomerNumber, req.OTP)
	if errors.Is(err, service.ErrInvalidOTP) {
		// The client re-prompts with the same parameters.
		challenge, cerr := h.customer.Challenge(req.CustomerNumber)
		if cerr != nil {
			h.fail(w, r, err, nil)
			return
		}
		h.fail(w, r, err, otpData{OTPRequired: true, OTPChallenge: challenge})
		return
	}
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	h.setSession(w, res)
	ok(w, "Login successful", sessionBody(res))
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	sess, err := h.authorize(r, policydomain.ActionDeviceView, "")
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	view, err := h.customer.Dashboard(r.Context(), sess.DeviceID, sess.Username)
	if err != nil {
		h.fail(w, r, err, view)
		return
	}
	ok(w, "", view)
}

func (h *Handler) updateWiFi(w http.ResponseWriter, r *http.Request) {
	sess, err := h.authorize(r, policydomain.ActionDeviceUpdateWiFi, "")
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	var req service.WiFiUpdate
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	msg, err := h.customer.UpdateWiFi(r.Context(), sess.Username, sess.DeviceID, req)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	ok(w, msg, nil)
}

func (h *Handler) reboot(w http.ResponseWriter, r *http.Request) {
	sess, err := h.authorize(r, policydomain.ActionDeviceReboot, "")
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	if err := h.customer.Reboot(r.Context(), sess.Username, sess.DeviceID); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	ok(w, "Reboot command sent", nil)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	sess, err := h.authorize(r, policydomain.ActionDeviceRefresh, "")
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	if err := h.customer.Refresh(r.Context(), sess.Username, sess.DeviceID); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	ok(w, "Device data refreshed", nil)
}

func (h *Handler) updateCustomerNumber(w http.ResponseWriter, r *http.Request) {
	sess, err := h.authorize(r, policydomain.ActionDeviceUpdateTag, "")
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	var req loginRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	if err := h.customer.UpdateCustomerNumber(r.Context(), sess.Username, sess.DeviceID, req.CustomerNumber); err != nil {
		h.fail(w, r, err, nil)
		return
	}
	ok(w, "Customer number updated", nil)
}
