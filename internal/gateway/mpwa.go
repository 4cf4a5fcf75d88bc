package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

const mpwaDefaultDevice = "default"

// MPWA sends through an MPWA server with a Bearer token. Delivery is confirmed only by
// "status": "success" in the JSON body.
type MPWA struct {
	token     string
	serverURL string
	deviceID  string
	client    *http.Client
	logger    *zap.Logger
}

// NewMPWA returns the MPWA variant. A blank device id falls back to "default".
func NewMPWA(creds Credentials, opts Options) Sender {
	deviceID := creds.DeviceID
	if deviceID == "" {
		deviceID = mpwaDefaultDevice
	}
	return &MPWA{
		token:     creds.Token,
		serverURL: creds.ServerURL,
		deviceID:  deviceID,
		client:    clientOrDefault(opts.HTTPClient),
		logger:    loggerOrNop(opts.Logger),
	}
}

type mpwaResponse struct {
	Status any `json:"status"`
}

// Send posts {phone, message, device_id} to <serverUrl>/send-message.
func (m *MPWA) Send(ctx context.Context, number, message string) bool {
	if m.token == "" || m.serverURL == "" {
		m.logger.Error("gateway: mpwa token or server URL not configured")
		return false
	}
	status, body, err := postJSON(ctx, m.client, sendMessageURL(m.serverURL), "Bearer "+m.token, map[string]string{
		"phone":     number,
		"message":   message,
		"device_id": m.deviceID,
	})
	if err != nil {
		m.logger.Error("gateway: mpwa request failed", zap.Error(err))
		return false
	}
	m.logger.Debug("gateway: mpwa response", zap.Int("status", status), zap.ByteString("body", body))
	var out mpwaResponse
	if err := json.Unmarshal(body, &out); err != nil {
		m.logger.Error("gateway: mpwa response is not JSON", zap.Error(err))
		return false
	}
	s, isString := out.Status.(string)
	return isString && s == "success"
}
