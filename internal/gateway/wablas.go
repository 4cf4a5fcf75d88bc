package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Wablas sends through a Wablas server. The raw token is the Authorization header; delivery is
// confirmed only by a boolean "status": true in the JSON body.
type Wablas struct {
	token     string
	serverURL string
	client    *http.Client
	logger    *zap.Logger
}

// NewWablas returns the Wablas variant.
func NewWablas(creds Credentials, opts Options) Sender {
	return &Wablas{
		token:     creds.Token,
		serverURL: creds.ServerURL,
		client:    clientOrDefault(opts.HTTPClient),
		logger:    loggerOrNop(opts.Logger),
	}
}

type wablasResponse struct {
	Status any `json:"status"`
}

// Send posts {phone, message} to <serverUrl>/send-message.
func (w *Wablas) Send(ctx context.Context, number, message string) bool {
	if w.token == "" || w.serverURL == "" {
		w.logger.Error("gateway: wablas token or server URL not configured")
		return false
	}
	status, body, err := postJSON(ctx, w.client, sendMessageURL(w.serverURL), w.token, map[string]string{
		"phone":   number,
		"message": message,
	})
	if err != nil {
		w.logger.Error("gateway: wablas request failed", zap.Error(err))
		return false
	}
	w.logger.Debug("gateway: wablas response", zap.Int("status", status), zap.ByteString("body", body))
	var out wablasResponse
	if err := json.Unmarshal(body, &out); err != nil {
		w.logger.Error("gateway: wablas response is not JSON", zap.Error(err))
		return false
	}
	ok, isBool := out.Status.(bool)
	return isBool && ok
}
