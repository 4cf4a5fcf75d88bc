package gateway

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// Fonnte sends through api.fonnte.com. The raw token is the Authorization header; any 2xx
// response counts as delivered.
type Fonnte struct {
	token  string
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewFonnte returns the Fonnte variant.
func NewFonnte(creds Credentials, opts Options) Sender {
	url := opts.FonnteURL
	if url == "" {
		url = DefaultFonnteURL
	}
	return &Fonnte{token: creds.Token, url: url, client: clientOrDefault(opts.HTTPClient), logger: loggerOrNop(opts.Logger)}
}

// Send posts {target, message}.
func (f *Fonnte) Send(ctx context.Context, number, message string) bool {
	if f.token == "" {
		f.logger.Error("gateway: fonnte token not configured")
		return false
	}
	status, body, err := postJSON(ctx, f.client, f.url, f.token, map[string]string{
		"target":  number,
		"message": message,
	})
	if err != nil {
		f.logger.Error("gateway: fonnte request failed", zap.Error(err))
		return false
	}
	f.logger.Debug("gateway: fonnte response", zap.Int("status", status), zap.ByteString("body", body))
	return status >= 200 && status < 300
}

func clientOrDefault(c *http.Client) *http.Client {
	if c == nil {
		return &http.Client{Timeout: defaultTimeout}
	}
	return c
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
