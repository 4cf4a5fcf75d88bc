// Package gateway sends WhatsApp messages through one of several third-party HTTP gateways.
// Providers are not normalized into one wire contract; each variant maps its own response
// shape onto a single boolean result.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"genieacs-portal/internal/phone"
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 1 << 20

	// DefaultFonnteURL is the Fonnte send endpoint.
	DefaultFonnteURL = "https://api.fonnte.com/send"
)

// Provider identifies a WhatsApp gateway.
type Provider string

const (
	ProviderFonnte Provider = "fonnte"
	ProviderWablas Provider = "wablas"
	ProviderMPWA   Provider = "mpwa"
)

// Providers lists the known providers in display order.
var Providers = []Provider{ProviderFonnte, ProviderWablas, ProviderMPWA}

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// Credentials holds one provider's settings as stored in the settings document.
type Credentials struct {
	Token     string `json:"token"`
	Enabled   bool   `json:"enabled"`
	ServerURL string `json:"serverUrl,omitempty"`
	DeviceID  string `json:"deviceId,omitempty"`
}

// Gateways holds the per-provider credentials.
type Gateways struct {
	Fonnte Credentials `json:"fonnte"`
	Wablas Credentials `json:"wablas"`
	MPWA   Credentials `json:"mpwa"`
}

// For returns the credentials for p, or false if p is unknown.
func (g Gateways) For(p Provider) (Credentials, bool) {
	switch p {
	case ProviderFonnte:
		return g.Fonnte, true
	case ProviderWablas:
		return g.Wablas, true
	case ProviderMPWA:
		return g.MPWA, true
	default:
		return Credentials{}, false
	}
}

// Config selects the active provider.
type Config struct {
	Selected Provider
	Gateways Gateways
}

// Sender delivers one message to a normalized phone number. Implementations never return an
// error: every failure (network, blank configuration, unexpected response) reports false.
type Sender interface {
	Send(ctx context.Context, number, message string) bool
}

// Options are shared by all provider variants.
type Options struct {
	HTTPClient *http.Client
	FonnteURL  string
	Logger     *zap.Logger
}

// Factory builds a Sender for one provider from its credentials.
type Factory func(creds Credentials, opts Options) Sender

// DefaultFactories returns the built-in provider variants.
func DefaultFactories() map[Provider]Factory {
	return map[Provider]Factory{
		ProviderFonnte: NewFonnte,
		ProviderWablas: NewWablas,
		ProviderMPWA:   NewMPWA,
	}
}

// Dispatcher selects the configured provider variant and sends through it.
type Dispatcher struct {
	factories map[Provider]Factory
	opts      Options
	sends     metric.Int64Counter
}

// NewDispatcher returns a Dispatcher over the default provider variants. fonnteURL may be empty
// to use DefaultFonnteURL; timeout <= 0 uses a 15s default. meter may be nil.
func NewDispatcher(fonnteURL string, timeout time.Duration, logger *zap.Logger, meter metric.Meter) *Dispatcher {
	if fonnteURL == "" {
		fonnteURL = DefaultFonnteURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	sends, err := meter.Int64Counter("portal.gateway.sends",
		metric.WithDescription("WhatsApp gateway send attempts by provider and result"))
	if err != nil {
		logger.Warn("gateway: counter unavailable", zap.Error(err))
		sends, _ = noop.NewMeterProvider().Meter("").Int64Counter("portal.gateway.sends")
	}
	return &Dispatcher{
		factories: DefaultFactories(),
		opts: Options{
			HTTPClient: &http.Client{Timeout: timeout},
			FonnteURL:  fonnteURL,
			Logger:     logger,
		},
		sends: sends,
	}
}

// Register adds or replaces the variant used for p.
func (d *Dispatcher) Register(p Provider, f Factory) {
	d.factories[p] = f
}

// Send normalizes number and delivers message through cfg.Selected. An unknown provider fails
// closed and returns false.
func (d *Dispatcher) Send(ctx context.Context, cfg Config, number, message string) bool {
	factory, ok := d.factories[cfg.Selected]
	creds, known := cfg.Gateways.For(cfg.Selected)
	if !ok || !known {
		d.opts.Logger.Error("gateway: unknown provider", zap.String("provider", string(cfg.Selected)))
		d.record(ctx, cfg.Selected, false)
		return false
	}
	to := phone.Normalize(number)
	d.opts.Logger.Info("gateway: sending message",
		zap.String("provider", string(cfg.Selected)), zap.String("to", to))
	sent := factory(creds, d.opts).Send(ctx, to, message)
	d.record(ctx, cfg.Selected, sent)
	return sent
}

func (d *Dispatcher) record(ctx context.Context, p Provider, sent bool) {
	result := "failure"
	if sent {
		result = "success"
	}
	d.sends.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", string(p)),
		attribute.String("result", result),
	))
}

// postJSON sends body as JSON with the given Authorization header value and returns the status
// code and response body.
func postJSON(ctx context.Context, client *http.Client, url, authorization string, body any) (int, []byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authorization)
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func sendMessageURL(serverURL string) string {
	return strings.TrimSuffix(serverURL, "/") + "/send-message"
}
