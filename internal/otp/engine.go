package otp

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"genieacs-portal/internal/gateway"
)

// Messenger delivers a message through the configured gateway. *gateway.Dispatcher implements it.
type Messenger interface {
	Send(ctx context.Context, cfg gateway.Config, number, message string) bool
}

// Policy is the per-issue configuration, read from the current settings document.
type Policy struct {
	Length        int
	ExpirySeconds int
	Template      string
	Gateway       gateway.Config
}

// Engine issues and verifies codes.
type Engine struct {
	store     Store
	messenger Messenger
	logger    *zap.Logger
	nowF      func() time.Time
	gen       func(int) (string, error)

	issued   metric.Int64Counter
	verified metric.Int64Counter
}

// NewEngine returns an Engine. logger and meter may be nil.
func NewEngine(store Store, messenger Messenger, logger *zap.Logger, meter metric.Meter) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	issued, err := meter.Int64Counter("portal.otp.issued",
		metric.WithDescription("OTP issue attempts by result"))
	if err != nil {
		logger.Warn("otp: issued counter unavailable", zap.Error(err))
		issued, _ = noop.NewMeterProvider().Meter("").Int64Counter("portal.otp.issued")
	}
	verified, err := meter.Int64Counter("portal.otp.verified",
		metric.WithDescription("OTP verification attempts by result"))
	if err != nil {
		logger.Warn("otp: verified counter unavailable", zap.Error(err))
		verified, _ = noop.NewMeterProvider().Meter("").Int64Counter("portal.otp.verified")
	}
	return &Engine{
		store:     store,
		messenger: messenger,
		logger:    logger,
		nowF:      time.Now,
		gen:       Generate,
		issued:    issued,
		verified:  verified,
	}
}

// Issue generates a code, sends it to phone and, only if the send succeeded, stores it under
// key with expiry now+ExpirySeconds, replacing any pending entry. It returns whether the code
// was delivered and stored.
func (e *Engine) Issue(ctx context.Context, key, phone string, p Policy) bool {
	code, err := e.gen(p.Length)
	if err != nil {
		e.logger.Error("otp: generate failed", zap.Int("length", p.Length), zap.Error(err))
		e.count(ctx, e.issued, "error")
		return false
	}
	msg := RenderMessage(p.Template, code, p.ExpirySeconds)
	if !e.messenger.Send(ctx, p.Gateway, phone, msg) {
		e.logger.Warn("otp: delivery failed", zap.String("key", key))
		e.count(ctx, e.issued, "send_failed")
		return false
	}
	entry := Entry{
		Code:      code,
		ExpiresAt: e.nowF().Add(time.Duration(p.ExpirySeconds) * time.Second),
	}
	if err := e.store.Put(ctx, key, entry); err != nil {
		e.logger.Error("otp: store failed", zap.String("key", key), zap.Error(err))
		e.count(ctx, e.issued, "error")
		return false
	}
	e.count(ctx, e.issued, "success")
	return true
}

// Verify reports whether code matches the pending entry for key. A match or an expired entry
// deletes it; a mismatch leaves it in place.
func (e *Engine) Verify(ctx context.Context, key, code string) bool {
	entry, ok, err := e.store.Get(ctx, key)
	if err != nil {
		e.logger.Error("otp: load failed", zap.String("key", key), zap.Error(err))
		e.count(ctx, e.verified, "error")
		return false
	}
	if !ok {
		e.count(ctx, e.verified, "missing")
		return false
	}
	if entry.Expired(e.nowF()) {
		e.delete(ctx, key)
		e.count(ctx, e.verified, "expired")
		return false
	}
	if entry.Code != code {
		e.count(ctx, e.verified, "mismatch")
		return false
	}
	e.delete(ctx, key)
	e.count(ctx, e.verified, "success")
	return true
}

func (e *Engine) delete(ctx context.Context, key string) {
	if err := e.store.Delete(ctx, key); err != nil {
		e.logger.Warn("otp: delete failed", zap.String("key", key), zap.Error(err))
	}
}

func (e *Engine) count(ctx context.Context, c metric.Int64Counter, result string) {
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
