package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"genieacs-portal/internal/audit/domain"
	auditrepo "genieacs-portal/internal/audit/repository"
)

// UnknownIP is recorded when the request carries no client address.
const UnknownIP = "unknown"

type clientIPKey struct{}

// WithClientIP returns a context carrying the caller's address for audit entries.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the address stored by WithClientIP, or UnknownIP.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return UnknownIP
}

// Event is a single portal action to audit.
type Event struct {
	Actor    string
	Role     string
	Action   string
	DeviceID string
	Outcome  string
	Metadata map[string]string
}

// AuditLogger writes a single audit event. Used by the customer and admin services.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, e Event)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo   auditrepo.Repository
	logger *zap.Logger
	nowF   func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo. repo may be nil; then LogEvent is a no-op.
func NewLogger(repo auditrepo.Repository, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{repo: repo, logger: logger, nowF: time.Now}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, e Event) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		Actor:     e.Actor,
		Role:      e.Role,
		Action:    e.Action,
		DeviceID:  e.DeviceID,
		Outcome:   e.Outcome,
		IP:        ClientIP(ctx),
		CreatedAt: l.nowF().UTC(),
	}
	if entry.Outcome == "" {
		entry.Outcome = domain.OutcomeSuccess
	}
	if len(e.Metadata) > 0 {
		if b, err := json.Marshal(e.Metadata); err == nil {
			entry.Metadata = string(b)
		}
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.logger.Warn("audit: failed to log event",
			zap.String("action", e.Action),
			zap.String("device_id", e.DeviceID),
			zap.Error(err))
	}
}

// Recent returns the newest audit entries, optionally for one device. Returns nil when auditing is disabled.
func (l *Logger) Recent(ctx context.Context, deviceID string, limit int) ([]*domain.AuditLog, error) {
	if l == nil || l.repo == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return l.repo.ListRecent(ctx, deviceID, limit)
}

// Enabled reports whether entries are persisted.
func (l *Logger) Enabled() bool {
	return l != nil && l.repo != nil
}
