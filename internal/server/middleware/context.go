package middleware

import (
	"context"

	"genieacs-portal/internal/security"
)

type contextKey struct{ name string }

var (
	requestIDKey = contextKey{"request_id"}
	sessionKey   = contextKey{"session"}
)

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFrom returns the request id from context, or "".
func RequestIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithSession returns a context carrying a validated session.
func WithSession(ctx context.Context, s security.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFrom returns the session from context and true if set; otherwise the zero session, false.
func SessionFrom(ctx context.Context) (security.Session, bool) {
	s, ok := ctx.Value(sessionKey).(security.Session)
	return s, ok
}
