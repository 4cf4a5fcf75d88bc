// Package middleware holds the HTTP middleware chain shared by every portal route.
package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"genieacs-portal/internal/audit"
	"genieacs-portal/internal/security"
)

const (
	// RequestIDHeader is read from and echoed to clients.
	RequestIDHeader = "X-Request-ID"
	// SessionCookie is the cookie holding the session token.
	SessionCookie = "portal_session"
	bearerPrefix  = "bearer "
)

// SessionValidator validates a session token.
type SessionValidator interface {
	Validate(token string) (security.Session, error)
}

// RequestID assigns each request an id, reusing a client-supplied X-Request-ID when present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}

// Recover turns a handler panic into a 500 and logs it.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = nopIfNil(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("http: panic",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.String("request_id", RequestIDFrom(r.Context())),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"success":false,"message":"internal error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP stores the caller address in the context for audit entries.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(audit.WithClientIP(r.Context(), RemoteIP(r))))
	})
}

// RemoteIP returns the client IP from X-Forwarded-For, X-Real-IP, or the connection, or
// audit.UnknownIP.
func RemoteIP(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		return s
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
		return s
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return audit.UnknownIP
}

// Session validates the session cookie or Bearer token and stores the session in the context.
// Requests without a valid token pass through unauthenticated; handlers decide whether a
// session is required.
func Session(tokens SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			sess, err := tokens.Validate(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// extractToken returns the Bearer token, falling back to the session cookie, or "".
func extractToken(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) > len(bearerPrefix) && strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(v[len(bearerPrefix):])
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// statusRecorder captures the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Logging logs one line per request and records request count and duration when meter is set.
// skipPaths are neither logged nor measured (e.g. health probes).
func Logging(logger *zap.Logger, meter metric.Meter, skipPaths ...string) func(http.Handler) http.Handler {
	logger = nopIfNil(logger)
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	requests, err := meter.Int64Counter("portal.http.requests",
		metric.WithDescription("HTTP requests by route and status"))
	if err != nil {
		logger.Warn("metrics: portal.http.requests counter unavailable", zap.Error(err))
		requests, _ = noop.NewMeterProvider().Meter("").Int64Counter("portal.http.requests")
	}
	duration, err := meter.Float64Histogram("portal.http.duration",
		metric.WithDescription("HTTP request duration"), metric.WithUnit("ms"))
	if err != nil {
		logger.Warn("metrics: portal.http.duration histogram unavailable", zap.Error(err))
		duration, _ = noop.NewMeterProvider().Meter("").Float64Histogram("portal.http.duration")
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			attrs := metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.Int("status", rec.status),
			)
			requests.Add(r.Context(), 1, attrs)
			duration.Record(r.Context(), float64(elapsed.Microseconds())/1000, attrs)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", elapsed),
				zap.String("request_id", RequestIDFrom(r.Context())),
				zap.String("client_ip", audit.ClientIP(r.Context())),
			)
		})
	}
}

func nopIfNil(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
