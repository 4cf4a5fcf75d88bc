// Package server assembles the HTTP router and the gRPC services.
package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	healthhandler "genieacs-portal/internal/health/handler"
	"genieacs-portal/internal/policy/engine"
	portalhandler "genieacs-portal/internal/portal/handler"
	"genieacs-portal/internal/server/middleware"
)

// Deps holds what the HTTP router needs.
type Deps struct {
	Customer portalhandler.CustomerService
	Admin    portalhandler.AdminService
	Authz    engine.Authorizer
	Sessions middleware.SessionValidator
	// Health serves /healthz and /readyz. If nil, the probes are not mounted.
	Health *healthhandler.Server

	SessionTTL   time.Duration
	SecureCookie bool
	Logger       *zap.Logger
	// Meter records HTTP request metrics. If nil, metrics are dropped.
	Meter metric.Meter
}

// NewRouter returns the portal router with the middleware chain applied. Paths are matched in
// their encoded form so device ids reach the handlers exactly as the client sent them.
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()
	r.UseEncodedPath()
	r.Use(
		middleware.RequestID,
		middleware.Recover(deps.Logger),
		middleware.ClientIP,
		middleware.Logging(deps.Logger, deps.Meter, "/healthz", "/readyz"),
		middleware.Session(deps.Sessions),
	)

	if deps.Health != nil {
		deps.Health.RegisterRoutes(r)
	}
	portalhandler.New(deps.Customer, deps.Admin, deps.Authz, portalhandler.Options{
		SessionTTL:   deps.SessionTTL,
		SecureCookie: deps.SecureCookie,
		Logger:       deps.Logger,
	}).RegisterRoutes(r)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"message":"not found"}`))
	})
	return r
}
