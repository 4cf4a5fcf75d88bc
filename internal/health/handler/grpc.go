package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const defaultCheckTimeout = 3 * time.Second

// Pinger is a dependency that can be pinged for readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker verifies that the authorization policy still evaluates.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Check is one named readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// PingCheck adapts a Pinger.
func PingCheck(name string, p Pinger) Check {
	return Check{Name: name, Fn: p.PingContext}
}

// PolicyCheck adapts a PolicyChecker.
func PolicyCheck(p PolicyChecker) Check {
	return Check{Name: "policy", Fn: p.HealthCheck}
}

// Server implements the standard gRPC health service and backs the HTTP probes.
// A service is SERVING only when every check passes.
type Server struct {
	healthpb.UnimplementedHealthServer

	checks  []Check
	timeout time.Duration
	logger  *zap.Logger
}

// NewServer returns a health server running checks on each probe. logger may be nil.
func NewServer(logger *zap.Logger, checks ...Check) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{checks: checks, timeout: defaultCheckTimeout, logger: logger}
}

// Check runs all checks. Failures are reported as NOT_SERVING, never as a gRPC error.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	status := healthpb.HealthCheckResponse_SERVING
	if failed := s.Run(ctx); len(failed) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	return &healthpb.HealthCheckResponse{Status: status}, nil
}

// Run executes every check concurrently and returns the failures keyed by check name.
func (s *Server) Run(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		failed = map[string]error{}
		g      errgroup.Group
	)
	for _, c := range s.checks {
		g.Go(func() error {
			if err := c.Fn(ctx); err != nil {
				s.logger.Warn("health: check failed", zap.String("check", c.Name), zap.Error(err))
				mu.Lock()
				failed[c.Name] = fmt.Errorf("%s: %w", c.Name, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}
