package server

import (
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "genieacs-portal/internal/health/handler"
)

// RegisterServices registers the gRPC services exposed next to the HTTP portal.
//
// Service → handler mapping:
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, health *healthhandler.Server) {
	healthpb.RegisterHealthServer(s, health)
}
