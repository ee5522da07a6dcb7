package rpc

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"yakssok-api/internal/coordination"
	"yakssok-api/internal/middleware"
)

const (
	healthCheck = "/grpc.health.v1.Health/Check"
	healthWatch = "/grpc.health.v1.Health/Watch"
)

// NewServer builds the gRPC server: the coordination service behind rate
// limiting and bearer auth, plus the standard health service.
func NewServer(svc *coordination.Service, secret string, rl *middleware.RateLimiter) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			middleware.RateLimit(rl, MethodCreateAppointment, MethodJoinAppointment),
			middleware.Auth(secret, MethodGetAppointment, MethodListCandidateDates, healthCheck, healthWatch),
		),
	)
	srv.RegisterService(&ServiceDesc, NewCoordination(svc))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}
