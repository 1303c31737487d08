// Package rpc exposes the service's gRPC surface: the standard health
// protocol backed by a storage probe, plus server reflection.
package rpc

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService reports SERVING while the backing store answers pings.
type HealthService struct {
	server  *health.Server
	pinger  Pinger
	service string
	logger  *zap.Logger
}

func NewHealthService(service string, pinger Pinger, logger *zap.Logger) *HealthService {
	return &HealthService{
		server:  health.NewServer(),
		pinger:  pinger,
		service: service,
		logger:  logger,
	}
}

// NewServer builds a traced gRPC server with health and reflection registered.
func NewServer(hs *HealthService) *grpc.Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthpb.RegisterHealthServer(srv, hs.server)
	reflection.Register(srv)
	return srv
}

// Check probes the store once and updates the serving status of both the
// named service and the overall server.
func (h *HealthService) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.pinger.Ping(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("Store health probe failed", zap.Error(err))
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(h.service, status)
	return status
}

// Run probes every interval until ctx is done, then marks the server as
// shutting down.
func (h *HealthService) Run(ctx context.Context, interval time.Duration) {
	h.Check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}
