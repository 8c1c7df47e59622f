package api

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC service name whose status follows the venue session.
const HealthService = "execution.Core"

// HealthServer exposes grpc.health.v1 for orchestrators that check health over gRPC.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

func NewHealthServer(logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := health.NewServer()
	g := grpc.NewServer()
	healthpb.RegisterHealthServer(g, h)
	h.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{grpc: g, health: h, logger: logger}
}

// SetServing updates the overall and service status.
func (h *HealthServer) SetServing(up bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(HealthService, status)
}

// Track polls healthy every interval until ctx ends.
func (h *HealthServer) Track(ctx context.Context, interval time.Duration, healthy func() bool) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	last := healthy()
	h.SetServing(last)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if up := healthy(); up != last {
				h.SetServing(up)
				h.logger.Info("grpc health changed", zap.Bool("serving", up))
				last = up
			}
		}
	}
}

// Serve blocks serving on lis.
func (h *HealthServer) Serve(lis net.Listener) error {
	return h.grpc.Serve(lis)
}

func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}
