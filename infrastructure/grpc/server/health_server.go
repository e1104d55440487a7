package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// StoreServiceName is the health entry following the message store breaker.
const StoreServiceName = "chat-relay.MessageStore"

// Probe reports whether a dependency currently answers.
type Probe func() bool

// HealthServer publishes the standard grpc.health.v1 service. The overall
// status is SERVING while the process runs, the store entry follows the probe.
type HealthServer struct {
	log      *slog.Logger
	health   *health.Server
	probe    Probe
	interval time.Duration
}

func NewHealthServer(log *slog.Logger, probe Probe, interval time.Duration) *HealthServer {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.SetServingStatus(StoreServiceName, healthpb.HealthCheckResponse_SERVING)
	return &HealthServer{log: log, health: h, probe: probe, interval: interval}
}

func (s *HealthServer) Register(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, s.health)
}

// Run is a supervised worker refreshing the store entry.
func (s *HealthServer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ok := s.probe()
			if ok == serving {
				continue
			}
			serving = ok
			status := healthpb.HealthCheckResponse_SERVING
			if !ok {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			s.log.Info("Store health changed", "status", status.String())
			s.health.SetServingStatus(StoreServiceName, status)
		}
	}
}

// Shutdown flips every entry to NOT_SERVING so load balancers drain first.
func (s *HealthServer) Shutdown() {
	s.health.Shutdown()
}
