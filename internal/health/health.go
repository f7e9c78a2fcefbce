// Package health exposes the standard gRPC health service for the manager.
package health

import (
	"context"
	"log/slog"
	"net"
	"sort"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// RunnerService is the health service name tracking the runner executable.
const RunnerService = "runner"

const checkTimeout = 5 * time.Second

// Check reports nil when a dependency is healthy.
type Check func(ctx context.Context) error

// Server serves grpc.health.v1.Health with statuses refreshed from checks.
// The check registered under "" drives the overall server status.
type Server struct {
	grpc   *grpc.Server
	health *grpchealth.Server
	checks map[string]Check
}

// NewServer registers the health and reflection services. All statuses start
// as NOT_SERVING until the first Refresh.
func NewServer(checks map[string]Check) *Server {
	hs := grpchealth.NewServer()
	gs := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	for name := range checks {
		hs.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}

	return &Server{grpc: gs, health: hs, checks: checks}
}

// Refresh runs every check once and publishes the results.
func (s *Server) Refresh(ctx context.Context) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := s.checks[name](checkCtx)
		cancel()

		status := grpc_health_v1.HealthCheckResponse_SERVING
		if err != nil {
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			slog.Warn("Health check failed", "service", serviceLabel(name), "error", err)
		}
		s.health.SetServingStatus(name, status)
	}
}

// Watch refreshes statuses on a fixed interval until ctx is cancelled.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		s.Refresh(ctx)
		for {
			select {
			case <-ticker.C:
				s.Refresh(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Serve blocks serving gRPC on lis.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("gRPC health server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func serviceLabel(name string) string {
	if name == "" {
		return "overall"
	}
	return name
}
