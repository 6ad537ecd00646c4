// Package server provides the network listeners of the emailsieve service:
// SMTP/LMTP ingress, the gRPC health service and the HTTP admin API.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/bigcats-cc/email-sieve/internal/core/config"
)

// shutdownTimeout bounds graceful shutdown of every listener.
const shutdownTimeout = 30 * time.Second

// GRPCServer serves the standard gRPC health service. Status is SERVING
// while the mail listener accepts messages and NOT_SERVING otherwise.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	config config.GRPCConfig
}

// NewGRPCServer creates a gRPC server with the health service registered
// and reporting NOT_SERVING until SetServing is called.
func NewGRPCServer(cfg config.GRPCConfig) *GRPCServer {
	server := grpc.NewServer()

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &GRPCServer{
		server: server,
		health: healthServer,
		config: cfg,
	}
}

// SetServing flips the overall health status.
func (s *GRPCServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Start binds the configured address and serves until Shutdown.
func (s *GRPCServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener.
func (s *GRPCServer) Serve(l net.Listener) error {
	return s.server.Serve(l)
}

// Shutdown marks the service NOT_SERVING and stops gracefully, forcing a
// stop when ctx ends or the timeout passes.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-time.After(shutdownTimeout):
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}
