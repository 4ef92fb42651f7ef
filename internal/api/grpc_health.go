package api

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name for the bot.
const ServiceName = "chatbot"

// GRPCHealth serves the standard grpc.health.v1 protocol.
type GRPCHealth struct {
	port   int
	health *health.Server
	server *grpc.Server
	logger *zerolog.Logger
}

func NewGRPCHealth(port int, logger *zerolog.Logger) *GRPCHealth {
	hs := health.NewServer()
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)

	l := logger.With().Str("component", "grpc_health").Logger()
	return &GRPCHealth{port: port, health: hs, server: srv, logger: &l}
}

// MarkServing reports SERVING for the bot and the server as a whole.
func (g *GRPCHealth) MarkServing() {
	g.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	g.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
}

// Start serves until ctx is cancelled.
func (g *GRPCHealth) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("listen grpc health: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- g.server.Serve(lis) }()
	g.logger.Info().Int("port", g.port).Msg("gRPC health server listening")

	select {
	case <-ctx.Done():
		g.health.Shutdown()
		g.server.GracefulStop()
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc health server: %w", err)
		}
		return nil
	}
}
