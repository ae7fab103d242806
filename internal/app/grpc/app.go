package grpcapp

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported next to the overall "" status.
const ServiceName = "sessionauth.Auth"

// App serves grpc.health.v1 so orchestrators can probe the service over gRPC.
type App struct {
	logger     *slog.Logger
	gRPCServer *grpc.Server
	health     *health.Server
	port       int
}

// New builds the gRPC server. Reflection is registered when reflect is true.
func New(logger *slog.Logger, port int, reflect bool) *App {
	gRPCServer := grpc.NewServer()

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(gRPCServer, hs)

	if reflect {
		reflection.Register(gRPCServer)
	}

	return &App{
		logger:     logger,
		gRPCServer: gRPCServer,
		health:     hs,
		port:       port,
	}
}

// Server exposes the underlying server, e.g. to serve it on an in-memory listener.
func (a *App) Server() *grpc.Server {
	return a.gRPCServer
}

// SetServing flips the reported status of the service.
func (a *App) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	a.health.SetServingStatus("", status)
	a.health.SetServingStatus(ServiceName, status)
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "grpcapp.Run"

	log := a.logger.With(
		slog.String("op", op),
		slog.Int("port", a.port),
	)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.port))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("gRPC server is running", slog.String("address", listener.Addr().String()))

	if err := a.Serve(listener); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Serve marks the service as serving and blocks serving lis.
func (a *App) Serve(lis net.Listener) error {
	a.SetServing(true)
	return a.gRPCServer.Serve(lis)
}

func (a *App) Stop() {
	const op = "grpcapp.Stop"

	log := a.logger.With(slog.String("op", op))
	log.Info("stopping gRPC server", slog.Int("port", a.port))

	a.health.Shutdown()
	a.gRPCServer.GracefulStop()
}
