package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/erg0nix/docchat/internal/config"
	"github.com/erg0nix/docchat/internal/rpc"
	"github.com/erg0nix/docchat/internal/server"
)

const drainTimeout = 5 * time.Second

// RunServer serves gRPC on cfg.Bind and HTTP on cfg.HTTPBind until a signal or a Shutdown
// call arrives, then drains both.
func RunServer(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	services, err := NewServices(ctx, cfg)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	defer services.Close()

	return Serve(ctx, services)
}

// Serve runs both listeners for services until ctx is done.
func Serve(ctx context.Context, services *Services) error {
	cfg := services.Config
	startTime := time.Now()

	releasePID, err := claimPIDFile(PIDFile(cfg.DataDir))
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	defer releasePID()

	grpcListener, err := net.Listen("tcp", cfg.Bind)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", cfg.Bind, err)
	}

	httpListener, err := net.Listen("tcp", cfg.HTTPBind)
	if err != nil {
		grpcListener.Close()
		return fmt.Errorf("server: listen %s: %w", cfg.HTTPBind, err)
	}

	shutdownCh := make(chan struct{}, 1)

	grpcServer := grpc.NewServer()
	rpc.RegisterChatServiceServer(grpcServer, &rpc.Handler{
		Orchestrator: services.Orchestrator,
		Config:       cfg,
		StartTime:    startTime,
		StopFunc: func() {
			select {
			case shutdownCh <- struct{}{}:
			default:
			}
		},
	})

	httpServer := &http.Server{
		Handler: server.New(services.Orchestrator, server.Options{
			MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
			Stream:         cfg.Stream,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	slog.Info("server listening", "grpc", grpcListener.Addr().String(), "http", httpListener.Addr().String())

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("received signal, shutting down")
	case <-shutdownCh:
		slog.Info("shutdown requested via rpc")
	case serveErr = <-errCh:
		slog.Error("server failed", "error", serveErr)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := httpServer.Shutdown(drainCtx); err != nil {
		slog.Warn("http drain timeout, forcing shutdown", "error", err)
		httpServer.Close()
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-drainCtx.Done():
		slog.Warn("grpc drain timeout, forcing shutdown")
		grpcServer.Stop()
	}

	return serveErr
}
