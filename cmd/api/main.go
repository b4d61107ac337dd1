package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autosurvey-backend/internal/bootstrap"
	"autosurvey-backend/internal/shared/config"
	"autosurvey-backend/internal/shared/server"
	"autosurvey-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	closeLog, err := telemetry.Init(telemetry.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv := &http.Server{
		Addr:              server.Addr(cfg.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	// Open log watches never finish on their own.
	srv.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		telemetry.Info("api.started", map[string]any{"addr": srv.Addr, "env": cfg.Env, "roster_store": cfg.RosterStore})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			telemetry.Error("api.server_error", map[string]any{"error": err})
		}
	case <-ctx.Done():
		telemetry.Info("api.shutdown_requested", map[string]any{"timeout": cfg.ShutdownTimeout.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Warn("api.http_shutdown", map[string]any{"error": err})
	}
	if err := app.Close(shutdownCtx); err != nil {
		telemetry.Warn("api.drain_incomplete", map[string]any{"error": err})
	}
	telemetry.Info("api.stopped", nil)
}

func shutdownTimeout(cfg config.Config) time.Duration {
	if cfg.ShutdownTimeout > 0 {
		return cfg.ShutdownTimeout
	}
	return 30 * time.Second
}
