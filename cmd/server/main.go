// Package main implements the entry point for the dispatch API server,
// which queues automation tasks from partitioned source data and drives
// them through the Hamibot provider.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/taskrelay/dispatch-api/internal/config"
	"github.com/taskrelay/dispatch-api/internal/platform/logger"
)

// main wires configuration, logging, the database, the task engine, and
// the HTTP server, then blocks until shutdown.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := initializeApp(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.run(ctx); err != nil {
		app.logger.Error("Server exited with error", "error", err)
		app.cleanup()
		return
	}
}

// initializeApp loads configuration and builds the application graph.
func initializeApp(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"poll_interval", cfg.Worker.PollInterval,
		"lease_timeout", cfg.Worker.LeaseTimeout)

	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}

	return app, nil
}
