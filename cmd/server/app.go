package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/taskrelay/dispatch-api/internal/config"
	"github.com/taskrelay/dispatch-api/internal/platform/hamibot"
	"github.com/taskrelay/dispatch-api/internal/platform/postgres"
	"github.com/taskrelay/dispatch-api/internal/service"
	"github.com/taskrelay/dispatch-api/internal/task"
)

// application holds the wired dependency graph for the server process.
type application struct {
	config   *config.Config
	logger   *slog.Logger
	db       *sql.DB
	poller   *task.Poller
	dispatch *service.DispatchService
}

// newApplication connects the database, applies migrations, and builds
// the stores, provider client, task engine, and dispatch service.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := setupDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := postgres.MigrateUp(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	taskStore := postgres.NewPostgresTaskStore(db, cfg.Worker.LeaseTimeout)
	itemStore := postgres.NewPostgresSourceItemStore(db)

	client := hamibot.NewClient(hamibot.Config{
		BaseURL:    cfg.Hamibot.BaseURL,
		Token:      cfg.Hamibot.Token,
		ScriptID:   cfg.Hamibot.ScriptID,
		DeviceID:   cfg.Hamibot.DeviceID,
		DeviceName: cfg.Hamibot.DeviceName,
	}, logger)

	executor := task.NewExecutor(client)
	tracker := task.NewTracker(taskStore, itemStore, logger)
	poller := task.NewPoller(taskStore, itemStore, executor, tracker, task.PollerConfig{
		BaseInterval: cfg.Worker.PollInterval,
		MaxInterval:  cfg.Worker.MaxPollInterval,
		Logger:       logger,
	})

	dispatch := service.NewDispatchService(taskStore, itemStore, client, poller, logger)

	return &application{
		config:   cfg,
		logger:   logger,
		db:       db,
		poller:   poller,
		dispatch: dispatch,
	}, nil
}

// run starts the poll worker and the HTTP server, blocking until the
// context is canceled or the server fails.
func (app *application) run(ctx context.Context) error {
	// Pick up any tasks left over from a previous run
	app.poller.Start(ctx)

	return app.startHTTPServer(ctx, app.setupRouter())
}

// cleanup releases the application's long-lived resources.
func (app *application) cleanup() {
	app.poller.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("Failed to close database connection", "error", err)
	}
}
