// Package app provides the top-level application lifecycle management for
// the copy-trading engine. It wires together every dependency (store,
// broker clients, sizing, rate limiting, notifications, archival) and runs
// the Supervisor until the process is asked to shut down.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions run in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies and blocks running the Supervisor until ctx is
// cancelled or a fatal error occurs. It registers the wiring's cleanup
// function; Close runs it.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting copy-trading engine",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return deps.Supervisor.Run(ctx)
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down copy-trading engine")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
