// Package app owns the process lifecycle for traderpulse: it assembles the
// dependency graph (provider client, Postgres sink, Redis cache and bus, S3
// archive, notifiers) and runs whichever operating mode the config selects.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/calderhq/traderpulse/internal/config"
)

// App is the process root. Cleanup functions accumulate as dependencies come
// up and run in reverse order on Close.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires the dependency graph and hands control to the configured mode,
// blocking until the context is cancelled or the mode returns. Callers are
// expected to Close afterwards regardless of the error.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting traderpulse",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)
	a.logger.DebugContext(ctx, "active configuration",
		slog.Any("config", config.RedactedConfig(a.cfg)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "monitor":
		return a.MonitorMode(ctx, deps)
	case "server":
		return a.ServerMode(ctx, deps)
	case "full":
		return a.FullMode(ctx, deps)
	}
	return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
}

// Close releases everything Run acquired, newest first. Safe to call more
// than once.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
