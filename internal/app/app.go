// Package app provides top-level application lifecycle management for the
// arbitrage core. It wires together all dependencies (stores, caches, blob
// storage, core components, the scan pipeline and the API server) and starts
// the appropriate goroutines based on the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/arbot/internal/config"
)

// Operating modes. Scan runs the pipeline headless, serve exposes the API
// without scanning, full does both.
const (
	ModeScan  = "scan"
	ModeServe = "serve"
	ModeFull  = "full"
)

// App owns the process lifecycle: wiring, mode dispatch, and teardown.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	cleanups []func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies and blocks in the configured mode until ctx is
// cancelled. Call Close afterwards to release wired resources.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.onClose(cleanup)

	switch mode {
	case ModeScan:
		return a.ScanMode(ctx, deps)
	case ModeServe:
		return a.ServeMode(ctx, deps)
	case ModeFull:
		return a.FullMode(ctx, deps)
	}
	return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
}

func (a *App) onClose(fn func()) {
	a.cleanups = append(a.cleanups, fn)
}

// Close releases resources in reverse registration order. Safe to call more
// than once.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}
