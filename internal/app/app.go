// Package app owns the top-level application lifecycle. It wires the stores,
// caches, venue client, and notification channels together and runs the
// goroutines for the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/giratech/dmtrader/internal/config"
)

// App is the root application object. It holds the configuration, logger,
// and the cleanup functions registered during wiring.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, log *slog.Logger) *App {
	return &App{
		cfg: cfg,
		log: log.With("component", "app"),
	}
}

// Run wires all dependencies, starts the goroutines for the configured mode,
// and blocks until the context is cancelled or the mode finishes.
func (a *App) Run(ctx context.Context) error {
	a.log.InfoContext(ctx, "starting",
		"mode", a.cfg.Mode,
		"log_level", a.cfg.LogLevel,
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.log)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "refresh":
		return a.RefreshMode(ctx, deps)
	case "trade":
		return a.TradeMode(ctx, deps)
	case "markdown":
		return a.MarkdownMode(ctx, deps)
	case "full":
		return a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. Safe to call
// more than once.
func (a *App) Close() {
	a.log.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
