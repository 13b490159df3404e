// Package app provides the top-level application lifecycle management for
// predictd. It wires together all dependencies (stores, bus, blob storage,
// analysis client, services and notifications) and starts the goroutines of
// the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/config"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/pipeline"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/service"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	deps    *Dependencies
	svc     *services
	closers []func()
}

// services are the domain services built on top of Dependencies.
type services struct {
	industries  *service.IndustryService
	predictions *service.PredictionService
	accuracy    *service.AccuracyService
	listings    *service.ListingFeed
	analysis    *service.AnalysisService
	export      *pipeline.ExportJob // nil unless S3 is enabled
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Init wires dependencies and builds the services. Run calls it; the one-shot
// CLI commands call it directly.
func (a *App) Init(ctx context.Context) error {
	if a.deps != nil {
		return nil
	}
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	a.deps = deps
	a.svc = buildServices(deps, a.cfg, a.logger)
	return nil
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
		slog.Bool("ephemeral", a.cfg.Ephemeral),
	)

	if err := a.Init(ctx); err != nil {
		return err
	}

	switch strings.ToLower(a.cfg.Mode) {
	case "server":
		return a.ServerMode(ctx)
	case "export":
		return a.ExportMode(ctx)
	case "full":
		return a.FullMode(ctx)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func buildServices(deps *Dependencies, cfg *config.Config, logger *slog.Logger) *services {
	svc := &services{
		industries: service.NewIndustryService(deps.IndustryStore, deps.SignalBus, deps.AuditStore, logger),
		predictions: service.NewPredictionService(
			deps.PredictionStore, deps.IndustryStore,
			deps.SignalBus, deps.AuditStore, deps.Notifier,
			deps.Location, logger,
		),
		accuracy: service.NewAccuracyService(deps.IndustryStore, deps.PredictionStore, logger),
		listings: service.NewListingFeed(deps.SignalBus, deps.IndustryStore, deps.PredictionStore, logger),
		analysis: service.NewAnalysisService(deps.Analyzer, deps.SignalBus, deps.AuditStore, deps.Notifier, logger),
	}
	if deps.Exporter != nil {
		svc.export = pipeline.NewExportJob(deps.Exporter, deps.LockManager, cfg.Export.LockTTL.Duration, deps.Notifier, logger)
	}
	return svc
}
