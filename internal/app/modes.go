package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/analysis"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/pipeline"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/server"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/server/handler"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/server/ws"
)

// ErrExportDisabled is returned by export commands when no bucket is configured.
var ErrExportDisabled = errors.New("app: export requires s3.enabled")

// ServerMode serves the HTTP API and WebSocket hub. Manual export triggers
// are rejected because no scheduler consumes them.
func (a *App) ServerMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, nil)
	return g.Wait()
}

// ExportMode runs only the export scheduler.
func (a *App) ExportMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting export mode")
	sched, err := a.newScheduler()
	if err != nil {
		return err
	}
	if sched == nil {
		return ErrExportDisabled
	}
	return sched.Run(ctx)
}

// FullMode runs the HTTP server and, when exports are enabled, the export
// scheduler with the manual trigger endpoint attached to it.
func (a *App) FullMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	var trigger chan<- struct{}
	if sched != nil {
		trigger = sched.Trigger()
		g.Go(func() error { return sched.Run(ctx) })
	}

	a.startHTTPServer(ctx, g, trigger)
	return g.Wait()
}

// newScheduler returns nil when exports are disabled.
func (a *App) newScheduler() (*pipeline.Scheduler, error) {
	if a.svc.export == nil || !a.cfg.Export.Enabled {
		return nil, nil
	}
	return pipeline.NewScheduler(a.svc.export, a.cfg.Export.Cron, a.logger)
}

// startHTTPServer adds the HTTP server, its graceful shutdown and the
// WebSocket hub to g. exportTrigger is optional; when non-nil,
// POST /api/export/trigger sends on it to request one export run.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, exportTrigger chan<- struct{}) {
	exportH := handler.NewExportHandler(a.logger)
	if exportTrigger != nil {
		exportH = exportH.WithTriggerChannel(exportTrigger)
	}
	if a.deps.Exports != nil {
		exportH = exportH.WithReader(a.deps.Exports)
	}

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(a.deps.Pingers, a.logger),
		Status:      handler.NewStatusHandler(a.cfg.Mode, a.cfg.Ephemeral, a.deps.Location.String()),
		Industries:  handler.NewIndustryHandler(a.svc.industries, a.svc.predictions, a.logger),
		Predictions: handler.NewPredictionHandler(a.svc.predictions, a.deps.Location, a.logger),
		Stats:       handler.NewStatsHandler(a.svc.accuracy, a.logger),
		Analysis:    handler.NewAnalysisHandler(a.svc.analysis, a.logger),
		Export:      exportH,
		Audit:       handler.NewAuditHandler(a.deps.AuditStore, a.logger),
		Events:      handler.NewEventsHandler(a.deps.SignalBus, a.logger),
	}

	hub := ws.NewHub(a.deps.SignalBus, a.svc.listings, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, a.deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// Analyze runs one analysis and writes the result to w as JSON. With stream
// set, content is written to w as it arrives before the final result.
func (a *App) Analyze(ctx context.Context, stream bool, w io.Writer) error {
	if err := a.Init(ctx); err != nil {
		return err
	}
	if !stream {
		res := a.svc.analysis.Analyze(ctx)
		if err := writeJSON(w, res); err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("analysis failed: %s", messageOrUnknown(res.Message))
		}
		return nil
	}

	session := analysis.NewSession()
	updates, unsubscribe := session.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		printed := 0
		for u := range updates {
			if content := u.Phase.Content; len(content) > printed {
				fmt.Fprint(w, content[printed:])
				printed = len(content)
			}
		}
	}()

	err := a.svc.analysis.Stream(ctx, session)
	unsubscribe()
	<-done
	fmt.Fprintln(w)

	if res, ok := session.Result(); ok {
		return writeJSON(w, res)
	}
	if err == nil {
		err = session.Err()
	}
	return err
}

// PrintStats writes the accuracy report to w as JSON.
func (a *App) PrintStats(ctx context.Context, w io.Writer) error {
	if err := a.Init(ctx); err != nil {
		return err
	}
	report, err := a.svc.accuracy.Report(ctx)
	if err != nil {
		return err
	}
	return writeJSON(w, report)
}

// ExportOnce runs a single export immediately.
func (a *App) ExportOnce(ctx context.Context) (pipeline.ExportResult, error) {
	if err := a.Init(ctx); err != nil {
		return pipeline.ExportResult{}, err
	}
	if a.svc.export == nil {
		return pipeline.ExportResult{}, ErrExportDisabled
	}
	return a.svc.export.Run(ctx)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func messageOrUnknown(msg *string) string {
	if msg == nil || *msg == "" {
		return "unknown error"
	}
	return *msg
}
