package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/service"
)

// ExportLockKey is the distributed lock that keeps replicas from exporting
// the same tick twice.
const ExportLockKey = "export:predictions"

// ExportResult describes one completed export run.
type ExportResult struct {
	At              time.Time `json:"at"`
	PredictionsPath string    `json:"predictions_path"`
	Predictions     int64     `json:"predictions"`
	IndustriesPath  string    `json:"industries_path"`
	Industries      int64     `json:"industries"`
}

// ExportJob writes snapshots of both entity tables to cold storage.
type ExportJob struct {
	exporter domain.Exporter
	locks    domain.LockManager // optional
	lockTTL  time.Duration
	notifier service.Notifier // optional
	logger   *slog.Logger
	now      func() time.Time

	running sync.Mutex
}

// NewExportJob creates an ExportJob. locks and notifier may be nil.
func NewExportJob(exporter domain.Exporter, locks domain.LockManager, lockTTL time.Duration, notifier service.Notifier, logger *slog.Logger) *ExportJob {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &ExportJob{
		exporter: exporter,
		locks:    locks,
		lockTTL:  lockTTL,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "export_job")),
		now:      time.Now,
	}
}

// Run executes a single export. It returns domain.ErrLockHeld when another
// run, local or on another replica, is in progress.
func (j *ExportJob) Run(ctx context.Context) (ExportResult, error) {
	if !j.running.TryLock() {
		return ExportResult{}, fmt.Errorf("pipeline: export: %w", domain.ErrLockHeld)
	}
	defer j.running.Unlock()

	if j.locks != nil {
		unlock, err := j.locks.Acquire(ctx, ExportLockKey, j.lockTTL)
		if err != nil {
			return ExportResult{}, fmt.Errorf("pipeline: export: %w", err)
		}
		defer unlock()
	}

	at := j.now().UTC()
	j.logger.InfoContext(ctx, "starting export run", slog.Time("at", at))

	res := ExportResult{At: at}
	var err error
	res.PredictionsPath, res.Predictions, err = j.exporter.ExportPredictions(ctx, at)
	if err != nil {
		return res, fmt.Errorf("pipeline: export predictions: %w", err)
	}
	res.IndustriesPath, res.Industries, err = j.exporter.ExportIndustries(ctx, at)
	if err != nil {
		return res, fmt.Errorf("pipeline: export industries: %w", err)
	}

	j.logger.InfoContext(ctx, "export run complete",
		slog.String("predictions_path", res.PredictionsPath),
		slog.Int64("predictions", res.Predictions),
		slog.String("industries_path", res.IndustriesPath),
		slog.Int64("industries", res.Industries),
	)

	if j.notifier != nil {
		msg := fmt.Sprintf("%d predictions -> %s\n%d industries -> %s",
			res.Predictions, res.PredictionsPath, res.Industries, res.IndustriesPath)
		if err := j.notifier.Notify(ctx, service.NotifyExportDone, "Export complete", msg); err != nil {
			j.logger.WarnContext(ctx, "export notification failed", slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// runLogged runs the job and logs the outcome instead of returning it.
// A held lock is expected when several replicas share a schedule.
func (j *ExportJob) runLogged(ctx context.Context, reason string) {
	_, err := j.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrLockHeld):
		j.logger.InfoContext(ctx, "export skipped, lock held", slog.String("reason", reason))
	case ctx.Err() != nil:
	default:
		j.logger.ErrorContext(ctx, "export run failed",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
	}
}
