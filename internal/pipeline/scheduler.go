package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs an ExportJob on a cron schedule and on demand.
type Scheduler struct {
	job      *ExportJob
	schedule string
	trigger  chan struct{}
	logger   *slog.Logger
}

// NewScheduler validates schedule (standard 5-field cron, or descriptors such
// as "@daily") and returns a Scheduler. An empty schedule disables timed runs;
// the trigger channel still works.
func NewScheduler(job *ExportJob, schedule string, logger *slog.Logger) (*Scheduler, error) {
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("pipeline: parse cron %q: %w", schedule, err)
		}
	}
	return &Scheduler{
		job:      job,
		schedule: schedule,
		trigger:  make(chan struct{}, 1),
		logger:   logger.With(slog.String("component", "export_scheduler")),
	}, nil
}

// Trigger returns the channel that requests one out-of-schedule run.
func (s *Scheduler) Trigger() chan<- struct{} { return s.trigger }

// Run blocks until ctx is cancelled, then waits for an in-flight scheduled
// run to return.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLogger(cronLogger{s.logger}),
		cron.WithChain(cron.Recover(cronLogger{s.logger})),
	)
	if s.schedule != "" {
		if _, err := c.AddFunc(s.schedule, func() { s.job.runLogged(ctx, "schedule") }); err != nil {
			return fmt.Errorf("pipeline: schedule export: %w", err)
		}
	}
	c.Start()
	s.logger.Info("export scheduler started", slog.String("cron", s.schedule))

	for {
		select {
		case <-ctx.Done():
			<-c.Stop().Done()
			s.logger.Info("export scheduler stopped")
			return nil
		case <-s.trigger:
			s.job.runLogged(ctx, "trigger")
		}
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err.Error())...)
}
