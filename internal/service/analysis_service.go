package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/analysis"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

// Analyzer is the upstream news analysis client.
type Analyzer interface {
	Analyze(ctx context.Context) domain.NewsAnalysisResult
	Stream(ctx context.Context, s *analysis.Session) error
}

// AnalysisService runs news analyses and broadcasts their outcome.
type AnalysisService struct {
	client Analyzer
	emit   emitter
	logger *slog.Logger
}

// NewAnalysisService creates an AnalysisService. bus and notifier may be nil.
func NewAnalysisService(client Analyzer, bus domain.SignalBus, audit domain.AuditStore, notifier Notifier, logger *slog.Logger) *AnalysisService {
	logger = logger.With(slog.String("component", "analysis_service"))
	return &AnalysisService{
		client: client,
		emit:   emitter{bus: bus, audit: audit, notifier: notifier, logger: logger, now: time.Now},
		logger: logger,
	}
}

// Analyze performs a single-shot analysis.
func (s *AnalysisService) Analyze(ctx context.Context) domain.NewsAnalysisResult {
	res := s.client.Analyze(ctx)
	if res.Success {
		s.emit.publish(ctx, domain.ChannelAnalysis, domain.EventAnalysisCompleted, res)
	} else {
		s.failed(ctx, messageOf(res))
	}
	return res
}

// Stream drives session from the upstream stream until it reaches a terminal
// state. A cancelled ctx is not reported as an analysis failure.
func (s *AnalysisService) Stream(ctx context.Context, session *analysis.Session) error {
	err := s.client.Stream(ctx, session)
	switch {
	case err == nil:
		if res, ok := session.Result(); ok {
			s.emit.publish(ctx, domain.ChannelAnalysis, domain.EventAnalysisCompleted, res)
		}
	case errors.Is(err, context.Canceled), errors.Is(err, domain.ErrSessionActive):
	default:
		s.failed(ctx, err.Error())
	}
	return err
}

func (s *AnalysisService) failed(ctx context.Context, msg string) {
	s.logger.WarnContext(ctx, "analysis failed", slog.String("error", msg))
	s.emit.publish(ctx, domain.ChannelAnalysis, domain.EventAnalysisFailed, map[string]string{"message": msg})
	s.emit.record(ctx, domain.EventAnalysisFailed, map[string]any{"message": msg})
	s.emit.notify(ctx, NotifyAnalysisFailed, "News analysis failed", msg)
}

func messageOf(res domain.NewsAnalysisResult) string {
	if res.Message != nil && *res.Message != "" {
		return *res.Message
	}
	return "unknown error"
}
