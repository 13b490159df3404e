package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/stats"
)

// Report is the full statistics view.
type Report struct {
	Overall    stats.Summary             `json:"overall"`
	Industries []stats.IndustryBreakdown `json:"industries"`
	Recent     []domain.Prediction       `json:"recent"`
}

// IndustryReport is the statistics view of a single industry.
type IndustryReport struct {
	Industry domain.Industry     `json:"industry"`
	Summary  stats.Summary       `json:"summary"`
	Recent   []domain.Prediction `json:"recent"`
}

// AccuracyService loads predictions and runs the accuracy aggregation.
type AccuracyService struct {
	industries  domain.IndustryStore
	predictions domain.PredictionStore
	logger      *slog.Logger
}

// NewAccuracyService creates an AccuracyService.
func NewAccuracyService(industries domain.IndustryStore, predictions domain.PredictionStore, logger *slog.Logger) *AccuracyService {
	return &AccuracyService{
		industries:  industries,
		predictions: predictions,
		logger:      logger.With(slog.String("component", "accuracy_service")),
	}
}

// Report computes overall, per-industry and recent statistics. The overall
// counts are checked against the store's aggregate counters and a mismatch
// is logged.
func (s *AccuracyService) Report(ctx context.Context) (Report, error) {
	industries, err := s.industries.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("accuracy_service: list industries: %w", err)
	}
	preds, err := s.predictions.List(ctx, domain.PredictionFilter{})
	if err != nil {
		return Report{}, fmt.Errorf("accuracy_service: list predictions: %w", err)
	}

	overall := stats.Overall(preds)
	s.crossCheck(ctx, overall)

	return Report{
		Overall:    overall,
		Industries: stats.ByIndustry(industries, preds),
		Recent:     stats.Recent(preds, stats.RecentLimit),
	}, nil
}

// ForIndustry computes the statistics of a single industry.
func (s *AccuracyService) ForIndustry(ctx context.Context, industryID int64) (IndustryReport, error) {
	ind, err := s.industries.GetByID(ctx, industryID)
	if err != nil {
		return IndustryReport{}, fmt.Errorf("accuracy_service: industry %d: %w", industryID, err)
	}
	preds, err := s.predictions.List(ctx, domain.PredictionFilter{IndustryID: &industryID})
	if err != nil {
		return IndustryReport{}, fmt.Errorf("accuracy_service: list predictions: %w", err)
	}
	return IndustryReport{
		Industry: ind,
		Summary:  stats.ForIndustry(preds, industryID),
		Recent:   stats.Recent(preds, stats.RecentLimit),
	}, nil
}

func (s *AccuracyService) crossCheck(ctx context.Context, overall stats.Summary) {
	correct, err := s.predictions.CountCorrect(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "count correct failed", slog.String("error", err.Error()))
		return
	}
	resolved, err := s.predictions.CountResolved(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "count resolved failed", slog.String("error", err.Error()))
		return
	}
	if correct != int64(overall.Correct) || resolved != int64(overall.Resolved) {
		s.logger.WarnContext(ctx, "aggregate counts disagree with listing",
			slog.Int64("store_correct", correct),
			slog.Int64("store_resolved", resolved),
			slog.Int("listed_correct", overall.Correct),
			slog.Int("listed_resolved", overall.Resolved),
		)
	}
}
