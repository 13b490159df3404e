package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/stats"
)

// PredictionService mediates every write to predictions. The outcome of a
// prediction is write-once: RecordOutcome relies on the store's atomic
// compare-and-set and never reads then writes on its own.
type PredictionService struct {
	predictions domain.PredictionStore
	industries  domain.IndustryStore
	emit        emitter
	loc         *time.Location
	now         func() time.Time
	logger      *slog.Logger
}

// NewPredictionService creates a PredictionService. Calendar days are
// evaluated in loc; bus, audit and notifier may be nil.
func NewPredictionService(
	predictions domain.PredictionStore,
	industries domain.IndustryStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier Notifier,
	loc *time.Location,
	logger *slog.Logger,
) *PredictionService {
	if loc == nil {
		loc = time.Local
	}
	logger = logger.With(slog.String("component", "prediction_service"))
	return &PredictionService{
		predictions: predictions,
		industries:  industries,
		emit:        emitter{bus: bus, audit: audit, notifier: notifier, logger: logger, now: time.Now},
		loc:         loc,
		now:         time.Now,
		logger:      logger,
	}
}

// Create records a new prediction for industryID. A zero date means now.
// Fails with ErrNotFound for an unknown industry and ErrConflict when the
// industry already has a prediction on the same calendar day.
func (s *PredictionService) Create(ctx context.Context, industryID int64, date time.Time, predicted domain.Direction) (domain.Prediction, error) {
	if !predicted.Valid() {
		return domain.Prediction{}, fmt.Errorf("prediction_service: create: direction %d: %w", int(predicted), domain.ErrInvalidInput)
	}
	if date.IsZero() {
		date = s.now()
	}
	if _, err := s.industries.GetByID(ctx, industryID); err != nil {
		return domain.Prediction{}, fmt.Errorf("prediction_service: create: industry %d: %w", industryID, err)
	}

	p := domain.Prediction{IndustryID: industryID, Date: date, Predicted: predicted}
	id, err := s.predictions.Insert(ctx, p)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("prediction_service: create: %w", err)
	}
	p.ID = id

	s.emit.publish(ctx, domain.ChannelListing, domain.EventPredictionCreated, p)
	s.emit.record(ctx, domain.EventPredictionCreated, map[string]any{
		"id":          id,
		"industry_id": industryID,
		"day":         domain.DayOf(date, s.loc).Format(time.DateOnly),
		"predicted":   predicted.String(),
	})
	s.logger.InfoContext(ctx, "prediction created",
		slog.Int64("id", id),
		slog.Int64("industry_id", industryID),
		slog.String("predicted", predicted.String()),
	)
	return p, nil
}

// RecordOutcome sets the actual direction of a prediction. Recording the
// same value twice is a no-op; a different value fails with
// ErrOutcomeLocked and leaves the stored outcome untouched.
func (s *PredictionService) RecordOutcome(ctx context.Context, id int64, actual domain.Direction) (domain.Prediction, error) {
	if !actual.Valid() {
		return domain.Prediction{}, fmt.Errorf("prediction_service: record outcome %d: direction %d: %w", id, int(actual), domain.ErrInvalidInput)
	}

	p, changed, err := s.predictions.RecordOutcome(ctx, id, actual)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("prediction_service: record outcome %d: %w", id, err)
	}
	if !changed {
		return p, nil
	}

	s.emit.publish(ctx, domain.ChannelListing, domain.EventPredictionResolved, p)
	s.emit.record(ctx, domain.EventPredictionResolved, map[string]any{
		"id":        id,
		"predicted": p.Predicted.String(),
		"actual":    actual.String(),
		"correct":   p.IsCorrect(),
	})

	verdict := "missed"
	if p.IsCorrect() {
		verdict = "correct"
	}
	s.emit.notify(ctx, NotifyOutcomeRecorded, "Outcome recorded",
		fmt.Sprintf("Prediction #%d (industry %d, %s): predicted %s, actual %s, %s",
			p.ID, p.IndustryID, p.Day(s.loc).Format(time.DateOnly), p.Predicted, actual, verdict))
	return p, nil
}

// Get returns a single prediction.
func (s *PredictionService) Get(ctx context.Context, id int64) (domain.Prediction, error) {
	p, err := s.predictions.GetByID(ctx, id)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("prediction_service: get %d: %w", id, err)
	}
	return p, nil
}

// List returns predictions matching filter, newest first.
func (s *PredictionService) List(ctx context.Context, filter domain.PredictionFilter) ([]domain.Prediction, error) {
	out, err := s.predictions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("prediction_service: list: %w", err)
	}
	return out, nil
}

// Delete removes a prediction.
func (s *PredictionService) Delete(ctx context.Context, id int64) error {
	if err := s.predictions.Delete(ctx, id); err != nil {
		return fmt.Errorf("prediction_service: delete %d: %w", id, err)
	}
	s.emit.publish(ctx, domain.ChannelListing, domain.EventPredictionDeleted, map[string]any{"id": id})
	s.emit.record(ctx, domain.EventPredictionDeleted, map[string]any{"id": id})
	return nil
}

// OpenIndustriesToday returns the industries that still lack a prediction
// for the current calendar day.
func (s *PredictionService) OpenIndustriesToday(ctx context.Context) ([]domain.Industry, error) {
	industries, err := s.industries.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("prediction_service: open industries: %w", err)
	}
	today := domain.DayOf(s.now(), s.loc)
	preds, err := s.predictions.List(ctx, domain.PredictionFilter{Day: &today})
	if err != nil {
		return nil, fmt.Errorf("prediction_service: open industries: %w", err)
	}
	return TodaysOpenIndustries(industries, preds, today, s.loc), nil
}

// Pending returns every unresolved prediction, newest first.
func (s *PredictionService) Pending(ctx context.Context) ([]domain.Prediction, error) {
	resolved := false
	preds, err := s.predictions.List(ctx, domain.PredictionFilter{Resolved: &resolved})
	if err != nil {
		return nil, fmt.Errorf("prediction_service: pending: %w", err)
	}
	return PendingOutcomes(preds), nil
}

// TodaysOpenIndustries keeps, in input order, the industries with no
// prediction on the calendar day of today in loc.
func TodaysOpenIndustries(industries []domain.Industry, predictions []domain.Prediction, today time.Time, loc *time.Location) []domain.Industry {
	taken := make(map[int64]bool, len(predictions))
	for _, p := range predictions {
		if domain.SameDay(p.Date, today, loc) {
			taken[p.IndustryID] = true
		}
	}
	open := make([]domain.Industry, 0, len(industries))
	for _, ind := range industries {
		if !taken[ind.ID] {
			open = append(open, ind)
		}
	}
	return open
}

// PendingOutcomes returns the unresolved predictions sorted by date
// descending. The input is not modified.
func PendingOutcomes(predictions []domain.Prediction) []domain.Prediction {
	pending := make([]domain.Prediction, 0, len(predictions))
	for _, p := range predictions {
		if !p.IsResolved() {
			pending = append(pending, p)
		}
	}
	stats.SortByDateDesc(pending)
	return pending
}
