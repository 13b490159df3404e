package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

// IndustryService manages the industry catalogue.
type IndustryService struct {
	industries domain.IndustryStore
	emit       emitter
	logger     *slog.Logger
}

// NewIndustryService creates an IndustryService. bus and audit may be nil.
func NewIndustryService(
	industries domain.IndustryStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *IndustryService {
	logger = logger.With(slog.String("component", "industry_service"))
	return &IndustryService{
		industries: industries,
		emit:       emitter{bus: bus, audit: audit, logger: logger, now: time.Now},
		logger:     logger,
	}
}

// Create adds a new industry with a trimmed, non-empty name.
func (s *IndustryService) Create(ctx context.Context, name string) (domain.Industry, error) {
	n, err := domain.NormalizeIndustryName(name)
	if err != nil {
		return domain.Industry{}, fmt.Errorf("industry_service: create: %w", err)
	}

	ind := domain.Industry{Name: n}
	id, err := s.industries.Insert(ctx, ind)
	if err != nil {
		return domain.Industry{}, fmt.Errorf("industry_service: create: %w", err)
	}
	ind.ID = id

	s.emit.publish(ctx, domain.ChannelListing, domain.EventIndustryCreated, ind)
	s.emit.record(ctx, domain.EventIndustryCreated, map[string]any{"id": id, "name": n})
	s.logger.InfoContext(ctx, "industry created", slog.Int64("id", id), slog.String("name", n))
	return ind, nil
}

// Rename changes the name of an existing industry.
func (s *IndustryService) Rename(ctx context.Context, id int64, name string) (domain.Industry, error) {
	n, err := domain.NormalizeIndustryName(name)
	if err != nil {
		return domain.Industry{}, fmt.Errorf("industry_service: rename %d: %w", id, err)
	}

	ind := domain.Industry{ID: id, Name: n}
	if err := s.industries.Update(ctx, ind); err != nil {
		return domain.Industry{}, fmt.Errorf("industry_service: rename %d: %w", id, err)
	}

	s.emit.publish(ctx, domain.ChannelListing, domain.EventIndustryRenamed, ind)
	s.emit.record(ctx, domain.EventIndustryRenamed, map[string]any{"id": id, "name": n})
	return ind, nil
}

// Delete removes an industry. Industries that still have predictions cannot
// be deleted and yield ErrConflict.
func (s *IndustryService) Delete(ctx context.Context, id int64) error {
	if err := s.industries.Delete(ctx, id); err != nil {
		return fmt.Errorf("industry_service: delete %d: %w", id, err)
	}

	s.emit.publish(ctx, domain.ChannelListing, domain.EventIndustryDeleted, map[string]any{"id": id})
	s.emit.record(ctx, domain.EventIndustryDeleted, map[string]any{"id": id})
	s.logger.InfoContext(ctx, "industry deleted", slog.Int64("id", id))
	return nil
}

// Get returns a single industry.
func (s *IndustryService) Get(ctx context.Context, id int64) (domain.Industry, error) {
	ind, err := s.industries.GetByID(ctx, id)
	if err != nil {
		return domain.Industry{}, fmt.Errorf("industry_service: get %d: %w", id, err)
	}
	return ind, nil
}

// List returns all industries ordered by name.
func (s *IndustryService) List(ctx context.Context) ([]domain.Industry, error) {
	out, err := s.industries.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("industry_service: list: %w", err)
	}
	return out, nil
}
