// Package memory provides an in-memory implementation of the entity stores
// used for tests and ephemeral environments.
//
// Industry names sort by Unicode code point, the same order the Postgres
// store gets from COLLATE "C", so listings match across both backends
// regardless of the database's default collation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/stats"
)

var (
	_ domain.IndustryStore   = (*IndustryStore)(nil)
	_ domain.PredictionStore = (*PredictionStore)(nil)
	_ domain.AuditStore      = (*AuditStore)(nil)
)

// Store owns the shared state behind the three store views. All views
// serialize through one lock so cross-entity checks (referenced industries,
// missing industries) see a consistent picture.
type Store struct {
	mu          sync.RWMutex
	loc         *time.Location
	industries  map[int64]domain.Industry
	predictions map[int64]domain.Prediction
	audit       []domain.AuditEntry
	nextInd     int64
	nextPred    int64
	nextAudit   int64
	now         func() time.Time
}

// New creates an empty Store. loc defines calendar days for the
// one-prediction-per-industry-per-day rule; nil means UTC.
func New(loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		loc:         loc,
		industries:  make(map[int64]domain.Industry),
		predictions: make(map[int64]domain.Prediction),
		now:         time.Now,
	}
}

// Industries returns the industry view of the store.
func (s *Store) Industries() *IndustryStore { return &IndustryStore{s: s} }

// Predictions returns the prediction view of the store.
func (s *Store) Predictions() *PredictionStore { return &PredictionStore{s: s} }

// Audit returns the audit log view of the store.
func (s *Store) Audit() *AuditStore { return &AuditStore{s: s} }

// IndustryStore implements domain.IndustryStore.
type IndustryStore struct{ s *Store }

func (v *IndustryStore) Insert(ctx context.Context, ind domain.Industry) (int64, error) {
	name, err := domain.NormalizeIndustryName(ind.Name)
	if err != nil {
		return 0, err
	}
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextInd++
	s.industries[s.nextInd] = domain.Industry{ID: s.nextInd, Name: name}
	return s.nextInd, nil
}

func (v *IndustryStore) Update(ctx context.Context, ind domain.Industry) error {
	name, err := domain.NormalizeIndustryName(ind.Name)
	if err != nil {
		return err
	}
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.industries[ind.ID]; !ok {
		return fmt.Errorf("memory: update industry %d: %w", ind.ID, domain.ErrNotFound)
	}
	s.industries[ind.ID] = domain.Industry{ID: ind.ID, Name: name}
	return nil
}

func (v *IndustryStore) Delete(ctx context.Context, id int64) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.industries[id]; !ok {
		return fmt.Errorf("memory: delete industry %d: %w", id, domain.ErrNotFound)
	}
	for _, p := range s.predictions {
		if p.IndustryID == id {
			return fmt.Errorf("memory: delete industry %d: still referenced by predictions: %w", id, domain.ErrConflict)
		}
	}
	delete(s.industries, id)
	return nil
}

func (v *IndustryStore) GetByID(ctx context.Context, id int64) (domain.Industry, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	ind, ok := s.industries[id]
	if !ok {
		return domain.Industry{}, fmt.Errorf("memory: get industry %d: %w", id, domain.ErrNotFound)
	}
	return ind, nil
}

func (v *IndustryStore) List(ctx context.Context) ([]domain.Industry, error) {
	s := v.s
	s.mu.RLock()
	out := make([]domain.Industry, 0, len(s.industries))
	for _, ind := range s.industries {
		out = append(out, ind)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// PredictionStore implements domain.PredictionStore.
type PredictionStore struct{ s *Store }

func (v *PredictionStore) Insert(ctx context.Context, p domain.Prediction) (int64, error) {
	if !p.Predicted.Valid() {
		return 0, fmt.Errorf("memory: insert prediction: predicted direction %d: %w", int(p.Predicted), domain.ErrInvalidInput)
	}
	if p.Actual != nil {
		return 0, fmt.Errorf("memory: insert prediction: outcome must be recorded after creation: %w", domain.ErrInvalidInput)
	}
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.industries[p.IndustryID]; !ok {
		return 0, fmt.Errorf("memory: insert prediction: industry %d: %w", p.IndustryID, domain.ErrNotFound)
	}
	for _, existing := range s.predictions {
		if existing.IndustryID == p.IndustryID && domain.SameDay(existing.Date, p.Date, s.loc) {
			return 0, fmt.Errorf("memory: insert prediction: industry %d already has a prediction on %s: %w",
				p.IndustryID, domain.DayOf(p.Date, s.loc).Format(time.DateOnly), domain.ErrConflict)
		}
	}
	s.nextPred++
	p.ID = s.nextPred
	s.predictions[p.ID] = p
	return p.ID, nil
}

// Update only ever applies the outcome; identity fields of p are ignored.
func (v *PredictionStore) Update(ctx context.Context, p domain.Prediction) error {
	if p.Actual == nil {
		s := v.s
		s.mu.RLock()
		defer s.mu.RUnlock()
		if _, ok := s.predictions[p.ID]; !ok {
			return fmt.Errorf("memory: update prediction %d: %w", p.ID, domain.ErrNotFound)
		}
		return nil
	}
	_, _, err := v.RecordOutcome(ctx, p.ID, *p.Actual)
	return err
}

func (v *PredictionStore) Delete(ctx context.Context, id int64) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.predictions[id]; !ok {
		return fmt.Errorf("memory: delete prediction %d: %w", id, domain.ErrNotFound)
	}
	delete(s.predictions, id)
	return nil
}

func (v *PredictionStore) GetByID(ctx context.Context, id int64) (domain.Prediction, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.predictions[id]
	if !ok {
		return domain.Prediction{}, fmt.Errorf("memory: get prediction %d: %w", id, domain.ErrNotFound)
	}
	p.Actual = copyDirection(p.Actual)
	return p, nil
}

func (v *PredictionStore) List(ctx context.Context, f domain.PredictionFilter) ([]domain.Prediction, error) {
	s := v.s
	s.mu.RLock()
	out := make([]domain.Prediction, 0, len(s.predictions))
	for _, p := range s.predictions {
		if f.IndustryID != nil && p.IndustryID != *f.IndustryID {
			continue
		}
		if f.Day != nil && !domain.SameDay(p.Date, *f.Day, s.loc) {
			continue
		}
		if f.Resolved != nil && p.IsResolved() != *f.Resolved {
			continue
		}
		p.Actual = copyDirection(p.Actual)
		out = append(out, p)
	}
	s.mu.RUnlock()

	stats.SortByDateDesc(out)
	return paginate(out, f.Limit, f.Offset), nil
}

// ListBefore returns every prediction dated strictly before cutoff, oldest
// first.
func (v *PredictionStore) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.Prediction, error) {
	s := v.s
	s.mu.RLock()
	out := make([]domain.Prediction, 0, len(s.predictions))
	for _, p := range s.predictions {
		if p.Date.Before(cutoff) {
			p.Actual = copyDirection(p.Actual)
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *PredictionStore) RecordOutcome(ctx context.Context, id int64, d domain.Direction) (domain.Prediction, bool, error) {
	if !d.Valid() {
		return domain.Prediction{}, false, fmt.Errorf("memory: record outcome %d: direction %d: %w", id, int(d), domain.ErrInvalidInput)
	}
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.predictions[id]
	if !ok {
		return domain.Prediction{}, false, fmt.Errorf("memory: record outcome %d: %w", id, domain.ErrNotFound)
	}
	if p.Actual != nil {
		current := *p.Actual
		p.Actual = copyDirection(p.Actual)
		if current == d {
			return p, false, nil
		}
		return p, false, fmt.Errorf("memory: record outcome %d: stored %s, requested %s: %w", id, current, d, domain.ErrOutcomeLocked)
	}
	p.Actual = domain.DirectionPtr(d)
	s.predictions[id] = p
	p.Actual = copyDirection(p.Actual)
	return p, true, nil
}

func (v *PredictionStore) CountCorrect(ctx context.Context) (int64, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, p := range s.predictions {
		if p.IsCorrect() {
			n++
		}
	}
	return n, nil
}

func (v *PredictionStore) CountResolved(ctx context.Context) (int64, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, p := range s.predictions {
		if p.IsResolved() {
			n++
		}
	}
	return n, nil
}

// AuditStore implements domain.AuditStore.
type AuditStore struct{ s *Store }

func (v *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAudit++
	copied := make(map[string]any, len(detail))
	for k, val := range detail {
		copied[k] = val
	}
	s.audit = append(s.audit, domain.AuditEntry{
		ID:        s.nextAudit,
		Event:     event,
		Detail:    copied,
		CreatedAt: s.now().UTC(),
	})
	return nil
}

// List returns entries newest first.
func (v *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s := v.s
	s.mu.RLock()
	out := make([]domain.AuditEntry, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		if !strings.HasPrefix(e.Event, opts.EventPrefix) {
			continue
		}
		out = append(out, e)
	}
	s.mu.RUnlock()
	return paginate(out, opts.Limit, opts.Offset), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func copyDirection(d *domain.Direction) *domain.Direction {
	if d == nil {
		return nil
	}
	return domain.DirectionPtr(*d)
}

// String summarizes the store contents, mainly for debugging tests.
func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("memory.Store{industries=%d predictions=%d audit=%d}", len(s.industries), len(s.predictions), len(s.audit))
}
