package domain

import (
	"context"
	"time"
)

// PredictionFilter narrows prediction listings. Nil fields do not filter.
type PredictionFilter struct {
	IndustryID *int64
	Day        *time.Time
	Resolved   *bool
	Limit      int
	Offset     int
}

// ListOpts provides pagination and filtering for audit queries.
// EventPrefix matches event names such as "prediction." or "export.".
type ListOpts struct {
	Limit       int
	Offset      int
	Since       *time.Time
	Until       *time.Time
	EventPrefix string
}

// IndustryStore persists industries. List orders by name ascending.
type IndustryStore interface {
	Insert(ctx context.Context, ind Industry) (int64, error)
	Update(ctx context.Context, ind Industry) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (Industry, error)
	List(ctx context.Context) ([]Industry, error)
}

// PredictionStore persists predictions. List orders by date descending.
//
// RecordOutcome is the only way Actual changes: it sets it when absent, is a
// no-op when the stored value already equals d, and fails with
// ErrOutcomeLocked otherwise. The check and the write are atomic.
type PredictionStore interface {
	Insert(ctx context.Context, p Prediction) (int64, error)
	Update(ctx context.Context, p Prediction) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (Prediction, error)
	List(ctx context.Context, filter PredictionFilter) ([]Prediction, error)
	RecordOutcome(ctx context.Context, id int64, d Direction) (Prediction, bool, error)
	CountCorrect(ctx context.Context) (int64, error)
	CountResolved(ctx context.Context) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
