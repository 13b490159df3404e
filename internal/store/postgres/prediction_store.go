package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

// PredictionStore implements domain.PredictionStore using PostgreSQL.
type PredictionStore struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewPredictionStore creates a PredictionStore. loc decides which calendar
// day a prediction belongs to for the per-industry daily uniqueness rule.
func NewPredictionStore(pool *pgxpool.Pool, loc *time.Location) *PredictionStore {
	if loc == nil {
		loc = time.UTC
	}
	return &PredictionStore{pool: pool, loc: loc}
}

const predictionSelectCols = `id, industry_id, predicted_at, predicted_direction, actual_direction`

func scanPredictionRow(row pgx.Row) (domain.Prediction, error) {
	var (
		p         domain.Prediction
		predicted int16
		actual    *int16
	)
	if err := row.Scan(&p.ID, &p.IndustryID, &p.Date, &predicted, &actual); err != nil {
		return domain.Prediction{}, err
	}
	p.Predicted = domain.Direction(predicted)
	if actual != nil {
		p.Actual = domain.DirectionPtr(domain.Direction(*actual))
	}
	return p, nil
}

func scanPredictionRows(rows pgx.Rows) ([]domain.Prediction, error) {
	predictions := []domain.Prediction{}
	for rows.Next() {
		p, err := scanPredictionRow(rows)
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

// Insert creates a prediction without an outcome; a set Actual is rejected
// with domain.ErrInvalidInput. A second prediction for the same industry on
// the same day violates uq_predictions_industry_day and yields
// domain.ErrConflict; an unknown industry yields domain.ErrNotFound.
func (s *PredictionStore) Insert(ctx context.Context, p domain.Prediction) (int64, error) {
	if !p.Predicted.Valid() {
		return 0, fmt.Errorf("postgres: insert prediction: predicted direction %d: %w", int(p.Predicted), domain.ErrInvalidInput)
	}
	if p.Actual != nil {
		return 0, fmt.Errorf("postgres: insert prediction: outcome must be recorded after creation: %w", domain.ErrInvalidInput)
	}

	const query = `
		INSERT INTO predictions (industry_id, predicted_at, prediction_day, predicted_direction)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		p.IndustryID, p.Date, domain.DayOf(p.Date, s.loc), int16(p.Predicted),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert prediction for industry %d: %w", p.IndustryID, mapWriteErr(err, domain.ErrNotFound))
	}
	return id, nil
}

// Update applies p.Actual through RecordOutcome; every other field of a
// stored prediction is immutable and ignored here.
func (s *PredictionStore) Update(ctx context.Context, p domain.Prediction) error {
	if p.Actual == nil {
		_, err := s.GetByID(ctx, p.ID)
		return err
	}
	_, _, err := s.RecordOutcome(ctx, p.ID, *p.Actual)
	return err
}

// Delete removes a prediction.
func (s *PredictionStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM predictions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete prediction %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: delete prediction %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetByID retrieves a single prediction.
func (s *PredictionStore) GetByID(ctx context.Context, id int64) (domain.Prediction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+predictionSelectCols+` FROM predictions WHERE id = $1`, id)

	p, err := scanPredictionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Prediction{}, fmt.Errorf("postgres: get prediction %d: %w", id, domain.ErrNotFound)
		}
		return domain.Prediction{}, fmt.Errorf("postgres: get prediction %d: %w", id, err)
	}
	return p, nil
}

// List returns predictions matching f, newest first.
func (s *PredictionStore) List(ctx context.Context, f domain.PredictionFilter) ([]domain.Prediction, error) {
	query := `SELECT ` + predictionSelectCols + ` FROM predictions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.IndustryID != nil {
		query += fmt.Sprintf(" AND industry_id = $%d", argIdx)
		args = append(args, *f.IndustryID)
		argIdx++
	}
	if f.Day != nil {
		query += fmt.Sprintf(" AND prediction_day = $%d", argIdx)
		args = append(args, domain.DayOf(*f.Day, s.loc))
		argIdx++
	}
	if f.Resolved != nil {
		if *f.Resolved {
			query += " AND actual_direction IS NOT NULL"
		} else {
			query += " AND actual_direction IS NULL"
		}
	}

	query += " ORDER BY predicted_at DESC, id DESC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list predictions: %w", err)
	}
	defer rows.Close()

	predictions, err := scanPredictionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan predictions: %w", err)
	}
	return predictions, nil
}

// RecordOutcome locks the row, compares the stored outcome and writes d only
// when none is recorded yet. The returned bool reports whether a write took
// place.
func (s *PredictionStore) RecordOutcome(ctx context.Context, id int64, d domain.Direction) (domain.Prediction, bool, error) {
	if !d.Valid() {
		return domain.Prediction{}, false, fmt.Errorf("postgres: record outcome %d: direction %d: %w", id, int(d), domain.ErrInvalidInput)
	}

	var (
		result  domain.Prediction
		changed bool
	)
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+predictionSelectCols+` FROM predictions WHERE id = $1 FOR UPDATE`, id)
		p, err := scanPredictionRow(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}

		if p.Actual != nil {
			result = p
			if *p.Actual == d {
				return nil
			}
			return fmt.Errorf("stored %s, requested %s: %w", *p.Actual, d, domain.ErrOutcomeLocked)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE predictions SET
				actual_direction = $2,
				resolved_at      = NOW()
			WHERE id = $1 AND actual_direction IS NULL`, id, int16(d))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrOutcomeLocked
		}
		p.Actual = domain.DirectionPtr(d)
		result = p
		changed = true
		return nil
	})
	if err != nil {
		return result, false, fmt.Errorf("postgres: record outcome %d: %w", id, err)
	}
	return result, changed, nil
}

// CountCorrect counts resolved predictions whose outcome matched.
func (s *PredictionStore) CountCorrect(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM predictions
		WHERE actual_direction IS NOT NULL AND actual_direction = predicted_direction`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count correct predictions: %w", err)
	}
	return n, nil
}

// CountResolved counts predictions with a recorded outcome.
func (s *PredictionStore) CountResolved(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM predictions WHERE actual_direction IS NOT NULL`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count resolved predictions: %w", err)
	}
	return n, nil
}

// ListBefore returns every prediction made strictly before cutoff, oldest
// first. It feeds the snapshot exporter.
func (s *PredictionStore) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.Prediction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+predictionSelectCols+` FROM predictions
		 WHERE predicted_at < $1
		 ORDER BY predicted_at ASC, id ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list predictions before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()

	predictions, err := scanPredictionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan predictions: %w", err)
	}
	return predictions, nil
}

var _ domain.PredictionStore = (*PredictionStore)(nil)
