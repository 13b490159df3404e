package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

// IndustryStore implements domain.IndustryStore using PostgreSQL.
type IndustryStore struct {
	pool *pgxpool.Pool
}

// NewIndustryStore creates a new IndustryStore backed by the given connection pool.
func NewIndustryStore(pool *pgxpool.Pool) *IndustryStore {
	return &IndustryStore{pool: pool}
}

// Insert creates an industry and returns its generated id.
func (s *IndustryStore) Insert(ctx context.Context, ind domain.Industry) (int64, error) {
	name, err := domain.NormalizeIndustryName(ind.Name)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO industries (name) VALUES ($1) RETURNING id`, name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert industry %q: %w", name, mapWriteErr(err, domain.ErrInvalidInput))
	}
	return id, nil
}

// Update renames an industry.
func (s *IndustryStore) Update(ctx context.Context, ind domain.Industry) error {
	name, err := domain.NormalizeIndustryName(ind.Name)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE industries SET name = $2, updated_at = NOW() WHERE id = $1`, ind.ID, name)
	if err != nil {
		return fmt.Errorf("postgres: update industry %d: %w", ind.ID, mapWriteErr(err, domain.ErrInvalidInput))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update industry %d: %w", ind.ID, domain.ErrNotFound)
	}
	return nil
}

// Delete removes an industry. The predictions foreign key is ON DELETE
// RESTRICT, so a referenced industry yields domain.ErrConflict.
func (s *IndustryStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM industries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete industry %d: %w", id, mapWriteErr(err, domain.ErrConflict))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: delete industry %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetByID retrieves a single industry.
func (s *IndustryStore) GetByID(ctx context.Context, id int64) (domain.Industry, error) {
	var ind domain.Industry
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM industries WHERE id = $1`, id,
	).Scan(&ind.ID, &ind.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Industry{}, fmt.Errorf("postgres: get industry %d: %w", id, domain.ErrNotFound)
		}
		return domain.Industry{}, fmt.Errorf("postgres: get industry %d: %w", id, err)
	}
	return ind, nil
}

// List returns all industries ordered by name.
func (s *IndustryStore) List(ctx context.Context) ([]domain.Industry, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM industries ORDER BY name COLLATE "C" ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list industries: %w", err)
	}
	defer rows.Close()

	industries := []domain.Industry{}
	for rows.Next() {
		var ind domain.Industry
		if err := rows.Scan(&ind.ID, &ind.Name); err != nil {
			return nil, fmt.Errorf("postgres: scan industry: %w", err)
		}
		industries = append(industries, ind)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list industries rows: %w", err)
	}
	return industries, nil
}

var _ domain.IndustryStore = (*IndustryStore)(nil)
