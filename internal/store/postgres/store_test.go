package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

// newTestClient connects to PREDICT_TEST_POSTGRES_DSN, migrates, and clears
// the tables. Tests are skipped when the variable is unset.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("PREDICT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PREDICT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	_, err = c.RunMigrations(ctx)
	require.NoError(t, err)
	_, err = c.Pool().Exec(ctx, `TRUNCATE predictions, industries, audit_log RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return c
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/predict?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "predict"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	c := newTestClient(t)
	applied, err := c.RunMigrations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestIndustryStore(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	s := NewIndustryStore(c.Pool())

	b, err := s.Insert(ctx, domain.Industry{Name: "Banks"})
	require.NoError(t, err)
	for _, name := range []string{"银行", "Autos", "autos", "能源"} {
		_, err = s.Insert(ctx, domain.Industry{Name: name})
		require.NoError(t, err)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, ind := range list {
		names = append(names, ind.Name)
	}
	assert.Equal(t, []string{"Autos", "Banks", "autos", "能源", "银行"}, names)

	require.NoError(t, s.Update(ctx, domain.Industry{ID: b, Name: "Regional Banks"}))
	got, err := s.GetByID(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "Regional Banks", got.Name)

	assert.True(t, errors.Is(s.Update(ctx, domain.Industry{ID: 999, Name: "x"}), domain.ErrNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, 999), domain.ErrNotFound))
	_, err = s.GetByID(ctx, 999)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPredictionLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	loc := time.FixedZone("CST", 8*3600)
	industries := NewIndustryStore(c.Pool())
	s := NewPredictionStore(c.Pool(), loc)

	ind, err := industries.Insert(ctx, domain.Industry{Name: "Energy"})
	require.NoError(t, err)

	day := time.Date(2026, 6, 3, 10, 0, 0, 0, loc)
	id, err := s.Insert(ctx, domain.Prediction{IndustryID: ind, Date: day, Predicted: domain.DirectionUp})
	require.NoError(t, err)

	_, err = s.Insert(ctx, domain.Prediction{IndustryID: ind, Date: day.Add(3 * time.Hour), Predicted: domain.DirectionDown})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	_, err = s.Insert(ctx, domain.Prediction{IndustryID: 12345, Date: day, Predicted: domain.DirectionDown})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = s.Insert(ctx, domain.Prediction{
		IndustryID: ind,
		Date:       day.AddDate(0, 0, 1),
		Predicted:  domain.DirectionUp,
		Actual:     domain.DirectionPtr(domain.DirectionUp),
	})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	assert.True(t, errors.Is(industries.Delete(ctx, ind), domain.ErrConflict))

	p, changed, err := s.RecordOutcome(ctx, id, domain.DirectionUp)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, p.IsCorrect())

	_, changed, err = s.RecordOutcome(ctx, id, domain.DirectionUp)
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = s.RecordOutcome(ctx, id, domain.DirectionFlat)
	assert.True(t, errors.Is(err, domain.ErrOutcomeLocked))

	_, _, err = s.RecordOutcome(ctx, 999, domain.DirectionFlat)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	correct, err := s.CountCorrect(ctx)
	require.NoError(t, err)
	resolved, err := s.CountResolved(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), correct)
	assert.Equal(t, int64(1), resolved)

	onDay, err := s.List(ctx, domain.PredictionFilter{Day: &day})
	require.NoError(t, err)
	assert.Len(t, onDay, 1)

	require.NoError(t, s.Delete(ctx, id))
	assert.True(t, errors.Is(s.Delete(ctx, id), domain.ErrNotFound))
}

func TestAuditStore(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	s := NewAuditStore(c.Pool())

	require.NoError(t, s.Log(ctx, "prediction.resolved", map[string]any{"id": 1}))
	entries, err := s.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "prediction.resolved", entries[0].Event)
	assert.EqualValues(t, 1, entries[0].Detail["id"])

	require.NoError(t, s.Log(ctx, "export.predictions", nil))
	exports, err := s.List(ctx, domain.ListOpts{EventPrefix: "export."})
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Empty(t, exports[0].Detail)
}
