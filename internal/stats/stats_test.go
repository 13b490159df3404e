package stats

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func pred(id, industry int64, dayOffset int, predicted domain.Direction, actual *domain.Direction) domain.Prediction {
	return domain.Prediction{
		ID:         id,
		IndustryID: industry,
		Date:       base.AddDate(0, 0, dayOffset),
		Predicted:  predicted,
		Actual:     actual,
	}
}

func up() *domain.Direction   { return domain.DirectionPtr(domain.DirectionUp) }
func down() *domain.Direction { return domain.DirectionPtr(domain.DirectionDown) }
func flat() *domain.Direction { return domain.DirectionPtr(domain.DirectionFlat) }

func TestOverallExcludesUnresolved(t *testing.T) {
	preds := []domain.Prediction{
		pred(1, 1, 0, domain.DirectionUp, up()),
		pred(2, 1, 1, domain.DirectionUp, down()),
		pred(3, 1, 2, domain.DirectionUp, nil),
	}
	got := Overall(preds)
	assert.Equal(t, Summary{Correct: 1, Resolved: 2, Rate: 0.5}, got)
}

func TestOverallEmpty(t *testing.T) {
	assert.Equal(t, Summary{}, Overall(nil))
}

func TestForIndustryZeroResolved(t *testing.T) {
	preds := []domain.Prediction{
		pred(1, 1, 0, domain.DirectionUp, up()),
		pred(2, 2, 0, domain.DirectionFlat, nil),
	}
	got := ForIndustry(preds, 2)
	assert.Equal(t, 0, got.Resolved)
	assert.Equal(t, 0.0, got.Rate)

	got = ForIndustry(preds, 1)
	assert.Equal(t, Summary{Correct: 1, Resolved: 1, Rate: 1}, got)
}

func TestOverallOrderIndependent(t *testing.T) {
	preds := []domain.Prediction{
		pred(1, 1, 0, domain.DirectionUp, up()),
		pred(2, 1, 1, domain.DirectionDown, down()),
		pred(3, 2, 2, domain.DirectionFlat, up()),
		pred(4, 2, 3, domain.DirectionFlat, flat()),
		pred(5, 3, 4, domain.DirectionUp, nil),
	}
	want := Overall(preds)

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.Prediction(nil), preds...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Overall(shuffled))
	}
	assert.Equal(t, Summary{Correct: 3, Resolved: 4, Rate: 0.75}, want)
}

func TestRecent(t *testing.T) {
	preds := []domain.Prediction{
		pred(1, 1, 0, domain.DirectionUp, up()),
		pred(2, 1, 5, domain.DirectionUp, nil),
		pred(3, 1, 3, domain.DirectionUp, down()),
		pred(4, 2, 4, domain.DirectionUp, flat()),
		pred(5, 2, 1, domain.DirectionUp, up()),
	}
	got := Recent(preds, RecentLimit)
	ids := make([]int64, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []int64{4, 3, 5}, ids)

	assert.Empty(t, Recent(preds, 0))
	assert.Len(t, Recent(preds[:1], RecentLimit), 1)
}

func TestByIndustry(t *testing.T) {
	industries := []domain.Industry{{ID: 2, Name: "Banks"}, {ID: 1, Name: "Chips"}, {ID: 9, Name: "Empty"}}
	preds := []domain.Prediction{
		pred(1, 1, 0, domain.DirectionUp, up()),
		pred(2, 1, 1, domain.DirectionUp, down()),
		pred(3, 2, 0, domain.DirectionDown, down()),
	}
	rows := ByIndustry(industries, preds)
	if assert.Len(t, rows, 3) {
		assert.Equal(t, "Banks", rows[0].Industry.Name)
		assert.Equal(t, Summary{Correct: 1, Resolved: 1, Rate: 1}, rows[0].Summary)
		assert.Equal(t, Summary{Correct: 1, Resolved: 2, Rate: 0.5}, rows[1].Summary)
		assert.Equal(t, Summary{}, rows[2].Summary)
	}
}

func TestRate(t *testing.T) {
	assert.Equal(t, 0.0, Rate(0, 0))
	assert.Equal(t, 0.25, Rate(1, 4))
}
