// Package stats computes prediction accuracy over in-memory prediction sets.
// Every function is pure and independent of input order.
package stats

import (
	"sort"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

// RecentLimit is the number of resolved predictions shown in the recent list.
const RecentLimit = 3

// Summary is the accuracy triple for a set of predictions. Unresolved
// predictions are counted in neither Correct nor Resolved.
type Summary struct {
	Correct  int     `json:"correct"`
	Resolved int     `json:"resolved"`
	Rate     float64 `json:"rate"`
}

// IndustryBreakdown is one row of the per-industry statistics table.
type IndustryBreakdown struct {
	Industry domain.Industry `json:"industry"`
	Summary
}

// Overall summarizes every prediction in preds.
func Overall(preds []domain.Prediction) Summary {
	var s Summary
	for _, p := range preds {
		if !p.IsResolved() {
			continue
		}
		s.Resolved++
		if p.IsCorrect() {
			s.Correct++
		}
	}
	s.Rate = Rate(int64(s.Correct), int64(s.Resolved))
	return s
}

// ForIndustry summarizes the predictions belonging to industryID.
func ForIndustry(preds []domain.Prediction, industryID int64) Summary {
	filtered := make([]domain.Prediction, 0, len(preds))
	for _, p := range preds {
		if p.IndustryID == industryID {
			filtered = append(filtered, p)
		}
	}
	return Overall(filtered)
}

// ByIndustry returns one breakdown row per industry, in the given order.
func ByIndustry(industries []domain.Industry, preds []domain.Prediction) []IndustryBreakdown {
	grouped := make(map[int64][]domain.Prediction, len(industries))
	for _, p := range preds {
		grouped[p.IndustryID] = append(grouped[p.IndustryID], p)
	}
	out := make([]IndustryBreakdown, 0, len(industries))
	for _, ind := range industries {
		out = append(out, IndustryBreakdown{
			Industry: ind,
			Summary:  Overall(grouped[ind.ID]),
		})
	}
	return out
}

// Recent returns at most n resolved predictions, most recent date first.
// Ties on date are broken by descending ID so the result is deterministic.
func Recent(preds []domain.Prediction, n int) []domain.Prediction {
	if n <= 0 {
		return []domain.Prediction{}
	}
	resolved := make([]domain.Prediction, 0, len(preds))
	for _, p := range preds {
		if p.IsResolved() {
			resolved = append(resolved, p)
		}
	}
	SortByDateDesc(resolved)
	if len(resolved) > n {
		resolved = resolved[:n]
	}
	return resolved
}

// SortByDateDesc orders preds in place by date descending, then ID descending.
func SortByDateDesc(preds []domain.Prediction) {
	sort.SliceStable(preds, func(i, j int) bool {
		if !preds[i].Date.Equal(preds[j].Date) {
			return preds[i].Date.After(preds[j].Date)
		}
		return preds[i].ID > preds[j].ID
	})
}

// Rate returns correct/resolved, or 0 when nothing is resolved.
func Rate(correct, resolved int64) float64 {
	if resolved <= 0 {
		return 0
	}
	return float64(correct) / float64(resolved)
}
