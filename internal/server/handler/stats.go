package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/service"
)

// AccuracyService defines the statistics queries used by the stats handler.
type AccuracyService interface {
	Report(ctx context.Context) (service.Report, error)
	ForIndustry(ctx context.Context, industryID int64) (service.IndustryReport, error)
}

// StatsHandler serves accuracy statistics.
type StatsHandler struct {
	accuracy AccuracyService
	logger   *slog.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(accuracy AccuracyService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{accuracy: accuracy, logger: logHandler(logger, "stats")}
}

// GetStats returns overall accuracy, the per-industry table and the most
// recent resolved predictions.
// GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	report, err := h.accuracy.Report(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetIndustryStats returns the accuracy of a single industry.
// GET /api/stats/industries/{id}
func (h *StatsHandler) GetIndustryStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid industry id")
		return
	}
	report, err := h.accuracy.ForIndustry(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "compute industry stats", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
