package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

// PredictionService defines the methods that the prediction handler requires
// from the service layer.
type PredictionService interface {
	Create(ctx context.Context, industryID int64, date time.Time, predicted domain.Direction) (domain.Prediction, error)
	RecordOutcome(ctx context.Context, id int64, actual domain.Direction) (domain.Prediction, error)
	Get(ctx context.Context, id int64) (domain.Prediction, error)
	List(ctx context.Context, filter domain.PredictionFilter) ([]domain.Prediction, error)
	Delete(ctx context.Context, id int64) error
	Pending(ctx context.Context) ([]domain.Prediction, error)
}

// PredictionHandler serves prediction endpoints.
type PredictionHandler struct {
	predictions PredictionService
	loc         *time.Location
	logger      *slog.Logger
}

// NewPredictionHandler creates a PredictionHandler. Query and body dates
// without a time zone are read in loc.
func NewPredictionHandler(predictions PredictionService, loc *time.Location, logger *slog.Logger) *PredictionHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &PredictionHandler{predictions: predictions, loc: loc, logger: logHandler(logger, "prediction")}
}

type createPredictionRequest struct {
	IndustryID int64             `json:"industry_id"`
	Date       string            `json:"date,omitempty"`
	Predicted  *domain.Direction `json:"predicted"`
}

type recordOutcomeRequest struct {
	Actual *domain.Direction `json:"actual"`
}

type listPredictionsResponse struct {
	Predictions []domain.Prediction `json:"predictions"`
}

// ListPredictions returns predictions newest first.
// GET /api/predictions?industry_id=1&date=2026-03-01&resolved=false&limit=50&offset=0
func (h *PredictionHandler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePredictionFilter(r, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := h.predictions.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, "list predictions", err)
		return
	}
	writeJSON(w, http.StatusOK, listPredictionsResponse{Predictions: nonNil(list)})
}

// ListPending returns unresolved predictions newest first.
// GET /api/predictions/pending
func (h *PredictionHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	list, err := h.predictions.Pending(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list pending predictions", err)
		return
	}
	writeJSON(w, http.StatusOK, listPredictionsResponse{Predictions: nonNil(list)})
}

// GetPrediction returns a single prediction.
// GET /api/predictions/{id}
func (h *PredictionHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prediction id")
		return
	}
	p, err := h.predictions.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get prediction", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreatePrediction records a prediction. An omitted date means now.
// POST /api/predictions {"industry_id": 1, "date": "2026-03-01", "predicted": "UP"}
func (h *PredictionHandler) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	var req createPredictionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Predicted == nil || req.IndustryID <= 0 {
		writeError(w, http.StatusBadRequest, "industry_id and predicted are required")
		return
	}

	var date time.Time
	if req.Date != "" {
		d, err := parseDay(req.Date, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		date = d
	}

	p, err := h.predictions.Create(r.Context(), req.IndustryID, date, *req.Predicted)
	if err != nil {
		writeServiceError(w, r, h.logger, "create prediction", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// RecordOutcome sets the actual direction of a prediction once.
// PUT /api/predictions/{id}/outcome {"actual": "DOWN"}
func (h *PredictionHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prediction id")
		return
	}
	var req recordOutcomeRequest
	if err := decodeBody(w, r, &req); err != nil || req.Actual == nil {
		writeError(w, http.StatusBadRequest, "actual is required")
		return
	}
	p, err := h.predictions.RecordOutcome(r.Context(), id, *req.Actual)
	if err != nil {
		writeServiceError(w, r, h.logger, "record outcome", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePrediction removes a prediction.
// DELETE /api/predictions/{id}
func (h *PredictionHandler) DeletePrediction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prediction id")
		return
	}
	if err := h.predictions.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, "delete prediction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNil(list []domain.Prediction) []domain.Prediction {
	if list == nil {
		return []domain.Prediction{}
	}
	return list
}
