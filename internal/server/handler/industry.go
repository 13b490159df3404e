package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

// IndustryService defines the methods that the industry handler requires
// from the service layer.
type IndustryService interface {
	Create(ctx context.Context, name string) (domain.Industry, error)
	Rename(ctx context.Context, id int64, name string) (domain.Industry, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (domain.Industry, error)
	List(ctx context.Context) ([]domain.Industry, error)
}

// OpenIndustryLister returns the industries still lacking a prediction today.
type OpenIndustryLister interface {
	OpenIndustriesToday(ctx context.Context) ([]domain.Industry, error)
}

// IndustryHandler serves industry endpoints.
type IndustryHandler struct {
	industries IndustryService
	open       OpenIndustryLister
	logger     *slog.Logger
}

// NewIndustryHandler creates an IndustryHandler.
func NewIndustryHandler(industries IndustryService, open OpenIndustryLister, logger *slog.Logger) *IndustryHandler {
	return &IndustryHandler{industries: industries, open: open, logger: logHandler(logger, "industry")}
}

type industryRequest struct {
	Name string `json:"name"`
}

type listIndustriesResponse struct {
	Industries []domain.Industry `json:"industries"`
}

// ListIndustries returns every industry ordered by name.
// GET /api/industries
func (h *IndustryHandler) ListIndustries(w http.ResponseWriter, r *http.Request) {
	list, err := h.industries.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list industries", err)
		return
	}
	if list == nil {
		list = []domain.Industry{}
	}
	writeJSON(w, http.StatusOK, listIndustriesResponse{Industries: list})
}

// OpenToday returns the industries without a prediction for today.
// GET /api/industries/open-today
func (h *IndustryHandler) OpenToday(w http.ResponseWriter, r *http.Request) {
	list, err := h.open.OpenIndustriesToday(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list open industries", err)
		return
	}
	if list == nil {
		list = []domain.Industry{}
	}
	writeJSON(w, http.StatusOK, listIndustriesResponse{Industries: list})
}

// GetIndustry returns a single industry.
// GET /api/industries/{id}
func (h *IndustryHandler) GetIndustry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid industry id")
		return
	}
	ind, err := h.industries.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get industry", err)
		return
	}
	writeJSON(w, http.StatusOK, ind)
}

// CreateIndustry adds an industry.
// POST /api/industries {"name": "..."}
func (h *IndustryHandler) CreateIndustry(w http.ResponseWriter, r *http.Request) {
	var req industryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ind, err := h.industries.Create(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, r, h.logger, "create industry", err)
		return
	}
	writeJSON(w, http.StatusCreated, ind)
}

// RenameIndustry changes an industry's name.
// PUT /api/industries/{id} {"name": "..."}
func (h *IndustryHandler) RenameIndustry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid industry id")
		return
	}
	var req industryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ind, err := h.industries.Rename(r.Context(), id, req.Name)
	if err != nil {
		writeServiceError(w, r, h.logger, "rename industry", err)
		return
	}
	writeJSON(w, http.StatusOK, ind)
}

// DeleteIndustry removes an industry that has no predictions.
// DELETE /api/industries/{id}
func (h *IndustryHandler) DeleteIndustry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid industry id")
		return
	}
	if err := h.industries.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, "delete industry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
