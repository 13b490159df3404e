package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

const exportsRoot = "exports/"

// ExportHandler serves the manual snapshot export trigger and the exported
// snapshots themselves.
type ExportHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{} // when non-nil, sending triggers one export run
	reader    domain.BlobReader
}

// NewExportHandler creates an ExportHandler with the given logger.
func NewExportHandler(logger *slog.Logger) *ExportHandler {
	return &ExportHandler{logger: logHandler(logger, "export")}
}

// WithTriggerChannel sets the channel to send on when a trigger is requested.
// The export scheduler must receive from this channel to run one export.
func (h *ExportHandler) WithTriggerChannel(ch chan<- struct{}) *ExportHandler {
	h.triggerCh = ch
	return h
}

// WithReader enables listing and downloading exported snapshots.
func (h *ExportHandler) WithReader(r domain.BlobReader) *ExportHandler {
	h.reader = r
	return h
}

// TriggerExport enqueues one export run. Without a scheduler attached the
// request is rejected with 503.
// POST /api/export/trigger
func (h *ExportHandler) TriggerExport(w http.ResponseWriter, r *http.Request) {
	if h.triggerCh == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}
	h.logger.InfoContext(r.Context(), "handler: export trigger requested")
	select {
	case h.triggerCh <- struct{}{}:
	default:
		// already triggered and not yet consumed
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      "export trigger enqueued",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListExports lists exported snapshot objects, optionally of one kind.
// GET /api/exports?kind=predictions
func (h *ExportHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}
	prefix := exportsRoot
	if kind := strings.Trim(r.URL.Query().Get("kind"), "/"); kind != "" {
		prefix += kind + "/"
	}
	objects, err := h.reader.List(r.Context(), prefix)
	if err != nil {
		writeServiceError(w, r, h.logger, "list exports", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"objects": objects,
		"count":   len(objects),
	})
}

// DownloadExport streams one exported JSONL object.
// GET /api/exports/{path...}
func (h *ExportHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}
	path := exportsRoot + r.PathValue("path")
	if strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}

	body, err := h.openExport(r.Context(), path)
	if err != nil {
		writeServiceError(w, r, h.logger, "download export", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: export download interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func (h *ExportHandler) openExport(ctx context.Context, path string) (io.ReadCloser, error) {
	ok, err := h.reader.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return h.reader.Get(ctx, path)
}
