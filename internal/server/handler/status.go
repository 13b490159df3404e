package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves static runtime metadata for dashboards.
type StatusHandler struct {
	Mode      string
	Ephemeral bool
	Timezone  string
	StartedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, ephemeral bool, timezone string) *StatusHandler {
	return &StatusHandler{Mode: mode, Ephemeral: ephemeral, Timezone: timezone, StartedAt: time.Now().UTC()}
}

// GetStatus responds with the run mode, storage kind and timezone.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"ephemeral":      h.Ephemeral,
		"timezone":       h.Timezone,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
