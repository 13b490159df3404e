package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

// EventStreamReader reads the durable domain event stream.
type EventStreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// EventsHandler lets clients catch up on domain events they missed while
// disconnected from /ws.
type EventsHandler struct {
	stream EventStreamReader
	logger *slog.Logger
}

func NewEventsHandler(stream EventStreamReader, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{stream: stream, logger: logHandler(logger, "events")}
}

type streamedEvent struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// ListEvents returns up to count events after the given stream id.
// GET /api/events?after=0&count=100
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after := q.Get("after")
	if after == "" {
		after = "0"
	}
	if !validStreamID(after) {
		writeError(w, http.StatusBadRequest, "after must be a stream id such as 0 or 1700000000000-0")
		return
	}
	count := 100
	if v := q.Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = min(n, 1000)
		}
	}

	msgs, err := h.stream.StreamRead(r.Context(), domain.StreamEvents, after, count)
	if err != nil {
		writeServiceError(w, r, h.logger, "read events", err)
		return
	}

	events := make([]streamedEvent, 0, len(msgs))
	last := after
	for _, m := range msgs {
		last = m.ID
		if !json.Valid(m.Payload) {
			continue
		}
		events = append(events, streamedEvent{ID: m.ID, Event: m.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":  events,
		"last_id": last,
	})
}

// validStreamID accepts "ms" and "ms-seq" forms.
func validStreamID(id string) bool {
	ms, seq, hasSeq := strings.Cut(id, "-")
	if _, err := strconv.ParseUint(ms, 10, 64); err != nil {
		return false
	}
	if hasSeq {
		if _, err := strconv.ParseUint(seq, 10, 64); err != nil {
			return false
		}
	}
	return true
}
