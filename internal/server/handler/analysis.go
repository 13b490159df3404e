package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/sse"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/analysis"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

// AnalysisService defines the analysis operations used by the handler.
type AnalysisService interface {
	Analyze(ctx context.Context) domain.NewsAnalysisResult
	Stream(ctx context.Context, session *analysis.Session) error
}

// AnalysisHandler serves single-shot and streamed news analysis.
type AnalysisHandler struct {
	analysis AnalysisService
	logger   *slog.Logger
}

// NewAnalysisHandler creates an AnalysisHandler.
func NewAnalysisHandler(svc AnalysisService, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{analysis: svc, logger: logHandler(logger, "analysis")}
}

// statePayload is the body of a "state" event.
type statePayload struct {
	State     analysis.State `json:"state"`
	Reasoning string         `json:"reasoning"`
	Content   string         `json:"content"`
}

// Analyze runs a single-shot analysis. Upstream failures are part of the
// result body, so the status is always 200.
// GET /api/analysis
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.analysis.Analyze(r.Context()))
}

// Stream relays a live analysis session as server-sent events: "state" after
// every applied chunk, then exactly one "result" or "error". Closing the
// request cancels the upstream connection.
// GET /api/analysis/stream
func (h *AnalysisHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := analysis.NewSession()
	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.analysis.Stream(ctx, session)
	}()
	defer func() {
		cancel()
		<-done
	}()

	w.Header().Set("Content-Type", sse.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			// The stream ended; drain what the session already emitted and
			// make sure a terminal event goes out even if it was dropped.
			h.drain(w, flusher, updates)
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if h.write(w, flusher, u) {
				return
			}
		}
	}
}

func (h *AnalysisHandler) drain(w http.ResponseWriter, flusher http.Flusher, updates <-chan analysis.Update) {
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			if h.write(w, flusher, u) {
				return
			}
		default:
			return
		}
	}
}

// write encodes u and reports whether it was terminal.
func (h *AnalysisHandler) write(w http.ResponseWriter, flusher http.Flusher, u analysis.Update) bool {
	events := []sse.Event{{
		Event: "state",
		Data:  statePayload{State: u.State, Reasoning: u.Phase.Reasoning, Content: u.Phase.Content},
	}}
	terminal := u.State.Terminal()
	switch {
	case u.State == analysis.StateCompleted && u.Result != nil:
		events = append(events, sse.Event{Event: "result", Data: u.Result})
	case u.State == analysis.StateFailed && u.Err != nil:
		events = append(events, sse.Event{Event: "error", Data: map[string]string{"message": u.Err.Error()}})
	}

	for _, ev := range events {
		if err := sse.Encode(w, ev); err != nil {
			h.logger.Debug("handler: sse write failed", slog.String("error", err.Error()))
			return true
		}
	}
	flusher.Flush()
	return terminal
}
