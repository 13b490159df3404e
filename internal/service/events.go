package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

// Notifier delivers operator notifications. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notification event types understood by the notifier filter.
const (
	NotifyOutcomeRecorded = "outcome_recorded"
	NotifyAnalysisFailed  = "analysis_failed"
	NotifyExportDone      = "export_done"
)

// emitter fans a domain event out to the live channel, the durable event
// stream and the audit log. Every step is best effort: the mutation it
// describes has already been committed.
type emitter struct {
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func (e *emitter) publish(ctx context.Context, channel, eventType string, payload any) {
	if e.bus == nil {
		return
	}
	msg, err := json.Marshal(domain.Event{Type: eventType, Payload: payload, Timestamp: e.now().UTC()})
	if err != nil {
		e.logger.WarnContext(ctx, "marshal event failed",
			slog.String("event", eventType),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := e.bus.Publish(ctx, channel, msg); err != nil {
		e.logger.WarnContext(ctx, "publish event failed",
			slog.String("event", eventType),
			slog.String("error", err.Error()),
		)
	}
	if err := e.bus.StreamAppend(ctx, domain.StreamEvents, msg); err != nil {
		e.logger.WarnContext(ctx, "append event failed",
			slog.String("event", eventType),
			slog.String("error", err.Error()),
		)
	}
}

func (e *emitter) record(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (e *emitter) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.WarnContext(ctx, "notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
