package audit

import (
	"context"
	"log/slog"
	"time"
)

// Sink receives audit events.
type Sink interface {
	Log(ctx context.Context, event *Event) error
	Close() error
}

// NoopSink discards all events.
type NoopSink struct{}

func (NoopSink) Log(ctx context.Context, event *Event) error { return nil }
func (NoopSink) Close() error                                { return nil }

// Emitter wraps a sink with the log-and-continue contract: sink failures are
// logged and swallowed so audited operations never fail on audit errors.
type Emitter struct {
	sink   Sink
	logger *slog.Logger
}

// NewEmitter creates an emitter over a sink. A nil sink becomes a noop.
func NewEmitter(sink Sink, logger *slog.Logger) *Emitter {
	if sink == nil {
		sink = NoopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{sink: sink, logger: logger}
}

// Emit records an event, never returning an error.
func (e *Emitter) Emit(ctx context.Context, event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := e.sink.Log(ctx, event); err != nil {
		e.logger.Error("audit sink write failed",
			"event_type", event.EventType,
			"error", err,
		)
	}
}

// Record is a convenience for the common actor-acts-on-resource shape.
func (e *Emitter) Record(ctx context.Context, eventType EventType, actorID *int64, resourceType, resourceID, message string) {
	e.Emit(ctx, &Event{
		EventType:    eventType,
		Status:       EventStatusSuccess,
		ActorID:      actorID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Message:      message,
	})
}

// RecordChange is Record with a before/after snapshot attached. Mutation
// handlers use it so the trail can reconstruct what a change actually did.
func (e *Emitter) RecordChange(ctx context.Context, eventType EventType, actorID *int64, resourceType, resourceID string, changes *ChangeDetails, message string) {
	e.Emit(ctx, &Event{
		EventType:    eventType,
		Status:       EventStatusSuccess,
		ActorID:      actorID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Message:      message,
		Changes:      changes,
	})
}

// Close closes the underlying sink.
func (e *Emitter) Close() error {
	return e.sink.Close()
}
