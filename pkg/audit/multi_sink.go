package audit

import (
	"context"
	"errors"
)

// MultiSink fans events out to several sinks. Every sink is attempted even
// when an earlier one fails; the errors are joined.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Log writes the event to every sink.
func (m *MultiSink) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m *MultiSink) Close() error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
