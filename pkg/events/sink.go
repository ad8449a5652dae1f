package events

import (
	"context"
	"errors"
)

// Sink receives sealed events.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Multi publishes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Appender persists events, such as the SQL journal.
type Appender interface {
	Append(ctx context.Context, e Event) error
}

// Journal adapts an Appender to Sink.
func Journal(a Appender) Sink {
	return SinkFunc(a.Append)
}
