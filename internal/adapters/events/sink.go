// Package events provides ports.EventSink implementations.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/ports"
)

// LogSink writes each event as one structured log line.
type LogSink struct {
	logger *slog.Logger
}

var _ ports.EventSink = (*LogSink)(nil)

// NewLogSink logs through logger, or slog.Default() if nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, events []domain.Event) error {
	for _, e := range events {
		args := make([]any, 0, 4+2*len(e.Attrs))
		args = append(args, "event", string(e.Name), "epoch", e.Epoch)
		for _, k := range e.Keys() {
			args = append(args, k, e.Attrs[k])
		}
		s.logger.InfoContext(ctx, "market: event", args...)
	}
	return nil
}

// Multi fans events out to every sink. All sinks are attempted; errors are
// joined.
type Multi []ports.EventSink

var _ ports.EventSink = Multi(nil)

func (m Multi) Emit(ctx context.Context, events []domain.Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps the last N events in memory, newest last.
type Recorder struct {
	mu     sync.Mutex
	max    int
	events []domain.Event
}

var _ ports.EventSink = (*Recorder)(nil)

// NewRecorder keeps up to max events; max <= 0 keeps everything.
func NewRecorder(max int) *Recorder {
	return &Recorder{max: max}
}

func (r *Recorder) Emit(_ context.Context, events []domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	if r.max > 0 && len(r.events) > r.max {
		r.events = append([]domain.Event(nil), r.events[len(r.events)-r.max:]...)
	}
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Names returns the recorded event names, in order.
func (r *Recorder) Names() []domain.EventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventName, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

// Reset clears the recorder.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
