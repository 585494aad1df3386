package stream

import (
	"context"
	"errors"
	"sync"
)

// Recorder keeps every frame in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds lists frame kinds in order, leaving out any kind in skip.
func (r *Recorder) Kinds(skip ...Kind) []Kind {
	var out []Kind
	for _, ev := range r.Events() {
		if !containsKind(skip, ev.Kind) {
			out = append(out, ev.Kind)
		}
	}
	return out
}

// Last returns the most recent frame of kind k.
func (r *Recorder) Last(k Kind) (Event, bool) {
	events := r.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == k {
			return events[i], true
		}
	}
	return Event{}, false
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}

type multi []Sink

// Multi fans frames out to every sink. A failing sink does not stop the others.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
