package testutil

import (
	"sync"

	"molt/internal/molt"
)

// EventRecorder captures every event emitted on its sink.
type EventRecorder struct {
	mu     sync.Mutex
	events []molt.Event
}

func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// Sink returns an EventSink that appends to the recorder.
func (r *EventRecorder) Sink() molt.EventSink {
	return func(ev molt.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	}
}

// Events returns a copy of everything recorded so far.
func (r *EventRecorder) Events() []molt.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]molt.Event(nil), r.events...)
}

// Phases returns the phase sequence announced so far.
func (r *EventRecorder) Phases() []molt.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	var phases []molt.Phase
	for _, ev := range r.events {
		if pe, ok := ev.(molt.PhaseEvent); ok {
			phases = append(phases, pe.Phase)
		}
	}
	return phases
}

// Progress returns the progress events announced so far.
func (r *EventRecorder) Progress() []molt.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []molt.ProgressEvent
	for _, ev := range r.events {
		if pe, ok := ev.(molt.ProgressEvent); ok {
			out = append(out, pe)
		}
	}
	return out
}

// Results returns the result events announced so far.
func (r *EventRecorder) Results() []molt.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []molt.Result
	for _, ev := range r.events {
		if re, ok := ev.(molt.ResultEvent); ok {
			out = append(out, re.Result)
		}
	}
	return out
}
