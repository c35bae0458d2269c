package testing

import (
	"context"
	"sync"

	"github.com/gaborage/go-bricks-sqlflow/database/types"
)

// EventRecorder is an observer that keeps every event it receives.
type EventRecorder struct {
	mu     sync.Mutex
	events []types.Event
}

// Observe implements types.Observer.
func (r *EventRecorder) Observe(_ context.Context, ev types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns the recorded events in order.
func (r *EventRecorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (r *EventRecorder) Kinds() []types.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]types.EventKind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

// Count returns how many events of kind were recorded.
func (r *EventRecorder) Count(kind types.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
