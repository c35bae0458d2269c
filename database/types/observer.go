//revive:disable-next-line:var-naming // Package name "types" avoids circular imports.
package types

import (
	"context"
	"time"
)

// EventKind identifies an execution lifecycle transition.
type EventKind int

const (
	EventAcquire EventKind = iota + 1
	EventModeSet
	EventEmit
	EventCommit
	EventRollback
	EventClose
	EventError
	EventCancel
)

var eventNames = map[EventKind]string{
	EventAcquire:  "acquire",
	EventModeSet:  "mode-set",
	EventEmit:     "emit",
	EventCommit:   "commit",
	EventRollback: "rollback",
	EventClose:    "close",
	EventError:    "error",
	EventCancel:   "cancel",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event describes one lifecycle transition of an execution. Err is set when
// the transition failed (for rollback and close) or for EventError.
type Event struct {
	ExecutionID string
	Kind        EventKind
	Policy      string
	Err         error
	Elapsed     time.Duration
}

// Observer receives lifecycle events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Observers fans events out in order.
type Observers []Observer

// Observe forwards ev to every observer.
func (o Observers) Observe(ctx context.Context, ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ctx, ev)
		}
	}
}
