// Package streamtest provides a recording Subscriber for stream tests.
package streamtest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gaborage/go-bricks-sqlflow/stream"
)

// Recorder records every signal it receives. It requests Initial items on
// subscription and nothing more unless Request is called.
type Recorder[T any] struct {
	// OnItem, when set, runs after an item is recorded, on the emitting goroutine.
	OnItem func(r *Recorder[T], item T)

	initial int64

	mu          sync.Mutex
	sub         stream.Subscription
	subscribed  int
	items       []T
	err         error
	errors      int
	completions int
}

// NewRecorder returns a Recorder requesting initial items on subscription.
func NewRecorder[T any](initial int64) *Recorder[T] {
	return &Recorder[T]{initial: initial}
}

func (r *Recorder[T]) OnSubscribe(s stream.Subscription) {
	r.mu.Lock()
	r.sub = s
	r.subscribed++
	r.mu.Unlock()
	if r.initial > 0 {
		s.Request(r.initial)
	}
}

func (r *Recorder[T]) OnNext(item T) {
	r.mu.Lock()
	r.items = append(r.items, item)
	hook := r.OnItem
	r.mu.Unlock()
	if hook != nil {
		hook(r, item)
	}
}

func (r *Recorder[T]) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.errors++
}

func (r *Recorder[T]) OnComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions++
}

// Request forwards demand to the subscription.
func (r *Recorder[T]) Request(n int64) {
	r.subscription().Request(n)
}

// Cancel cancels the subscription.
func (r *Recorder[T]) Cancel() {
	r.subscription().Cancel()
}

func (r *Recorder[T]) subscription() stream.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub
}

// Items returns a copy of the recorded items.
func (r *Recorder[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.items...)
}

// Err returns the recorded error, if any.
func (r *Recorder[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Completed reports whether OnComplete was received.
func (r *Recorder[T]) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completions > 0
}

// Terminations counts OnError and OnComplete signals together.
func (r *Recorder[T]) Terminations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors + r.completions
}

// AssertItems checks the recorded items.
func (r *Recorder[T]) AssertItems(t testing.TB, want ...T) {
	t.Helper()
	if len(want) == 0 {
		assert.Empty(t, r.Items())
		return
	}
	assert.Equal(t, want, r.Items())
}

// AssertComplete checks for exactly one completion and no error.
func (r *Recorder[T]) AssertComplete(t testing.TB) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, 1, r.completions, "completions")
	assert.Equal(t, 0, r.errors, "errors")
	assert.NoError(t, r.err)
}

// AssertError checks for exactly one error matching target and no completion.
func (r *Recorder[T]) AssertError(t testing.TB, target error) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, 1, r.errors, "errors")
	assert.Equal(t, 0, r.completions, "completions")
	assert.ErrorIs(t, r.err, target)
}

// AssertNotTerminated checks that no terminal signal arrived.
func (r *Recorder[T]) AssertNotTerminated(t testing.TB) {
	t.Helper()
	assert.Equal(t, 0, r.Terminations(), "terminal signals")
}
