package logger

import (
	"context"
	"sync/atomic"
)

type contextKey string

const (
	executionCounterKey contextKey = "sqlflow_execution_counter"
	executionElapsedKey contextKey = "sqlflow_execution_elapsed_nanos"
)

// WithExecutionCounter returns a context that accumulates the number of
// executions and their total elapsed time. Request-scoped callers use it to
// report database activity per request.
func WithExecutionCounter(ctx context.Context) context.Context {
	counter := int64(0)
	elapsed := int64(0)
	ctx = context.WithValue(ctx, executionCounterKey, &counter)
	return context.WithValue(ctx, executionElapsedKey, &elapsed)
}

// IncrementExecutionCounter adds one execution to the context counter, if present.
func IncrementExecutionCounter(ctx context.Context) {
	if ctx == nil {
		return
	}
	if counter, ok := ctx.Value(executionCounterKey).(*int64); ok && counter != nil {
		atomic.AddInt64(counter, 1)
	}
}

// GetExecutionCounter returns the number of executions recorded in ctx.
func GetExecutionCounter(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if counter, ok := ctx.Value(executionCounterKey).(*int64); ok && counter != nil {
		return atomic.LoadInt64(counter)
	}
	return 0
}

// AddExecutionElapsed adds nanos to the elapsed total in ctx, if present.
func AddExecutionElapsed(ctx context.Context, nanos int64) {
	if ctx == nil {
		return
	}
	if elapsed, ok := ctx.Value(executionElapsedKey).(*int64); ok && elapsed != nil {
		atomic.AddInt64(elapsed, nanos)
	}
}

// GetExecutionElapsed returns the elapsed nanoseconds recorded in ctx.
func GetExecutionElapsed(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if elapsed, ok := ctx.Value(executionElapsedKey).(*int64); ok && elapsed != nil {
		return atomic.LoadInt64(elapsed)
	}
	return 0
}
