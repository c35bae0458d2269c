package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/go-bricks-sqlflow/database/types"
	"github.com/gaborage/go-bricks-sqlflow/logger"
)

const spanName = "db.execution"

// Execution outcomes reported on spans and the duration histogram.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Option configures an Observer.
type Option func(*Observer)

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *Observer) {
		if mp != nil {
			o.mp = mp
		}
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Observer) {
		if tp != nil {
			o.tp = tp
		}
	}
}

// WithSettings sets the tracking settings.
func WithSettings(s Settings) Option {
	return func(o *Observer) {
		o.settings = s
	}
}

// Observer is the default types.Observer. It is safe for concurrent use.
type Observer struct {
	log      logger.Logger
	settings Settings
	mp       metric.MeterProvider
	tp       trace.TracerProvider
	tracer   trace.Tracer
	inst     *instruments

	mu     sync.Mutex
	active map[string]*execution
}

type execution struct {
	span    trace.Span
	emitted int64
	outcome string
}

var _ types.Observer = (*Observer)(nil)

// NewObserver creates an Observer logging through log.
func NewObserver(log logger.Logger, opts ...Option) *Observer {
	o := &Observer{
		log:      logger.OrNop(log),
		settings: NewSettings(nil),
		mp:       otel.GetMeterProvider(),
		tp:       otel.GetTracerProvider(),
		active:   make(map[string]*execution),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.tracer = o.tp.Tracer(scopeName)
	o.inst = newInstruments(o.mp.Meter(scopeName))
	return o
}

// Observe records ev as a log line, a counter increment and a span event.
func (o *Observer) Observe(ctx context.Context, ev types.Event) {
	if ctx == nil {
		ctx = context.Background()
	}

	o.inst.countEvent(ctx,
		attribute.String(attrDBSystem, o.settings.Vendor()),
		attribute.String(attrEvent, ev.Kind.String()),
		attribute.String(attrPolicy, ev.Policy),
		attribute.Bool(attrError, ev.Err != nil),
	)
	o.trace(ctx, ev)
	o.logEvent(ctx, ev)
}

// Active returns the number of executions with an open span.
func (o *Observer) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

func (o *Observer) trace(ctx context.Context, ev types.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	exec, ok := o.active[ev.ExecutionID]
	switch ev.Kind {
	case types.EventAcquire:
		if ok {
			return
		}
		o.active[ev.ExecutionID] = o.start(ctx, ev)
		return
	case types.EventError:
		if !ok {
			// Failed before a connection was acquired: no close will follow.
			exec = o.start(ctx, ev)
			exec.fail(ev.Err)
			o.end(ctx, ev, exec)
			return
		}
		exec.fail(ev.Err)
		return
	}
	if !ok {
		return
	}

	switch ev.Kind {
	case types.EventEmit:
		exec.emitted++
	case types.EventCancel:
		if exec.outcome == OutcomeCompleted {
			exec.outcome = OutcomeCancelled
		}
		exec.span.AddEvent(ev.Kind.String())
	case types.EventClose:
		exec.addEvent(ev)
		delete(o.active, ev.ExecutionID)
		o.end(ctx, ev, exec)
	default:
		exec.addEvent(ev)
	}
}

func (o *Observer) start(ctx context.Context, ev types.Event) *execution {
	_, span := o.tracer.Start(ctx, spanName,
		trace.WithTimestamp(time.Now().Add(-ev.Elapsed)),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrDBSystem, o.settings.Vendor()),
			attribute.String(attrPolicy, ev.Policy),
			attribute.String("db.execution.id", ev.ExecutionID),
		),
	)
	return &execution{span: span, outcome: OutcomeCompleted}
}

func (o *Observer) end(ctx context.Context, ev types.Event, exec *execution) {
	exec.span.SetAttributes(
		attribute.Int64("db.execution.rows", exec.emitted),
		attribute.String(attrOutcome, exec.outcome),
	)
	exec.span.End()

	o.inst.recordDuration(ctx, float64(ev.Elapsed.Nanoseconds())/1e6,
		attribute.String(attrDBSystem, o.settings.Vendor()),
		attribute.String(attrPolicy, ev.Policy),
		attribute.String(attrOutcome, exec.outcome),
	)
}

func (e *execution) fail(err error) {
	e.outcome = OutcomeFailed
	if err == nil {
		err = errors.New("execution failed")
	}
	e.span.RecordError(err)
	e.span.SetStatus(codes.Error, TruncateString(err.Error(), maxStatusLen))
}

func (e *execution) addEvent(ev types.Event) {
	if ev.Err != nil {
		e.span.RecordError(ev.Err, trace.WithAttributes(attribute.String(attrEvent, ev.Kind.String())))
		return
	}
	e.span.AddEvent(ev.Kind.String())
}

func (o *Observer) logEvent(ctx context.Context, ev types.Event) {
	log := o.log.WithContext(ctx).WithFields(map[string]any{
		"execution_id": ev.ExecutionID,
		"policy":       ev.Policy,
		"event":        ev.Kind.String(),
		"vendor":       o.settings.Vendor(),
		"elapsed_ms":   ev.Elapsed.Milliseconds(),
	})

	switch {
	case ev.Kind == types.EventError:
		log.Error().Err(ev.Err).Msg("Execution failed")
	case ev.Err != nil:
		log.Warn().Err(ev.Err).Msgf("Execution %s failed", ev.Kind)
	case ev.Kind == types.EventClose && ev.Elapsed > o.settings.SlowThreshold():
		log.Warn().Msgf("Slow execution detected (%s)", ev.Elapsed)
	default:
		log.Debug().Msgf("Execution %s", ev.Kind)
	}
}
