package tracking

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/gaborage/go-bricks-sqlflow/config"
	"github.com/gaborage/go-bricks-sqlflow/database/types"
	"github.com/gaborage/go-bricks-sqlflow/logger"
)

const testExecutionID = "exec-1"

type harness struct {
	observer *Observer
	reader   *sdkmetric.ManualReader
	spans    *tracetest.InMemoryExporter
	logs     *bytes.Buffer
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
		_ = tp.Shutdown(context.Background())
	})

	logs := &bytes.Buffer{}
	return &harness{
		observer: NewObserver(logger.NewWithWriter(logs, "debug"),
			WithMeterProvider(mp),
			WithTracerProvider(tp),
			WithSettings(settings),
		),
		reader: reader,
		spans:  exporter,
		logs:   logs,
	}
}

func (h *harness) emit(kinds ...types.EventKind) {
	for _, k := range kinds {
		h.observer.Observe(context.Background(), types.Event{
			ExecutionID: testExecutionID,
			Kind:        k,
			Policy:      "single",
			Elapsed:     5 * time.Millisecond,
		})
	}
}

func (h *harness) collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, h.reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func sumFor(t *testing.T, m metricdata.Metrics, event string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum for %s", m.Name)

	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attrEvent); ok && v.AsString() == event {
			total += dp.Value
		}
	}
	return total
}

func spanAttr(span tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestObserverSpanPerExecution(t *testing.T) {
	h := newHarness(t, NewSettings(nil))

	h.emit(types.EventAcquire, types.EventModeSet)
	assert.Equal(t, 1, h.observer.Active())
	assert.Empty(t, h.spans.GetSpans(), "span ends on close")

	h.emit(types.EventEmit, types.EventEmit, types.EventCommit, types.EventClose)
	assert.Equal(t, 0, h.observer.Active())

	spans := h.spans.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, spanName, span.Name)
	assert.Equal(t, codes.Unset, span.Status.Code)

	rows, ok := spanAttr(span, "db.execution.rows")
	require.True(t, ok)
	assert.Equal(t, int64(2), rows.AsInt64())
	outcome, ok := spanAttr(span, attrOutcome)
	require.True(t, ok)
	assert.Equal(t, OutcomeCompleted, outcome.AsString())

	var names []string
	for _, e := range span.Events {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"mode-set", "commit", "close"}, names)
}

func TestObserverCountsEveryEvent(t *testing.T) {
	h := newHarness(t, NewSettings(nil))

	h.emit(types.EventAcquire, types.EventEmit, types.EventEmit, types.EventEmit, types.EventClose)

	rm := h.collect(t)
	events, ok := findMetric(rm, metricEvents)
	require.True(t, ok)
	assert.Equal(t, int64(1), sumFor(t, events, "acquire"))
	assert.Equal(t, int64(3), sumFor(t, events, "emit"))
	assert.Equal(t, int64(1), sumFor(t, events, "close"))

	duration, ok := findMetric(rm, metricDuration)
	require.True(t, ok)
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 5.0, hist.DataPoints[0].Sum, 0.001)
}

func TestObserverErrorMarksSpan(t *testing.T) {
	h := newHarness(t, NewSettings(nil))
	boom := types.NewError(types.ErrExecution, "query", errors.New("boom"))

	h.emit(types.EventAcquire)
	h.observer.Observe(context.Background(), types.Event{
		ExecutionID: testExecutionID, Kind: types.EventError, Policy: "single", Err: boom,
	})
	h.emit(types.EventRollback, types.EventClose)

	spans := h.spans.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Contains(t, spans[0].Status.Description, "boom")
	outcome, _ := spanAttr(spans[0], attrOutcome)
	assert.Equal(t, OutcomeFailed, outcome.AsString())
	assert.Contains(t, h.logs.String(), "Execution failed")
}

func TestObserverErrorWithoutConnection(t *testing.T) {
	h := newHarness(t, NewSettings(nil))

	h.observer.Observe(context.Background(), types.Event{
		ExecutionID: "never-acquired",
		Kind:        types.EventError,
		Policy:      "autocommit",
		Err:         types.NewError(types.ErrAcquisition, "acquire", errors.New("refused")),
	})

	spans := h.spans.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, 0, h.observer.Active())
}

func TestObserverCancelOutcome(t *testing.T) {
	h := newHarness(t, NewSettings(nil))

	h.emit(types.EventAcquire, types.EventEmit, types.EventCancel, types.EventRollback, types.EventClose)

	spans := h.spans.GetSpans()
	require.Len(t, spans, 1)
	outcome, _ := spanAttr(spans[0], attrOutcome)
	assert.Equal(t, OutcomeCancelled, outcome.AsString())
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
}

func TestObserverCloseFailureIsRecordedNotFatal(t *testing.T) {
	h := newHarness(t, NewSettings(nil))

	h.emit(types.EventAcquire)
	h.observer.Observe(context.Background(), types.Event{
		ExecutionID: testExecutionID,
		Kind:        types.EventClose,
		Policy:      "single",
		Err:         types.NewError(types.ErrClose, "close", errors.New("broken pipe")),
	})

	spans := h.spans.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	require.NotEmpty(t, spans[0].Events)
	assert.Equal(t, "exception", spans[0].Events[len(spans[0].Events)-1].Name)
	assert.Contains(t, h.logs.String(), "Execution close failed")
}

func TestObserverIgnoresUnknownExecution(t *testing.T) {
	h := newHarness(t, NewSettings(nil))

	h.observer.Observe(context.Background(), types.Event{ExecutionID: "ghost", Kind: types.EventCommit})
	h.observer.Observe(context.Background(), types.Event{ExecutionID: "ghost", Kind: types.EventClose})

	assert.Empty(t, h.spans.GetSpans())
	assert.Equal(t, 0, h.observer.Active())
}

func TestObserverSlowExecutionWarning(t *testing.T) {
	h := newHarness(t, NewSettings(&config.Config{
		Execution: config.ExecutionConfig{SlowThreshold: time.Millisecond},
		Database:  config.DatabaseConfig{Type: "postgresql"},
	}))

	h.emit(types.EventAcquire, types.EventClose)

	out := h.logs.String()
	assert.Contains(t, out, "Slow execution detected")
	assert.Contains(t, out, `"vendor":"postgresql"`)
	assert.Contains(t, out, `"execution_id":"exec-1"`)
}

func TestObserverConcurrentExecutions(t *testing.T) {
	h := newHarness(t, NewSettings(nil))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for _, k := range []types.EventKind{types.EventAcquire, types.EventEmit, types.EventClose} {
				h.observer.Observe(context.Background(), types.Event{ExecutionID: id, Kind: k})
			}
		}(strings.Repeat("x", i+1))
	}
	wg.Wait()

	assert.Len(t, h.spans.GetSpans(), 20)
	assert.Equal(t, 0, h.observer.Active())
}

func TestRegisterPoolMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	unregister := RegisterPoolMetrics(mp, func() sql.DBStats {
		return sql.DBStats{MaxOpenConnections: 10, InUse: 3, Idle: 2, WaitCount: 7}
	}, "postgres")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	expected := map[string]int64{
		metricPoolActive: 3,
		metricPoolIdle:   2,
		metricPoolTotal:  10,
		metricPoolWaits:  7,
	}
	for name, want := range expected {
		m, ok := findMetric(rm, name)
		require.True(t, ok, name)
		gauge, ok := m.Data.(metricdata.Gauge[int64])
		require.True(t, ok, name)
		require.Len(t, gauge.DataPoints, 1)
		assert.Equal(t, want, gauge.DataPoints[0].Value, name)
		system, _ := gauge.DataPoints[0].Attributes.Value(attrDBSystem)
		assert.Equal(t, dbVendorPostgreSQL, system.AsString())
	}

	unregister()
	rm = metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(context.Background(), &rm))
	if m, ok := findMetric(rm, metricPoolActive); ok {
		gauge, _ := m.Data.(metricdata.Gauge[int64])
		assert.Empty(t, gauge.DataPoints, "unregistered callback must not report")
	}
}

func TestRegisterPoolMetricsNilStats(t *testing.T) {
	assert.NotPanics(t, func() { RegisterPoolMetrics(nil, nil, "oracle")() })
}

func TestSettings(t *testing.T) {
	s := NewSettings(nil)
	assert.Equal(t, DefaultSlowThreshold, s.SlowThreshold())
	assert.Equal(t, dbVendorUnknown, s.Vendor())

	s = NewSettings(&config.Config{Database: config.DatabaseConfig{Type: "Oracle"}})
	assert.Equal(t, DefaultSlowThreshold, s.SlowThreshold())
	assert.Equal(t, dbVendorOracle, s.Vendor())
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 0))
	assert.Equal(t, "abc", TruncateString("abc", 3))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
	assert.Equal(t, "a...", TruncateString("abcdef", 4))
	assert.Equal(t, "ñ...", TruncateString("ñññññ", 4))
}
