package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// Instrumentation scope for both the meter and the tracer
	scopeName = "go-bricks-sqlflow/database"

	metricEvents   = "db.client.execution.events"
	metricDuration = "db.client.execution.duration"

	// Connection pool metrics
	metricPoolActive = "db.connection.pool.active"
	metricPoolIdle   = "db.connection.pool.idle"
	metricPoolTotal  = "db.connection.pool.total"
	metricPoolWaits  = "db.connection.pool.wait_count"

	attrDBSystem = "db.system"
	attrEvent    = "db.execution.event"
	attrPolicy   = "db.execution.policy"
	attrOutcome  = "db.execution.outcome"
	attrError    = "error"
)

// logMetricError reports an instrument registration failure to stderr.
// Metrics are best-effort and never fail an execution.
func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize metric %s: %v\n", metricName, err)
	}
}

type instruments struct {
	events   metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments(meter metric.Meter) *instruments {
	inst := &instruments{}

	var err error
	inst.events, err = meter.Int64Counter(
		metricEvents,
		metric.WithDescription("Number of execution lifecycle events"),
	)
	logMetricError(metricEvents, err)

	inst.duration, err = meter.Float64Histogram(
		metricDuration,
		metric.WithDescription("Duration of executions from subscribe to release in milliseconds"),
		metric.WithUnit("ms"),
	)
	logMetricError(metricDuration, err)

	return inst
}

func (i *instruments) countEvent(ctx context.Context, attrs ...attribute.KeyValue) {
	if i.events != nil {
		i.events.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (i *instruments) recordDuration(ctx context.Context, ms float64, attrs ...attribute.KeyValue) {
	if i.duration != nil {
		i.duration.Record(ctx, ms, metric.WithAttributes(attrs...))
	}
}

// StatsFunc reports pool statistics, typically (*sql.DB).Stats.
type StatsFunc func() sql.DBStats

// RegisterPoolMetrics registers observable gauges over a connection pool.
// A nil provider uses the global meter provider. The returned function
// unregisters the callback; it is always safe to call.
func RegisterPoolMetrics(mp metric.MeterProvider, stats StatsFunc, vendor string) func() {
	if stats == nil {
		return func() {}
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(scopeName)

	active := createGauge(meter, metricPoolActive, "Number of database connections in use")
	idle := createGauge(meter, metricPoolIdle, "Number of idle database connections")
	total := createGauge(meter, metricPoolTotal, "Maximum number of open database connections")
	waits := createGauge(meter, metricPoolWaits, "Total number of waits for a database connection")

	instruments := collectInstruments(active, idle, total, waits)
	if len(instruments) == 0 {
		return func() {}
	}

	attrs := metric.WithAttributes(attribute.String(attrDBSystem, normalizeDBVendor(vendor)))
	registration, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		if active != nil {
			o.ObserveInt64(active, int64(s.InUse), attrs)
		}
		if idle != nil {
			o.ObserveInt64(idle, int64(s.Idle), attrs)
		}
		if total != nil {
			o.ObserveInt64(total, int64(s.MaxOpenConnections), attrs)
		}
		if waits != nil {
			o.ObserveInt64(waits, s.WaitCount, attrs)
		}
		return nil
	}, instruments...)
	if err != nil {
		logMetricError("pool_metrics_callback", err)
		return func() {}
	}

	return func() {
		if err := registration.Unregister(); err != nil {
			logMetricError("pool_metrics_unregister", err)
		}
	}
}

func createGauge(meter metric.Meter, name, description string) metric.Int64ObservableGauge {
	gauge, err := meter.Int64ObservableGauge(name, metric.WithDescription(description))
	logMetricError(name, err)
	return gauge
}

func collectInstruments(gauges ...metric.Int64ObservableGauge) []metric.Observable {
	var instruments []metric.Observable
	for _, g := range gauges {
		if g != nil {
			instruments = append(instruments, g)
		}
	}
	return instruments
}
