// Package observe provides application-wide observability primitives for
// Loqui: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Loqui metrics.
const meterName = "github.com/loquihq/loqui"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// NegotiationDuration tracks how long session setup takes, from
	// credential mint through SDP answer.
	NegotiationDuration metric.Float64Histogram

	// SessionDuration tracks completed session lengths.
	SessionDuration metric.Float64Histogram

	// ControlEvents counts decoded control-channel events. Use with
	// attribute: attribute.String("type", ...)
	ControlEvents metric.Int64Counter

	// PersistErrors counts failed background persistence writes. Use
	// with attribute: attribute.String("op", ...)
	PersistErrors metric.Int64Counter

	// SessionErrors counts session setup and teardown failures. Use with
	// attribute: attribute.String("stage", ...)
	SessionErrors metric.Int64Counter

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for the
// session setup path.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// sessionBuckets defines bucket boundaries (in seconds) for whole-session
// durations.
var sessionBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.NegotiationDuration, err = m.Float64Histogram("loqui.negotiation.duration",
		metric.WithDescription("Latency of session negotiation (credential mint plus SDP exchange)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("loqui.session.duration",
		metric.WithDescription("Duration of completed voice sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ControlEvents, err = m.Int64Counter("loqui.control.events",
		metric.WithDescription("Total decoded control-channel events by type."),
	); err != nil {
		return nil, err
	}
	if met.PersistErrors, err = m.Int64Counter("loqui.persist.errors",
		metric.WithDescription("Total failed background persistence writes by operation."),
	); err != nil {
		return nil, err
	}
	if met.SessionErrors, err = m.Int64Counter("loqui.session.errors",
		metric.WithDescription("Total session failures by stage."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("loqui.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("loqui.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordControlEvent records one decoded control-channel event.
func (m *Metrics) RecordControlEvent(ctx context.Context, eventType string) {
	m.ControlEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", eventType)),
	)
}

// RecordPersistError records one failed background persistence write.
func (m *Metrics) RecordPersistError(ctx context.Context, op string) {
	m.PersistErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
}

// RecordSessionError records one session failure for the given stage.
func (m *Metrics) RecordSessionError(ctx context.Context, stage string) {
	m.SessionErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
