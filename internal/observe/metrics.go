// Package observe provides observability primitives for taskinator:
// OpenTelemetry metrics for platform calls and dispatch cycles, a
// Prometheus exporter bridge, and a tracer for dispatch spans.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all taskinator metrics.
const meterName = "github.com/sam-kirby/taskinator"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types
// handle their own synchronisation.
type Metrics struct {
	// DispatchDuration tracks the latency of one full dispatch cycle
	// (diff + all platform calls including retries).
	DispatchDuration metric.Float64Histogram

	// PlatformCalls counts platform API calls. Use with attributes:
	//   attribute.String("action", "mute"|"unmute"|"move"),
	//   attribute.String("status", "ok"|"transient"|"permanent")
	PlatformCalls metric.Int64Counter

	// PlatformRetries counts retry attempts after transient failures.
	PlatformRetries metric.Int64Counter

	// EventsHandled counts inbound game events. Use with attributes:
	//   attribute.String("event", ...), attribute.String("status", "ok"|"rejected"|"error")
	EventsHandled metric.Int64Counter

	// PhaseTransitions counts applied phase transitions. Use with:
	//   attribute.String("to", ...)
	PhaseTransitions metric.Int64Counter

	// TrackedParticipants tracks the number of participants in the registry.
	TrackedParticipants metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized
// for REST dispatch cycles that may include rate-limit backoff.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DispatchDuration, err = m.Float64Histogram("taskinator.dispatch.duration",
		metric.WithDescription("Latency of one dispatch cycle including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlatformCalls, err = m.Int64Counter("taskinator.platform.calls",
		metric.WithDescription("Total platform API calls by action and status."),
	); err != nil {
		return nil, err
	}
	if met.PlatformRetries, err = m.Int64Counter("taskinator.platform.retries",
		metric.WithDescription("Total retry attempts after transient platform failures."),
	); err != nil {
		return nil, err
	}
	if met.EventsHandled, err = m.Int64Counter("taskinator.events.handled",
		metric.WithDescription("Total inbound game events by type and status."),
	); err != nil {
		return nil, err
	}
	if met.PhaseTransitions, err = m.Int64Counter("taskinator.phase.transitions",
		metric.WithDescription("Total applied phase transitions by destination phase."),
	); err != nil {
		return nil, err
	}
	if met.TrackedParticipants, err = m.Int64UpDownCounter("taskinator.tracked_participants",
		metric.WithDescription("Number of participants currently tracked by the registry."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating
// it on first call using [otel.GetMeterProvider]. Panics if instrument
// creation fails (should not happen with the global provider).
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

// RecordPlatformCall records one platform API call outcome.
func (m *Metrics) RecordPlatformCall(ctx context.Context, action, status string) {
	m.PlatformCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("status", status),
		),
	)
}

// RecordEvent records one inbound game event outcome.
func (m *Metrics) RecordEvent(ctx context.Context, event, status string) {
	m.EventsHandled.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("event", event),
			attribute.String("status", status),
		),
	)
}

// RecordPhaseTransition records an applied phase transition.
func (m *Metrics) RecordPhaseTransition(ctx context.Context, to string) {
	m.PhaseTransitions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("to", to)),
	)
}
