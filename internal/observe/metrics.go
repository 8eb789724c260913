// Package observe provides observability primitives for the capture
// pipeline: OpenTelemetry metrics, tracing helpers, and the provider setup
// that bridges both to a Prometheus scrape endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. Tests should
// use [NewMetrics] with a private [metric.MeterProvider] to avoid cross-test
// pollution; [DefaultMetrics] uses the global provider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all voxkey metrics.
const meterName = "github.com/voxkey/voxkey"

// Metrics holds the metric instruments for the pipeline. All fields are safe
// for concurrent use; the OTel types synchronise internally.
type Metrics struct {
	// StageDuration tracks per-stage cycle latency. Attribute: "stage" is
	// one of capture, transcribe, classify, route, deliver.
	StageDuration metric.Float64Histogram

	// Cycles counts completed push-to-talk cycles. Attributes: "kind"
	// (dictation, command, edit-selection, silence), "status" (ok, error,
	// cancelled).
	Cycles metric.Int64Counter

	// ProviderRequests counts transcription and LLM backend calls.
	// Attributes: "provider", "kind", "status".
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts backend failures. Attributes: "provider",
	// "kind".
	ProviderErrors metric.Int64Counter

	// DeliveryAttempts counts delivery strategy attempts. Attributes:
	// "strategy", "status".
	DeliveryAttempts metric.Int64Counter

	// ActiveCycles is 1 while a cycle is in flight, 0 when idle.
	ActiveCycles metric.Int64UpDownCounter
}

// latencyBuckets are histogram boundaries (seconds) sized for interactive
// dictation latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("voxkey.stage.duration",
		metric.WithDescription("Latency per pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Cycles, err = m.Int64Counter("voxkey.cycles",
		metric.WithDescription("Completed push-to-talk cycles by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("voxkey.provider.requests",
		metric.WithDescription("Backend API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxkey.provider.errors",
		metric.WithDescription("Backend errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.DeliveryAttempts, err = m.Int64Counter("voxkey.delivery.attempts",
		metric.WithDescription("Delivery strategy attempts by strategy and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCycles, err = m.Int64UpDownCounter("voxkey.active_cycles",
		metric.WithDescription("Number of in-flight push-to-talk cycles (0 or 1)."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// defaultMetrics is the lazily-initialised package-level instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] built on the global
// meter provider. Panics if instrument creation fails, which cannot happen
// with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStage records one stage's latency. Safe on a nil receiver so the
// pipeline can run without metrics wired.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordCycle records one finished cycle. Safe on a nil receiver.
func (m *Metrics) RecordCycle(ctx context.Context, kind, status string) {
	if m == nil {
		return
	}
	m.Cycles.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordProviderRequest records one backend call. Safe on a nil receiver.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	if m == nil {
		return
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordProviderError records one backend failure. Safe on a nil receiver.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// RecordDeliveryAttempt records one strategy attempt. Safe on a nil
// receiver.
func (m *Metrics) RecordDeliveryAttempt(ctx context.Context, strategy, status string) {
	if m == nil {
		return
	}
	m.DeliveryAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("status", status),
	))
}

// CycleStarted marks a cycle in flight. Safe on a nil receiver.
func (m *Metrics) CycleStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveCycles.Add(ctx, 1)
}

// CycleFinished marks the cycle done. Safe on a nil receiver.
func (m *Metrics) CycleFinished(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveCycles.Add(ctx, -1)
}
