package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all exported metrics into a name-indexed map.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRecordStageAndCycle(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, "transcribe", 150*time.Millisecond)
	m.RecordCycle(ctx, "dictation", "ok")
	m.CycleStarted(ctx)
	m.CycleFinished(ctx)

	got := collect(t, reader)
	for _, name := range []string{"voxkey.stage.duration", "voxkey.cycles", "voxkey.active_cycles"} {
		if _, ok := got[name]; !ok {
			t.Errorf("metric %q not exported", name)
		}
	}
}

func TestRecordersSafeOnNil(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// Must not panic.
	m.RecordStage(ctx, "capture", time.Second)
	m.RecordCycle(ctx, "command", "error")
	m.RecordProviderRequest(ctx, "deepgram", "stt", "ok")
	m.RecordProviderError(ctx, "deepgram", "stt")
	m.RecordDeliveryAttempt(ctx, "fast-paste", "ok")
	m.CycleStarted(ctx)
	m.CycleFinished(ctx)
}
