package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func TestStartSpanRecordsThroughGlobalProvider(t *testing.T) {
	recorder := withTestTracer(t)

	_, span := StartSpan(context.Background(), "ptt.cycle")
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "ptt.cycle" {
		t.Fatalf("recorded spans = %v, want a single ptt.cycle span", spans)
	}
}

func TestLoggerCarriesTraceIDs(t *testing.T) {
	withTestTracer(t)

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx, span := StartSpan(context.Background(), "ptt.cycle")
	Logger(ctx).Info("inside span")
	span.End()
	Logger(context.Background()).Info("outside span")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "trace_id=") || !strings.Contains(lines[0], "span_id=") {
		t.Errorf("in-span log %q missing trace correlation fields", lines[0])
	}
	if strings.Contains(lines[1], "trace_id=") {
		t.Errorf("out-of-span log %q should not carry a trace id", lines[1])
	}
}
