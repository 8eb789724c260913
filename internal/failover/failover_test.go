package failover

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/voxkey/voxkey/internal/observe"
	"github.com/voxkey/voxkey/pkg/audio"
	"github.com/voxkey/voxkey/pkg/stt"
	sttmock "github.com/voxkey/voxkey/pkg/stt/mock"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	b := NewBreaker(BreakerConfig{Threshold: 3, Cooldown: time.Minute, now: clk.now})

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: got %v, want boom", i, err)
		}
	}
	if !b.Tripped() {
		t.Fatal("breaker should be tripped after 3 consecutive failures")
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrTripped) {
		t.Fatalf("got %v, want ErrTripped", err)
	}
}

func TestBreakerSuccessResetsStreak(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 2})

	boom := errors.New("boom")
	b.Do(func() error { return boom })
	b.Do(func() error { return nil })
	b.Do(func() error { return boom })

	if b.Tripped() {
		t.Fatal("interleaved success should have reset the failure streak")
	}
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	b := NewBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Minute, Probes: 2, now: clk.now})

	b.Do(func() error { return errors.New("boom") })
	if !b.Tripped() {
		t.Fatal("breaker should be tripped")
	}

	clk.advance(2 * time.Minute)

	// Two successful probes close the breaker.
	for i := 0; i < 2; i++ {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if b.Tripped() {
		t.Fatal("breaker should be closed after successful probes")
	}
}

func TestBreakerFailedProbeRetrips(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	b := NewBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Minute, now: clk.now})

	b.Do(func() error { return errors.New("boom") })
	clk.advance(2 * time.Minute)

	b.Do(func() error { return errors.New("still down") })
	if !b.Tripped() {
		t.Fatal("failed probe should re-trip the breaker")
	}
}

func TestChainFallsBackToSecond(t *testing.T) {
	c := NewChain[string](BreakerConfig{})
	c.Add("a", "a")
	c.Add("b", "b")

	got, err := DoResult(context.Background(), c, func(_ context.Context, s string) (string, error) {
		if s == "a" {
			return "", errors.New("a is down")
		}
		return "from " + s, nil
	})
	if err != nil {
		t.Fatalf("DoResult: %v", err)
	}
	if got != "from b" {
		t.Fatalf("got %q, want %q", got, "from b")
	}
}

func TestChainExhausted(t *testing.T) {
	c := NewChain[int](BreakerConfig{})
	c.Add("only", 1)

	err := c.Do(context.Background(), func(context.Context, int) error {
		return errors.New("down")
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("got %v, want ErrExhausted", err)
	}
}

func TestChainEmptyIsExhausted(t *testing.T) {
	c := NewChain[int](BreakerConfig{})
	if err := c.Do(context.Background(), func(context.Context, int) error { return nil }); !errors.Is(err, ErrExhausted) {
		t.Fatalf("got %v, want ErrExhausted", err)
	}
}

func TestChainStopsOnCancelledContext(t *testing.T) {
	c := NewChain[int](BreakerConfig{})
	c.Add("a", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := c.Do(ctx, func(context.Context, int) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if called {
		t.Fatal("backend must not run with a cancelled context")
	}
}

func TestChainSkipsTrippedBackend(t *testing.T) {
	c := NewChain[string](BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	c.Add("flaky", "flaky")
	c.Add("solid", "solid")

	calls := map[string]int{}
	run := func() (string, error) {
		return DoResult(context.Background(), c, func(_ context.Context, s string) (string, error) {
			calls[s]++
			if s == "flaky" {
				return "", errors.New("down")
			}
			return s, nil
		})
	}

	// First call trips "flaky" and falls through to "solid".
	if got, err := run(); err != nil || got != "solid" {
		t.Fatalf("first run: got %q, %v", got, err)
	}
	// Second call must skip "flaky" entirely.
	if got, err := run(); err != nil || got != "solid" {
		t.Fatalf("second run: got %q, %v", got, err)
	}
	if calls["flaky"] != 1 {
		t.Fatalf("flaky called %d times, want 1", calls["flaky"])
	}
}

func TestTranscriberFailover(t *testing.T) {
	primary := &sttmock.Transcriber{
		TranscribeFunc: func(context.Context, []byte, audio.Format) (stt.Result, error) {
			return stt.Result{}, errors.New("quota exceeded")
		},
	}
	backup := &sttmock.Transcriber{FixedText: "hello world"}

	ft := NewTranscriber("primary", primary, BreakerConfig{})
	ft.Add("backup", backup)

	res, err := ft.Transcribe(context.Background(), []byte{0, 0}, audio.DefaultFormat())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello world" {
		t.Fatalf("got %q, want %q", res.Text, "hello world")
	}
	if len(primary.Calls()) != 1 || len(backup.Calls()) != 1 {
		t.Fatalf("calls: primary=%d backup=%d, want 1 each", len(primary.Calls()), len(backup.Calls()))
	}
}

func TestTranscriberRecordsProviderMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	primary := &sttmock.Transcriber{
		TranscribeFunc: func(context.Context, []byte, audio.Format) (stt.Result, error) {
			return stt.Result{}, errors.New("quota exceeded")
		},
	}
	backup := &sttmock.Transcriber{FixedText: "ok"}

	ft := NewTranscriber("primary", primary, BreakerConfig{})
	ft.Instrument(m)
	ft.Add("backup", backup)

	if _, err := ft.Transcribe(context.Background(), []byte{0, 0}, audio.DefaultFormat()); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, mm := range sm.Metrics {
			sum, ok := mm.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[mm.Name] += dp.Value
			}
		}
	}
	if got := totals["voxkey.provider.requests"]; got != 2 {
		t.Errorf("provider requests = %d, want 2 (primary error + backup ok)", got)
	}
	if got := totals["voxkey.provider.errors"]; got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
}
