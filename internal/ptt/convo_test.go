package ptt

import (
	"strings"
	"testing"
	"time"
)

// convoClock is a settable time source.
type convoClock struct {
	t time.Time
}

func (c *convoClock) now() time.Time { return c.t }

func (c *convoClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newConvoClock() *convoClock {
	return &convoClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func TestSessionIsLazyAndStable(t *testing.T) {
	clock := newConvoClock()
	m := NewConversationManager(WithConvoClock(clock.now))

	first := m.Session()
	if first == "" {
		t.Fatal("Session() returned empty ID")
	}

	clock.advance(time.Minute)
	if got := m.Session(); got != first {
		t.Errorf("Session() = %q after a minute, want %q unchanged", got, first)
	}
}

func TestSessionRotatesAfterIdleExpiry(t *testing.T) {
	clock := newConvoClock()
	m := NewConversationManager(
		WithConvoClock(clock.now),
		WithIdleExpiry(5*time.Minute),
	)

	first := m.Session()
	m.Record("what time is it", "nine o'clock")

	clock.advance(6 * time.Minute)
	second := m.Session()
	if second == first {
		t.Error("Session() kept the ID across the idle expiry")
	}
	if hist := m.History(); len(hist) != 0 {
		t.Errorf("History() = %d messages after rotation, want 0", len(hist))
	}
}

func TestHistoryEmptyWhenExpired(t *testing.T) {
	clock := newConvoClock()
	m := NewConversationManager(WithConvoClock(clock.now))

	m.Session()
	m.Record("hello", "hi there")
	if hist := m.History(); len(hist) != 2 {
		t.Fatalf("History() = %d messages, want 2", len(hist))
	}

	clock.advance(10 * time.Minute)
	if hist := m.History(); len(hist) != 0 {
		t.Errorf("History() = %d messages for an expired session, want 0", len(hist))
	}
}

func TestRecordWithoutSessionIsNoOp(t *testing.T) {
	m := NewConversationManager()

	m.Record("orphan query", "orphan answer")
	m.Session()
	if hist := m.History(); len(hist) != 0 {
		t.Errorf("History() = %d messages, want 0 when Record preceded Session", len(hist))
	}
}

func TestHistoryEvictsOldestOverTokenBudget(t *testing.T) {
	clock := newConvoClock()
	// 100-token budget at ~4 chars per token = 400 chars.
	m := NewConversationManager(
		WithConvoClock(clock.now),
		WithMaxHistoryTokens(100),
	)

	m.Session()
	big := strings.Repeat("x", 300)
	m.Record("first "+big, "first answer")
	m.Record("second question", "second answer")

	hist := m.History()
	if len(hist) == 0 {
		t.Fatal("History() empty after eviction")
	}
	for _, msg := range hist {
		if strings.HasPrefix(msg.Content, "first ") {
			t.Errorf("oldest exchange survived eviction: %.20q", msg.Content)
		}
	}
	if got := hist[len(hist)-1].Content; got != "second answer" {
		t.Errorf("newest message = %q, want the latest answer", got)
	}
}

func TestHistoryReturnsSnapshot(t *testing.T) {
	m := NewConversationManager()
	m.Session()
	m.Record("q", "a")

	hist := m.History()
	hist[0].Content = "mutated"

	if got := m.History()[0].Content; got != "q" {
		t.Errorf("internal history mutated through snapshot: %q", got)
	}
}
