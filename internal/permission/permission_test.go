package permission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxkey/voxkey/internal/automation"
	automock "github.com/voxkey/voxkey/internal/automation/mock"
)

func TestCheckCachesWithinTTL(t *testing.T) {
	runner := &automock.Runner{Outputs: map[string]string{
		automation.ScriptPermissionProbe: "Finder",
	}}
	now := time.Unix(1000, 0)
	c := NewChecker(runner,
		WithTTL(time.Minute),
		WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		if got := c.Check(context.Background()); got != StatusGranted {
			t.Fatalf("Check() = %v, want granted", got)
		}
	}
	if n := runner.CallsTo(automation.ScriptPermissionProbe); n != 1 {
		t.Errorf("probe ran %d times, want 1 (cached)", n)
	}
}

func TestCheckReprobesAfterTTL(t *testing.T) {
	runner := &automock.Runner{Outputs: map[string]string{
		automation.ScriptPermissionProbe: "Finder",
	}}
	now := time.Unix(1000, 0)
	c := NewChecker(runner,
		WithTTL(time.Minute),
		WithClock(func() time.Time { return now }))

	c.Check(context.Background())
	now = now.Add(2 * time.Minute)
	c.Check(context.Background())

	if n := runner.CallsTo(automation.ScriptPermissionProbe); n != 2 {
		t.Errorf("probe ran %d times, want 2 (TTL expired)", n)
	}
}

func TestCheckDeniedOnProbeFailure(t *testing.T) {
	runner := &automock.Runner{Errs: map[string]error{
		automation.ScriptPermissionProbe: errors.New("not authorized"),
	}}
	c := NewChecker(runner)

	if got := c.Check(context.Background()); got != StatusDenied {
		t.Errorf("Check() = %v, want denied", got)
	}
	if c.Granted(context.Background()) {
		t.Error("Granted() = true after failed probe")
	}
}

func TestInvalidateForcesReprobe(t *testing.T) {
	runner := &automock.Runner{Outputs: map[string]string{
		automation.ScriptPermissionProbe: "Finder",
	}}
	c := NewChecker(runner, WithTTL(time.Hour))

	c.Check(context.Background())
	c.Invalidate()
	c.Check(context.Background())

	if n := runner.CallsTo(automation.ScriptPermissionProbe); n != 2 {
		t.Errorf("probe ran %d times, want 2 after Invalidate", n)
	}
}
