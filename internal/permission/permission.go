// Package permission caches the result of the OS automation permission
// probe. The probe itself costs an osascript round-trip, so the result is
// memoized with a TTL as explicit process-scoped state rather than an
// ambient static, with the clock injected for tests.
package permission

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxkey/voxkey/internal/automation"
)

// Status is the cached permission state.
type Status int

const (
	// StatusUnknown means no probe has run yet or the cache expired.
	StatusUnknown Status = iota

	// StatusGranted means the last probe succeeded.
	StatusGranted

	// StatusDenied means the last probe failed.
	StatusDenied
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusGranted:
		return "granted"
	case StatusDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// DefaultTTL is how long a probe result stays fresh. OS permission state can
// drift while the process runs, so the cache is re-probed periodically and
// can be force-invalidated after long idle stretches.
const DefaultTTL = 5 * time.Minute

// Option is a functional option for configuring a [Checker].
type Option func(*Checker)

// WithTTL overrides [DefaultTTL].
func WithTTL(ttl time.Duration) Option {
	return func(c *Checker) { c.ttl = ttl }
}

// WithClock injects the time source used for TTL checks. Tests only.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// Checker probes and caches the automation permission. Safe for concurrent
// use.
type Checker struct {
	runner automation.Runner
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	status    Status
	checkedAt time.Time
}

// NewChecker creates a Checker probing through runner.
func NewChecker(runner automation.Runner, opts ...Option) *Checker {
	c := &Checker{
		runner: runner,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Granted reports whether the automation permission is currently believed to
// be held, probing the OS if the cached result has expired.
func (c *Checker) Granted(ctx context.Context) bool {
	return c.Check(ctx) == StatusGranted
}

// Check returns the current status, refreshing the cache when stale.
func (c *Checker) Check(ctx context.Context) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusUnknown && c.now().Sub(c.checkedAt) < c.ttl {
		return c.status
	}

	if _, err := c.runner.Run(ctx, automation.ScriptPermissionProbe, nil); err != nil {
		slog.Warn("automation permission probe failed", "error", err)
		c.status = StatusDenied
	} else {
		c.status = StatusGranted
	}
	c.checkedAt = c.now()
	return c.status
}

// Invalidate discards the cached result so the next Check probes again. Used
// after long idle periods where OS permission state may have silently
// changed.
func (c *Checker) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusUnknown
}
