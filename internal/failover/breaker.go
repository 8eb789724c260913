// Package failover provides backend failover primitives for the capture
// pipeline.
//
// The central type is [Chain], an ordered list of interchangeable backends
// with a per-entry [Breaker]. A tripped backend is skipped until its cooldown
// elapses, so a dead cloud endpoint costs one timeout rather than one per
// utterance. [Transcriber] adapts a chain of speech-to-text backends back
// into the single-backend interface the rest of the pipeline consumes.
//
// All types are safe for concurrent use.
package failover

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrTripped is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not yet elapsed.
var ErrTripped = errors.New("breaker tripped")

// BreakerConfig holds tuning knobs for a [Breaker]. Zero fields get defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// Threshold is the consecutive-failure count that trips the breaker.
	// Default: 3.
	Threshold int

	// Cooldown is how long a tripped breaker rejects calls before allowing
	// probes again. Default: 30s.
	Cooldown time.Duration

	// Probes is how many calls may run during recovery before the breaker
	// decides to close or re-trip. Default: 2.
	Probes int

	// now is injected by tests to control time.
	now func() time.Time
}

// Breaker is a three-state circuit breaker (closed, tripped, probing).
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	probes    int
	now       func() time.Time

	mu        sync.Mutex
	tripped   bool
	probing   bool
	streak    int // consecutive failures while closed
	trippedAt time.Time
	probeUsed int
	probeOK   int
}

// NewBreaker creates a [Breaker] from cfg, filling in defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 2
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		probes:    cfg.Probes,
		now:       cfg.now,
	}
}

// Do runs fn unless the breaker is tripped and still cooling down, in which
// case it returns [ErrTripped] without calling fn. During recovery only a
// limited number of probe calls are let through.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()
	b.settle(err)
	return err
}

// admit decides whether a call may proceed, updating state for probing.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tripped {
		if b.now().Sub(b.trippedAt) < b.cooldown {
			return ErrTripped
		}
		// Cooldown over, start probing.
		b.tripped = false
		b.probing = true
		b.probeUsed = 0
		b.probeOK = 0
		slog.Info("breaker probing after cooldown", "name", b.name)
	}
	if b.probing {
		if b.probeUsed >= b.probes {
			return ErrTripped
		}
		b.probeUsed++
	}
	return nil
}

// settle records the outcome of an admitted call.
func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		if b.probing {
			// A failed probe re-trips immediately.
			b.probing = false
			b.tripped = true
			b.trippedAt = b.now()
			slog.Warn("breaker re-tripped during probe", "name", b.name)
			return
		}
		b.streak++
		if b.streak >= b.threshold {
			b.tripped = true
			b.trippedAt = b.now()
			slog.Warn("breaker tripped", "name", b.name, "failures", b.streak)
		}
		return
	}

	if b.probing {
		b.probeOK++
		if b.probeOK >= b.probes {
			b.probing = false
			b.streak = 0
			slog.Info("breaker recovered", "name", b.name)
		}
		return
	}
	b.streak = 0
}

// Tripped reports whether the breaker is currently rejecting calls.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped && b.now().Sub(b.trippedAt) < b.cooldown
}

// Reset forces the breaker back to the closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripped = false
	b.probing = false
	b.streak = 0
	b.probeUsed = 0
	b.probeOK = 0
}
