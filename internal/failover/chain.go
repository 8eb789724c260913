package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voxkey/voxkey/internal/observe"
)

// ErrExhausted is returned when every entry in a [Chain] fails or is tripped.
var ErrExhausted = errors.New("all backends failed")

// entry pairs a backend with its dedicated breaker.
type entry[T any] struct {
	name    string
	backend T
	breaker *Breaker
}

// Chain is an ordered list of interchangeable backends, each guarded by its
// own [Breaker]. Calls walk the list until one backend succeeds.
type Chain[T any] struct {
	entries []entry[T]
	cfg     BreakerConfig

	metrics *observe.Metrics
	kind    string
}

// NewChain creates a [Chain] whose per-entry breakers share cfg. Backends are
// added with [Chain.Add] and tried in insertion order.
func NewChain[T any](cfg BreakerConfig) *Chain[T] {
	return &Chain[T]{cfg: cfg}
}

// Add appends a named backend to the chain.
func (c *Chain[T]) Add(name string, backend T) {
	bcfg := c.cfg
	bcfg.Name = name
	c.entries = append(c.entries, entry[T]{
		name:    name,
		backend: backend,
		breaker: NewBreaker(bcfg),
	})
}

// Len returns the number of backends in the chain.
func (c *Chain[T]) Len() int { return len(c.entries) }

// Instrument wires the pipeline metrics recorder. kind labels the backend
// class ("stt", "llm") on every request and error count.
func (c *Chain[T]) Instrument(m *observe.Metrics, kind string) {
	c.metrics = m
	c.kind = kind
}

// Do tries fn against each backend in order until one succeeds. Tripped
// entries are skipped. Stops early when ctx is done. Returns [ErrExhausted]
// wrapped with the last failure if nothing succeeded.
func (c *Chain[T]) Do(ctx context.Context, fn func(ctx context.Context, backend T) error) error {
	_, err := DoResult(ctx, c, func(ctx context.Context, backend T) (struct{}, error) {
		return struct{}{}, fn(ctx, backend)
	})
	return err
}

// DoResult is the value-returning form of [Chain.Do]. It is a package-level
// function because Go methods cannot introduce type parameters.
func DoResult[T, R any](ctx context.Context, c *Chain[T], fn func(ctx context.Context, backend T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	if len(c.entries) == 0 {
		return zero, fmt.Errorf("%w: empty chain", ErrExhausted)
	}

	for i := range c.entries {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		e := &c.entries[i]

		var result R
		err := e.breaker.Do(func() error {
			var inner error
			result, inner = fn(ctx, e.backend)
			return inner
		})
		if err == nil {
			c.metrics.RecordProviderRequest(ctx, e.name, c.kind, "ok")
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrTripped) {
			// No request reached the backend; only log the skip.
			slog.Debug("skipping tripped backend", "backend", e.name)
		} else {
			c.metrics.RecordProviderRequest(ctx, e.name, c.kind, "error")
			c.metrics.RecordProviderError(ctx, e.name, c.kind)
			slog.Warn("backend failed, trying next", "backend", e.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}
