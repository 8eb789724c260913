// Package deliver injects final text into the focused application.
//
// Delivery is an ordered chain of [Strategy] values tried sequentially, each
// under its own timeout. Strategies share one exclusive external resource
// (the clipboard and the frontmost-focus state), so attempts never run
// concurrently. An application-specific strategy whose hint matches the
// frontmost application is promoted ahead of the generic ones for that
// delivery.
package deliver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voxkey/voxkey/internal/notify"
	"github.com/voxkey/voxkey/internal/observe"
	"github.com/voxkey/voxkey/internal/permission"
)

// ErrPermissionDenied means the OS automation permission is missing; the
// chain was skipped entirely.
var ErrPermissionDenied = errors.New("deliver: automation permission denied")

// ErrAllStrategiesFailed means every strategy in the chain failed.
var ErrAllStrategiesFailed = errors.New("deliver: all strategies failed")

// FrontmostFunc resolves the name of the frontmost application.
type FrontmostFunc func(ctx context.Context) string

// Chain runs delivery strategies in priority order.
type Chain struct {
	strategies []Strategy
	perm       *permission.Checker
	notifier   notify.Notifier
	frontmost  FrontmostFunc
	metrics    *observe.Metrics
}

// ChainOption configures optional Chain collaborators.
type ChainOption func(*Chain)

// WithMetrics wires the pipeline metrics recorder; every strategy attempt is
// counted by name and outcome.
func WithMetrics(m *observe.Metrics) ChainOption {
	return func(c *Chain) { c.metrics = m }
}

// NewChain creates a Chain. strategies are tried in the given order, except
// that an app-specific strategy matching the frontmost application is
// promoted to the front for that delivery.
func NewChain(strategies []Strategy, perm *permission.Checker, notifier notify.Notifier, frontmost FrontmostFunc, opts ...ChainOption) *Chain {
	c := &Chain{
		strategies: strategies,
		perm:       perm,
		notifier:   notifier,
		frontmost:  frontmost,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Deliver injects text into the focused application. On permission failure
// the chain is skipped and the user notified; on exhaustion the user is
// notified and [ErrAllStrategiesFailed] returned.
func (c *Chain) Deliver(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	if !c.perm.Granted(ctx) {
		c.notifyFailure(ctx, "Automation permission required",
			"Grant Accessibility access in System Settings to deliver dictated text.")
		return ErrPermissionDenied
	}

	var lastErr error
	for _, s := range c.ordered(ctx) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.Timeout())
		err := s.Attempt(attemptCtx, text)
		cancel()

		if err == nil {
			c.metrics.RecordDeliveryAttempt(ctx, s.Name(), "ok")
			slog.Debug("delivery succeeded", "strategy", s.Name())
			return nil
		}
		c.metrics.RecordDeliveryAttempt(ctx, s.Name(), "error")
		lastErr = err
		slog.Warn("delivery strategy failed", "strategy", s.Name(), "error", err)

		if ctx.Err() != nil {
			return fmt.Errorf("deliver: %w", ctx.Err())
		}
	}

	c.notifyFailure(ctx, "Delivery failed",
		"Could not paste the text into the active application.")
	return fmt.Errorf("%w: %v", ErrAllStrategiesFailed, lastErr)
}

// ordered returns the strategy order for this delivery: matching
// app-specific strategies first, then the generics in configured order.
// App-specific strategies whose hint does not match the frontmost
// application are excluded; they would steal focus to the wrong app.
func (c *Chain) ordered(ctx context.Context) []Strategy {
	app := ""
	if c.frontmost != nil {
		app = c.frontmost(ctx)
	}

	var promoted, generic []Strategy
	for _, s := range c.strategies {
		switch hint := s.AppHint(); {
		case hint == "":
			generic = append(generic, s)
		case strings.EqualFold(hint, app):
			promoted = append(promoted, s)
		}
	}
	return append(promoted, generic...)
}

// notifyFailure reports a delivery problem without failing on notifier
// errors.
func (c *Chain) notifyFailure(ctx context.Context, title, message string) {
	if err := c.notifier.Notify(ctx, title, message); err != nil {
		slog.Warn("failure notification failed", "error", err)
	}
}
