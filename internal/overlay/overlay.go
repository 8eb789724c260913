// Package overlay is the on-screen result surface used when assistant output
// cannot be pasted because the user's focus is not in a text input.
package overlay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/voxkey/voxkey/internal/notify"
)

// Display is the result surface contract.
type Display interface {
	// Show presents text, optionally in a loading state with a progress
	// message.
	Show(ctx context.Context, text string, loading bool, loadingMessage string) error

	// SendResult presents a finished assistant response. conversational
	// marks responses that continue an ongoing session.
	SendResult(ctx context.Context, text string, conversational bool) error

	// Hide dismisses the surface.
	Hide(ctx context.Context) error
}

// Compile-time assertions.
var (
	_ Display = (*NotificationDisplay)(nil)
	_ Display = (*Mock)(nil)
)

// NotificationDisplay renders overlay content as OS notifications. It is the
// surface used when no dedicated overlay UI process is attached.
type NotificationDisplay struct {
	notifier notify.Notifier
}

// NewNotificationDisplay creates a Display backed by notifier.
func NewNotificationDisplay(notifier notify.Notifier) *NotificationDisplay {
	return &NotificationDisplay{notifier: notifier}
}

// Show implements [Display]. Loading states are logged rather than shown;
// a notification per progress tick would be noise.
func (d *NotificationDisplay) Show(ctx context.Context, text string, loading bool, loadingMessage string) error {
	if loading {
		slog.Debug("overlay loading", "message", loadingMessage)
		return nil
	}
	return d.notifier.Notify(ctx, "Assistant", text)
}

// SendResult implements [Display].
func (d *NotificationDisplay) SendResult(ctx context.Context, text string, _ bool) error {
	return d.notifier.Notify(ctx, "Assistant", text)
}

// Hide implements [Display]. Notifications dismiss themselves.
func (NotificationDisplay) Hide(context.Context) error { return nil }

// Mock records overlay interactions for tests.
type Mock struct {
	mu      sync.Mutex
	results []string
	shown   []string
	hidden  int
}

// Show implements [Display].
func (m *Mock) Show(_ context.Context, text string, loading bool, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !loading {
		m.shown = append(m.shown, text)
	}
	return nil
}

// SendResult implements [Display].
func (m *Mock) SendResult(_ context.Context, text string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, text)
	return nil
}

// Hide implements [Display].
func (m *Mock) Hide(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hidden++
	return nil
}

// Results returns every text passed to SendResult.
func (m *Mock) Results() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.results))
	copy(out, m.results)
	return out
}
