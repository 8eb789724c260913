// Package notify delivers user-facing notifications and audio cues.
package notify

import (
	"context"
	"log/slog"

	"github.com/voxkey/voxkey/internal/automation"
)

// Notifier is the user-facing failure and status channel.
type Notifier interface {
	// Notify shows a notification with the given title and message.
	Notify(ctx context.Context, title, message string) error

	// Cue plays a short audible signal, used for recording start/stop
	// feedback when enabled.
	Cue(ctx context.Context) error
}

// Compile-time assertions.
var (
	_ Notifier = (*OSNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)

// OSNotifier shows native notifications through the automation boundary.
type OSNotifier struct {
	runner automation.Runner
}

// NewOSNotifier creates an OSNotifier backed by runner.
func NewOSNotifier(runner automation.Runner) *OSNotifier {
	return &OSNotifier{runner: runner}
}

// Notify implements [Notifier].
func (n *OSNotifier) Notify(ctx context.Context, title, message string) error {
	_, err := n.runner.Run(ctx, automation.ScriptNotify, automation.Params{
		"title":   title,
		"message": message,
	})
	return err
}

// Cue implements [Notifier].
func (n *OSNotifier) Cue(ctx context.Context) error {
	_, err := n.runner.Run(ctx, automation.ScriptBeep, nil)
	return err
}

// LogNotifier writes notifications to the log. Used headless and as the
// fallback when no automation permission is available.
type LogNotifier struct{}

// Notify implements [Notifier].
func (LogNotifier) Notify(_ context.Context, title, message string) error {
	slog.Info("notification", "title", title, "message", message)
	return nil
}

// Cue implements [Notifier].
func (LogNotifier) Cue(context.Context) error { return nil }
