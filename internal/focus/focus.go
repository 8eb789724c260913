// Package focus determines whether the user's OS focus is inside a text
// input, which decides whether assistant output is pasted or shown in the
// overlay.
//
// The primary accessibility query is the most accurate but can error or come
// back "unknown" on applications with poor accessibility support. Two
// heuristic fallbacks cover that case: a cheaper role-only query, then an
// active-application allowlist of known text-centric apps.
package focus

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/voxkey/voxkey/internal/automation"
)

// Info describes the focused UI element.
type Info struct {
	// IsTextInput reports whether the element accepts typed text.
	IsTextInput bool

	// Role is the accessibility role, e.g. "AXTextArea", or "unknown".
	Role string

	// App is the frontmost application name.
	App string
}

// textInputRoles are the accessibility roles treated as text inputs.
var textInputRoles = map[string]struct{}{
	"AXTextField":   {},
	"AXTextArea":    {},
	"AXComboBox":    {},
	"AXSearchField": {},
	"AXWebArea":     {},
}

// DefaultAllowlist lists applications assumed to hold a text input whenever
// they are frontmost, used only when the accessibility queries fail.
var DefaultAllowlist = []string{
	"Notes",
	"TextEdit",
	"Pages",
	"Obsidian",
	"Slack",
	"Mail",
}

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithAllowlist replaces [DefaultAllowlist].
func WithAllowlist(apps []string) Option {
	return func(d *Detector) { d.allowlist = apps }
}

// Detector resolves focus information through the automation boundary.
type Detector struct {
	runner automation.Runner

	mu        sync.RWMutex
	allowlist []string
}

// NewDetector creates a Detector using runner for OS queries.
func NewDetector(runner automation.Runner, opts ...Option) *Detector {
	d := &Detector{runner: runner, allowlist: DefaultAllowlist}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SetAllowlist replaces the fallback allowlist. Used for config hot-reload.
func (d *Detector) SetAllowlist(apps []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(apps) == 0 {
		apps = DefaultAllowlist
	}
	d.allowlist = apps
}

// Focused returns the best available focus information. It never returns an
// error: when every query fails the zero Info (not a text input, role
// "unknown") is returned, which routes assistant output to the overlay
// rather than pasting into an unverified target.
func (d *Detector) Focused(ctx context.Context) Info {
	if info, ok := d.primary(ctx); ok {
		return info
	}
	if isText, ok := d.fastRole(ctx); ok {
		return Info{IsTextInput: isText, Role: "unknown", App: d.FrontmostApp(ctx)}
	}
	return d.allowlistFallback(ctx)
}

// primary runs the full accessibility query. ok is false when the query
// errors or reports an unknown role.
func (d *Detector) primary(ctx context.Context) (Info, bool) {
	res, err := d.runner.Run(ctx, automation.ScriptFocusedElement, nil)
	if err != nil {
		slog.Debug("focused-element query failed", "error", err)
		return Info{}, false
	}
	role, app, found := strings.Cut(res.Output, "|")
	if !found || role == "" || role == "unknown" {
		return Info{}, false
	}
	_, isText := textInputRoles[role]
	return Info{IsTextInput: isText, Role: role, App: app}, true
}

// fastRole runs the cheap role-only query.
func (d *Detector) fastRole(ctx context.Context) (isText, ok bool) {
	res, err := d.runner.Run(ctx, automation.ScriptFocusedRoleFast, nil)
	if err != nil || res.Output == "" || res.Output == "unknown" {
		return false, false
	}
	_, isText = textInputRoles[res.Output]
	return isText, true
}

// allowlistFallback treats a frontmost allowlisted application as a text
// input.
func (d *Detector) allowlistFallback(ctx context.Context) Info {
	app := d.FrontmostApp(ctx)
	info := Info{Role: "unknown", App: app}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, allowed := range d.allowlist {
		if strings.EqualFold(app, allowed) {
			info.IsTextInput = true
			break
		}
	}
	return info
}

// FrontmostApp returns the frontmost application name, or "".
func (d *Detector) FrontmostApp(ctx context.Context) string {
	res, err := d.runner.Run(ctx, automation.ScriptFrontmostApp, nil)
	if err != nil {
		slog.Debug("frontmost-app query failed", "error", err)
		return ""
	}
	return res.Output
}

// SelectedText returns the currently selected text in the frontmost
// application, or "" when nothing is selected or the query fails.
func (d *Detector) SelectedText(ctx context.Context) string {
	res, err := d.runner.Run(ctx, automation.ScriptSelectedText, nil)
	if err != nil {
		slog.Debug("selected-text query failed", "error", err)
		return ""
	}
	return res.Output
}
