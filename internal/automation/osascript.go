package automation

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Script IDs understood by the osascript runner.
const (
	// ScriptFrontmostApp returns the name of the frontmost application.
	ScriptFrontmostApp = "frontmost-app"

	// ScriptFocusedElement returns "<role>|<app>" for the focused UI element.
	ScriptFocusedElement = "focused-element"

	// ScriptFocusedRoleFast returns only the focused element's role. Cheaper
	// than ScriptFocusedElement because it skips the application lookup.
	ScriptFocusedRoleFast = "focused-role-fast"

	// ScriptSelectedText returns the currently selected text in the frontmost
	// application, or an empty string.
	ScriptSelectedText = "selected-text"

	// ScriptPasteKeystroke sends cmd-V to the frontmost application.
	ScriptPasteKeystroke = "paste-keystroke"

	// ScriptPasteVerified sends cmd-V only if the frontmost application still
	// matches the "app" param.
	ScriptPasteVerified = "paste-verified"

	// ScriptNotesPaste pastes into the Notes application with the extra
	// activation delay its editor needs.
	ScriptNotesPaste = "notes-paste"

	// ScriptPermissionProbe performs a trivial System Events query. It fails
	// when the automation permission has not been granted.
	ScriptPermissionProbe = "permission-probe"

	// ScriptNotify displays a user notification ("title", "message" params).
	ScriptNotify = "notify"

	// ScriptBeep plays the system alert sound.
	ScriptBeep = "beep"
)

// registration pairs AppleScript source with the ordered parameter names it
// reads from argv.
type registration struct {
	source string
	params []string
}

var registry = map[string]registration{
	ScriptFrontmostApp: {source: `
tell application "System Events"
	return name of first application process whose frontmost is true
end tell`},

	ScriptFocusedElement: {source: `
tell application "System Events"
	set frontApp to first application process whose frontmost is true
	try
		set focusedElem to value of attribute "AXFocusedUIElement" of frontApp
		return (role of focusedElem) & "|" & (name of frontApp)
	on error
		return "unknown|" & (name of frontApp)
	end try
end tell`},

	ScriptFocusedRoleFast: {source: `
tell application "System Events"
	try
		set focusedElem to value of attribute "AXFocusedUIElement" of (first application process whose frontmost is true)
		return role of focusedElem
	on error
		return "unknown"
	end try
end tell`},

	ScriptSelectedText: {source: `
tell application "System Events"
	try
		set focusedElem to value of attribute "AXFocusedUIElement" of (first application process whose frontmost is true)
		return value of attribute "AXSelectedText" of focusedElem
	on error
		return ""
	end try
end tell`},

	ScriptPasteKeystroke: {source: `
tell application "System Events"
	keystroke "v" using command down
end tell`},

	ScriptPasteVerified: {
		source: `
on run argv
	set targetApp to item 1 of argv
	tell application "System Events"
		set frontApp to name of first application process whose frontmost is true
		if frontApp is not targetApp then error "focus moved to " & frontApp
		keystroke "v" using command down
	end tell
end run`,
		params: []string{"app"},
	},

	ScriptNotesPaste: {source: `
tell application "Notes" to activate
delay 0.3
tell application "System Events"
	keystroke "v" using command down
end tell`},

	ScriptPermissionProbe: {source: `
tell application "System Events"
	return name of first application process whose frontmost is true
end tell`},

	ScriptNotify: {
		source: `
on run argv
	display notification (item 2 of argv) with title (item 1 of argv)
end run`,
		params: []string{"title", "message"},
	},

	ScriptBeep: {source: `beep`},
}

// Compile-time assertion that OsascriptRunner satisfies Runner.
var _ Runner = (*OsascriptRunner)(nil)

// OsascriptRunner executes registered scripts through /usr/bin/osascript.
type OsascriptRunner struct {
	// binary overrides the osascript path in tests.
	binary string
}

// NewOsascriptRunner creates a runner backed by the system osascript binary.
func NewOsascriptRunner() *OsascriptRunner {
	return &OsascriptRunner{binary: "osascript"}
}

// Run implements [Runner].
func (r *OsascriptRunner) Run(ctx context.Context, scriptID string, params Params) (Result, error) {
	reg, ok := registry[scriptID]
	if !ok {
		return Result{}, fmt.Errorf("automation: %w: %q", ErrUnknownScript, scriptID)
	}
	argv, err := orderParams(scriptID, reg.params, params)
	if err != nil {
		return Result{}, err
	}

	args := append([]string{"-e", reg.source}, argv...)
	cmd := exec.CommandContext(ctx, r.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("automation: script %q: %w", scriptID, ctx.Err())
		}
		return Result{}, fmt.Errorf("automation: script %q: %w: %s", scriptID, err, strings.TrimSpace(stderr.String()))
	}
	return Result{Output: strings.TrimSpace(stdout.String())}, nil
}
