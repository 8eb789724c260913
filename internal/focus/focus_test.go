package focus

import (
	"context"
	"errors"
	"testing"

	"github.com/voxkey/voxkey/internal/automation"
	automock "github.com/voxkey/voxkey/internal/automation/mock"
)

func TestFocusedPrimaryQuery(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   Info
	}{
		{"text area", "AXTextArea|Obsidian", Info{IsTextInput: true, Role: "AXTextArea", App: "Obsidian"}},
		{"text field", "AXTextField|Safari", Info{IsTextInput: true, Role: "AXTextField", App: "Safari"}},
		{"button", "AXButton|Finder", Info{IsTextInput: false, Role: "AXButton", App: "Finder"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &automock.Runner{Outputs: map[string]string{
				automation.ScriptFocusedElement: tt.output,
			}}
			d := NewDetector(runner)

			if got := d.Focused(context.Background()); got != tt.want {
				t.Errorf("Focused() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFocusedFallsBackToFastRole(t *testing.T) {
	runner := &automock.Runner{
		Errs: map[string]error{
			automation.ScriptFocusedElement: errors.New("accessibility timeout"),
		},
		Outputs: map[string]string{
			automation.ScriptFocusedRoleFast: "AXTextField",
			automation.ScriptFrontmostApp:    "Safari",
		},
	}
	d := NewDetector(runner)

	got := d.Focused(context.Background())
	if !got.IsTextInput {
		t.Error("IsTextInput = false, want true via fast-role fallback")
	}
	if got.App != "Safari" {
		t.Errorf("App = %q, want Safari", got.App)
	}
}

func TestFocusedFallsBackToAllowlist(t *testing.T) {
	runner := &automock.Runner{
		Outputs: map[string]string{
			automation.ScriptFocusedElement:  "unknown|Notes",
			automation.ScriptFocusedRoleFast: "unknown",
			automation.ScriptFrontmostApp:    "Notes",
		},
	}
	d := NewDetector(runner)

	got := d.Focused(context.Background())
	if !got.IsTextInput {
		t.Error("IsTextInput = false, want true via allowlist")
	}
	if got.App != "Notes" {
		t.Errorf("App = %q, want Notes", got.App)
	}
}

func TestFocusedAllQueriesFailIsNotTextInput(t *testing.T) {
	boom := errors.New("boom")
	runner := &automock.Runner{Errs: map[string]error{
		automation.ScriptFocusedElement:  boom,
		automation.ScriptFocusedRoleFast: boom,
		automation.ScriptFrontmostApp:    boom,
	}}
	d := NewDetector(runner)

	got := d.Focused(context.Background())
	if got.IsTextInput {
		t.Error("IsTextInput = true with every query failing; overlay routing expected")
	}
}

func TestSelectedText(t *testing.T) {
	runner := &automock.Runner{Outputs: map[string]string{
		automation.ScriptSelectedText: "some highlighted words",
	}}
	d := NewDetector(runner)

	if got := d.SelectedText(context.Background()); got != "some highlighted words" {
		t.Errorf("SelectedText() = %q", got)
	}
}
