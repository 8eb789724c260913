// Package route turns a classified assistant command into either text to
// deliver or content for the overlay.
//
// The edit path sends a single strict-format instruction over the selection
// and treats the raw response as the sole delivery payload. The general path
// asks the agent, then routes the answer by focus: into the focused text
// input when there is one, otherwise onto the overlay with the delivery text
// suppressed so nothing is pasted into the wrong place.
package route

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voxkey/voxkey/internal/classify"
	"github.com/voxkey/voxkey/internal/focus"
	"github.com/voxkey/voxkey/internal/overlay"
	"github.com/voxkey/voxkey/pkg/llm"
)

// Assistant is the language-model collaborator contract.
type Assistant interface {
	ProcessQuery(ctx context.Context, query string, history []llm.Message, userContext string) (string, error)
	EditText(ctx context.Context, instruction, selection string) (string, error)
}

// FocusDetector resolves where the user's OS focus is.
type FocusDetector interface {
	Focused(ctx context.Context) focus.Info
}

// Output is the router's verdict for one command.
type Output struct {
	// Text is the delivery payload. Empty when the response went to the
	// overlay (or was suppressed).
	Text string

	// Response is the assistant's answer regardless of where it was routed.
	Response string

	// ViaOverlay reports that the response was shown on the overlay.
	ViaOverlay bool
}

// Router routes assistant command output.
type Router struct {
	assistant Assistant
	detector  FocusDetector
	display   overlay.Display

	// dictating reports whether the orchestrator has meanwhile entered a
	// plain-dictation cycle. Command output must never pop an overlay while
	// the user is mid-dictation elsewhere.
	dictating func() bool

	// recent supplies recent transcripts as extra agent context. May be nil.
	recent func(ctx context.Context) []string
}

// NewRouter creates a Router. dictating may be nil when no orchestrator
// state is available (tests, one-shot tools).
func NewRouter(assistant Assistant, detector FocusDetector, display overlay.Display, dictating func() bool) *Router {
	return &Router{
		assistant: assistant,
		detector:  detector,
		display:   display,
		dictating: dictating,
	}
}

// Route executes one classified command. selection is the current foreign
// text selection; history carries the active conversation. Errors mean the
// agent call failed and the caller should fall back to delivering the raw
// transcript.
func (r *Router) Route(ctx context.Context, decision classify.Decision, selection string, history []llm.Message) (Output, error) {
	if decision.Kind == classify.KindEditSelection {
		edited, err := r.assistant.EditText(ctx, decision.Query, selection)
		if err != nil {
			return Output{}, fmt.Errorf("route: edit selection: %w", err)
		}
		// The edit result replaces the selection; it is always delivered.
		return Output{Text: edited, Response: edited}, nil
	}

	// A bare wake word carries no query. Prompt instead of sending the
	// agent an empty question.
	if strings.TrimSpace(decision.Query) == "" {
		if err := r.display.SendResult(ctx, "Yes? Hold the key and ask.", false); err != nil {
			slog.Warn("overlay display failed", "error", err)
		}
		return Output{ViaOverlay: true}, nil
	}

	answer, err := r.assistant.ProcessQuery(ctx, decision.Query, history, r.userContext(ctx, selection))
	if err != nil {
		return Output{}, fmt.Errorf("route: process query: %w", err)
	}

	if r.detector.Focused(ctx).IsTextInput {
		return Output{Text: answer, Response: answer}, nil
	}

	if r.dictating != nil && r.dictating() {
		slog.Debug("overlay suppressed, dictation cycle active")
		return Output{Response: answer}, nil
	}
	if err := r.display.SendResult(ctx, answer, len(history) > 0); err != nil {
		slog.Warn("overlay display failed", "error", err)
	}
	return Output{Response: answer, ViaOverlay: true}, nil
}

// SetRecentContext wires a supplier of recent transcripts, included as extra
// context on the agent path.
func (r *Router) SetRecentContext(fn func(ctx context.Context) []string) {
	r.recent = fn
}

// userContext assembles the free-form context block for the agent.
func (r *Router) userContext(ctx context.Context, selection string) string {
	var sb strings.Builder
	if selection != "" {
		sb.WriteString("Currently selected text:\n")
		sb.WriteString(selection)
	}
	if r.recent != nil {
		if entries := r.recent(ctx); len(entries) > 0 {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString("Recent dictations:\n")
			for _, e := range entries {
				sb.WriteString("- ")
				sb.WriteString(e)
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}
