package deliver

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/voxkey/voxkey/internal/automation"
)

// clipboardRestoreTimeout bounds the restore write after an attempt.
const clipboardRestoreTimeout = 2 * time.Second

// Strategy is one way of injecting text into the focused application.
type Strategy interface {
	// Name labels the strategy in logs and metrics.
	Name() string

	// Timeout bounds one Attempt.
	Timeout() time.Duration

	// AppHint returns the application name this strategy is specialised
	// for, or "" for a generic strategy. App-specific strategies are moved
	// ahead of generic ones when the frontmost application matches.
	AppHint() string

	// Attempt injects text. The clipboard must be restored on every path.
	Attempt(ctx context.Context, text string) error
}

// Compile-time assertions.
var (
	_ Strategy = (*FastPaste)(nil)
	_ Strategy = (*StagedPaste)(nil)
	_ Strategy = (*VerifiedPaste)(nil)
	_ Strategy = (*NotesPaste)(nil)
)

// FastPaste stages the payload on the clipboard and sends cmd-V immediately.
// Lowest latency, first choice for interactive delivery.
type FastPaste struct {
	Runner    automation.Runner
	Clipboard Clipboard
}

func (FastPaste) Name() string           { return "fast-paste" }
func (FastPaste) Timeout() time.Duration { return 2 * time.Second }
func (FastPaste) AppHint() string        { return "" }

// Attempt implements [Strategy].
func (s FastPaste) Attempt(ctx context.Context, text string) error {
	return withClipboard(ctx, s.Clipboard, text, func() error {
		_, err := s.Runner.Run(ctx, automation.ScriptPasteKeystroke, nil)
		return err
	})
}

// StagedPaste spools the payload through a temporary file before staging the
// clipboard. The file round-trip defeats pasteboard size truncation on very
// large payloads and leaves the text recoverable if the keystroke is eaten.
type StagedPaste struct {
	Runner    automation.Runner
	Clipboard Clipboard
}

func (StagedPaste) Name() string           { return "staged-paste" }
func (StagedPaste) Timeout() time.Duration { return 10 * time.Second }
func (StagedPaste) AppHint() string        { return "" }

// Attempt implements [Strategy].
func (s StagedPaste) Attempt(ctx context.Context, text string) error {
	f, err := os.CreateTemp("", "voxkey-payload-*.txt")
	if err != nil {
		return fmt.Errorf("stage temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	staged, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read temp file: %w", err)
	}

	return withClipboard(ctx, s.Clipboard, string(staged), func() error {
		_, err := s.Runner.Run(ctx, automation.ScriptPasteKeystroke, nil)
		return err
	})
}

// VerifiedPaste re-confirms the target application is still frontmost at the
// moment of injection, guarding against focus moving during the attempt.
type VerifiedPaste struct {
	Runner    automation.Runner
	Clipboard Clipboard
}

func (VerifiedPaste) Name() string           { return "verified-paste" }
func (VerifiedPaste) Timeout() time.Duration { return 5 * time.Second }
func (VerifiedPaste) AppHint() string        { return "" }

// Attempt implements [Strategy].
func (s VerifiedPaste) Attempt(ctx context.Context, text string) error {
	front, err := s.Runner.Run(ctx, automation.ScriptFrontmostApp, nil)
	if err != nil {
		return fmt.Errorf("resolve frontmost app: %w", err)
	}
	return withClipboard(ctx, s.Clipboard, text, func() error {
		_, err := s.Runner.Run(ctx, automation.ScriptPasteVerified, automation.Params{
			"app": front.Output,
		})
		return err
	})
}

// NotesPaste handles the Notes application, whose editor drops keystrokes
// that arrive before its activation animation finishes.
type NotesPaste struct {
	Runner    automation.Runner
	Clipboard Clipboard
}

func (NotesPaste) Name() string           { return "notes-paste" }
func (NotesPaste) Timeout() time.Duration { return 15 * time.Second }
func (NotesPaste) AppHint() string        { return "Notes" }

// Attempt implements [Strategy].
func (s NotesPaste) Attempt(ctx context.Context, text string) error {
	return withClipboard(ctx, s.Clipboard, text, func() error {
		_, err := s.Runner.Run(ctx, automation.ScriptNotesPaste, nil)
		return err
	})
}
