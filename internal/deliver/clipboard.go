package deliver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Clipboard is scoped access to the system pasteboard.
type Clipboard interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, text string) error
}

// Compile-time assertions.
var (
	_ Clipboard = (*PasteboardClipboard)(nil)
	_ Clipboard = (*MemClipboard)(nil)
)

// PasteboardClipboard shells out to pbpaste/pbcopy.
type PasteboardClipboard struct{}

// Read implements [Clipboard].
func (PasteboardClipboard) Read(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "pbpaste").Output()
	if err != nil {
		return "", fmt.Errorf("deliver: pbpaste: %w", err)
	}
	return string(out), nil
}

// Write implements [Clipboard].
func (PasteboardClipboard) Write(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, "pbcopy")
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("deliver: pbcopy: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// MemClipboard is an in-memory clipboard for tests.
type MemClipboard struct {
	mu      sync.Mutex
	content string
}

// Read implements [Clipboard].
func (m *MemClipboard) Read(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.content, nil
}

// Write implements [Clipboard].
func (m *MemClipboard) Write(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = text
	return nil
}

// withClipboard writes text to the clipboard, runs fn, and restores the
// prior contents on every path. Restoration uses a fresh context so a
// deadline that killed fn cannot also leak the payload onto the clipboard.
func withClipboard(ctx context.Context, cb Clipboard, text string, fn func() error) error {
	prior, err := cb.Read(ctx)
	if err != nil {
		return fmt.Errorf("capture clipboard: %w", err)
	}
	if err := cb.Write(ctx, text); err != nil {
		return fmt.Errorf("stage clipboard: %w", err)
	}
	defer func() {
		restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clipboardRestoreTimeout)
		defer cancel()
		_ = cb.Write(restoreCtx, prior)
	}()

	return fn()
}
