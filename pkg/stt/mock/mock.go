// Package mock provides a scriptable stt.Transcriber for tests.
package mock

import (
	"context"
	"sync"

	"github.com/voxkey/voxkey/pkg/audio"
	"github.com/voxkey/voxkey/pkg/stt"
)

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber is a test double. If TranscribeFunc is set it is called for
// every request; otherwise FixedText is returned. Calls are recorded.
type Transcriber struct {
	TranscribeFunc func(ctx context.Context, pcm []byte, format audio.Format) (stt.Result, error)
	FixedText      string

	mu    sync.Mutex
	calls [][]byte
}

// Transcribe implements stt.Transcriber.
func (m *Transcriber) Transcribe(ctx context.Context, pcm []byte, format audio.Format) (stt.Result, error) {
	m.mu.Lock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	m.calls = append(m.calls, buf)
	m.mu.Unlock()

	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, pcm, format)
	}
	return stt.Result{Text: m.FixedText}, nil
}

// Calls returns a snapshot of every buffer passed to Transcribe.
func (m *Transcriber) Calls() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.calls))
	copy(out, m.calls)
	return out
}
