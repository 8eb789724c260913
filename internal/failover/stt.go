package failover

import (
	"context"

	"github.com/voxkey/voxkey/internal/observe"
	"github.com/voxkey/voxkey/pkg/audio"
	"github.com/voxkey/voxkey/pkg/stt"
)

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber adapts a [Chain] of speech-to-text backends into a single
// stt.Transcriber. The primary is tried first; on failure or a tripped
// breaker the next backend handles the request.
type Transcriber struct {
	chain *Chain[stt.Transcriber]
}

// NewTranscriber creates a failover Transcriber with primary as the first
// backend. Additional backends are registered via [Transcriber.Add].
func NewTranscriber(primaryName string, primary stt.Transcriber, cfg BreakerConfig) *Transcriber {
	chain := NewChain[stt.Transcriber](cfg)
	chain.Add(primaryName, primary)
	return &Transcriber{chain: chain}
}

// Add appends a fallback backend, tried after all earlier entries.
func (t *Transcriber) Add(name string, backend stt.Transcriber) {
	t.chain.Add(name, backend)
}

// Instrument wires the pipeline metrics recorder; backend calls are counted
// under the "stt" kind.
func (t *Transcriber) Instrument(m *observe.Metrics) {
	t.chain.Instrument(m, "stt")
}

// Transcribe implements stt.Transcriber by walking the backend chain.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte, format audio.Format) (stt.Result, error) {
	return DoResult(ctx, t.chain, func(ctx context.Context, backend stt.Transcriber) (stt.Result, error) {
		return backend.Transcribe(ctx, pcm, format)
	})
}
