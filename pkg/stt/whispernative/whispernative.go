// Package whispernative provides an stt.Transcriber backed by the whisper.cpp
// CGO bindings, eliminating the server round-trip entirely. The whisper.cpp
// static library (libwhisper.a) and headers (whisper.h) must be available at
// link time via LIBRARY_PATH and C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all calls; each
// Transcribe creates its own whisper context, so concurrent chunk
// transcription is safe.
package whispernative

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voxkey/voxkey/pkg/audio"
	"github.com/voxkey/voxkey/pkg/stt"
)

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithLanguage sets the language code passed to whisper.cpp (e.g., "en").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// Transcriber implements stt.Transcriber using in-process whisper.cpp
// inference.
type Transcriber struct {
	language string

	mu     sync.Mutex
	model  whisperlib.Model
	closed bool
}

// New loads the whisper.cpp model from modelPath. The caller must call Close
// when the Transcriber is no longer needed.
func New(modelPath string, opts ...Option) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("whispernative: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whispernative: load model %q: %w", modelPath, err)
	}
	t := &Transcriber{model: model, language: "en"}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close releases the whisper model. Transcribe calls made after Close fail.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.model.Close()
}

// Transcribe implements stt.Transcriber. The whisper bindings have no
// cancellation hook mid-inference, so ctx is only checked up front.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte, format audio.Format) (stt.Result, error) {
	if len(pcm) == 0 {
		return stt.Result{}, stt.ErrEmptyAudio
	}
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whispernative: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return stt.Result{}, errors.New("whispernative: transcriber is closed")
	}
	model := t.model
	t.mu.Unlock()

	// whisper.cpp consumes normalized float32 mono at 16 kHz.
	samples := monoSamples(pcm, format)

	// Contexts are not thread-safe; the shared model is.
	wctx, err := model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whispernative: create context: %w", err)
	}
	if err := wctx.SetLanguage(t.language); err != nil {
		return stt.Result{}, fmt.Errorf("whispernative: set language %q: %w", t.language, err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whispernative: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whispernative: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return stt.Result{Text: strings.Join(parts, " ")}, nil
}

// monoSamples converts captured PCM to the normalized float32 mono 16 kHz
// layout whisper.cpp consumes. Stereo input is downmixed before any
// resampling; the resampler expects consecutive mono samples.
func monoSamples(pcm []byte, format audio.Format) []float32 {
	if format.SampleRate == 16000 {
		return audio.ToFloat32Mono(pcm, format.Channels)
	}
	mono := pcm
	if format.Channels == 2 {
		mono = audio.StereoToMono(pcm)
	}
	return audio.ToFloat32Mono(audio.ResampleMono16(mono, format.SampleRate, 16000), 1)
}
