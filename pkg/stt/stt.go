// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A backend wraps a transcription service, cloud (OpenAI Whisper API,
// Deepgram) or local (a whisper.cpp server or the CGO bindings), behind a
// single batch operation: hand over a complete PCM buffer, get text back.
// The push-to-talk pipeline records an entire utterance before transcribing,
// so a batch contract fits every backend, including streaming ones, which
// simply flush the whole buffer and collect the final results.
//
// Implementations must be safe for concurrent use: the pipeline transcribes
// the chunks of one recording concurrently.
package stt

import (
	"context"
	"errors"

	"github.com/voxkey/voxkey/pkg/audio"
)

// ErrEmptyAudio is returned when a backend is handed a zero-length buffer.
var ErrEmptyAudio = errors.New("stt: empty audio buffer")

// Result is the outcome of transcribing one audio buffer.
type Result struct {
	// Text is the transcribed speech, whitespace-trimmed. May be empty when
	// the buffer contained no recognisable speech.
	Text string

	// Confidence is the backend's overall confidence (0.0–1.0), or zero when
	// the backend does not report one.
	Confidence float64
}

// Transcriber is the abstraction over any speech-to-text backend.
//
// Transcribe converts one complete buffer of int16 little-endian PCM in the
// given format into text. Implementations must honour ctx cancellation and
// deadlines; no call may block indefinitely.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, format audio.Format) (Result, error)
}
