// Package deepgram provides an stt.Transcriber backed by the Deepgram
// streaming WebSocket API.
//
// Although the wire protocol is streaming, the Transcriber presents the batch
// contract the pipeline expects: it opens a session, pushes the whole PCM
// buffer, sends CloseStream, and concatenates the final results the server
// emits before closing.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/voxkey/voxkey/pkg/audio"
	"github.com/voxkey/voxkey/pkg/stt"
)

const (
	endpoint     = "wss://api.deepgram.com/v1/listen"
	defaultModel = "nova-3"
	defaultLang  = "en"

	// writeChunkBytes is the size of each binary frame sent to the server.
	// 8 KiB is a quarter second of 16 kHz mono audio.
	writeChunkBytes = 8192
)

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithModel sets the Deepgram model (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(t *Transcriber) { t.model = model }
}

// WithLanguage sets the BCP-47 language code (e.g., "en", "de-DE").
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// Transcriber implements stt.Transcriber against the Deepgram API.
type Transcriber struct {
	apiKey   string
	model    string
	language string
}

// New creates a Transcriber. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	t := &Transcriber{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLang,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// response is the JSON structure Deepgram sends for a Results event.
type response struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// closeStream is the control message that tells Deepgram to flush and finish.
var closeStream = []byte(`{"type":"CloseStream"}`)

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte, format audio.Format) (stt.Result, error) {
	if len(pcm) == 0 {
		return stt.Result{}, stt.ErrEmptyAudio
	}

	wsURL, err := t.buildURL(format)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+t.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Push the whole buffer, then ask the server to flush.
	for off := 0; off < len(pcm); off += writeChunkBytes {
		end := min(off+writeChunkBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return stt.Result{}, fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, closeStream); err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: close stream: %w", err)
	}

	// Collect finals until the server closes the connection.
	var (
		parts      []string
		confidence float64
		nFinals    int
	)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return stt.Result{}, fmt.Errorf("deepgram: read: %w", ctx.Err())
			}
			// The server closes the socket after the final Results event.
			break
		}

		var msg response
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // non-Results control frame
		}
		if msg.Type == "Metadata" {
			// Metadata is the last event of a stream.
			break
		}
		if !msg.IsFinal || len(msg.Channel.Alternatives) == 0 {
			continue
		}
		alt := msg.Channel.Alternatives[0]
		if text := strings.TrimSpace(alt.Transcript); text != "" {
			parts = append(parts, text)
			confidence += alt.Confidence
			nFinals++
		}
	}

	res := stt.Result{Text: strings.Join(parts, " ")}
	if nFinals > 0 {
		res.Confidence = confidence / float64(nFinals)
	}
	return res, nil
}

// buildURL constructs the streaming endpoint URL for the given audio format.
func (t *Transcriber) buildURL(format audio.Format) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", t.model)
	q.Set("language", t.language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(format.SampleRate))
	q.Set("channels", strconv.Itoa(format.Channels))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
