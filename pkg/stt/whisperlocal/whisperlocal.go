// Package whisperlocal provides an stt.Transcriber backed by a running
// whisper.cpp server binary (whisper-server), which exposes a REST API at
// POST /inference. Nothing leaves the machine; latency is dominated by model
// size rather than the network.
package whisperlocal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/voxkey/voxkey/pkg/audio"
	"github.com/voxkey/voxkey/pkg/stt"
)

const (
	inferencePath  = "/inference"
	defaultTimeout = 120 * time.Second
)

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithLanguage sets the language code forwarded to the server (e.g., "en").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithHTTPClient replaces the default HTTP client. The default carries a
// 120 s timeout since local inference on a large model can be slow on CPU.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) { t.httpClient = c }
}

// Transcriber implements stt.Transcriber against a local whisper.cpp server.
type Transcriber struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

// New creates a Transcriber that connects to the whisper.cpp server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Transcriber, error) {
	if serverURL == "" {
		return nil, errors.New("whisperlocal: serverURL must not be empty")
	}
	t := &Transcriber{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   "en",
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// inferenceResponse mirrors the whisper-server JSON response body.
type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte, format audio.Format) (stt.Result, error) {
	if len(pcm) == 0 {
		return stt.Result{}, stt.ErrEmptyAudio
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisperlocal: create form file: %w", err)
	}
	if _, err := part.Write(audio.EncodeWAV(pcm, format)); err != nil {
		return stt.Result{}, fmt.Errorf("whisperlocal: write audio: %w", err)
	}
	if err := w.WriteField("response_format", "json"); err != nil {
		return stt.Result{}, fmt.Errorf("whisperlocal: write field: %w", err)
	}
	if t.language != "" {
		if err := w.WriteField("language", t.language); err != nil {
			return stt.Result{}, fmt.Errorf("whisperlocal: write field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisperlocal: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverURL+inferencePath, &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisperlocal: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisperlocal: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return stt.Result{}, fmt.Errorf("whisperlocal: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return stt.Result{}, fmt.Errorf("whisperlocal: decode response: %w", err)
	}
	if parsed.Error != "" {
		return stt.Result{}, fmt.Errorf("whisperlocal: server error: %s", parsed.Error)
	}
	return stt.Result{Text: strings.TrimSpace(parsed.Text)}, nil
}
