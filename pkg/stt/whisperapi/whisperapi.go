// Package whisperapi provides an stt.Transcriber backed by the OpenAI audio
// transcription REST endpoint (or any compatible server).
//
// Audio is wrapped in a WAV container and uploaded as a multipart form; the
// endpoint returns a JSON body with the transcribed text.
package whisperapi

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
	defaultEndpoint = "https://api.openai.com/v1/audio/transcriptions"
	defaultModel    = "whisper-1"
	defaultTimeout  = 60 * time.Second
)

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithEndpoint overrides the transcription endpoint URL. Use this to point at
// an OpenAI-compatible proxy or self-hosted server.
func WithEndpoint(url string) Option {
	return func(t *Transcriber) { t.endpoint = url }
}

// WithModel sets the model identifier sent with each request.
// Defaults to "whisper-1".
func WithModel(model string) Option {
	return func(t *Transcriber) { t.model = model }
}

// WithLanguage sets the ISO-639-1 language hint (e.g., "en"). An empty value
// lets the service auto-detect.
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithHTTPClient replaces the default HTTP client (60 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) { t.httpClient = c }
}

// Transcriber implements stt.Transcriber against the Whisper REST API.
type Transcriber struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Transcriber. apiKey must be non-empty unless WithEndpoint
// points at a server that does not authenticate.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	t := &Transcriber{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	if t.apiKey == "" && t.endpoint == defaultEndpoint {
		return nil, errors.New("whisperapi: apiKey must not be empty")
	}
	return t, nil
}

// transcriptionResponse is the JSON body returned by the endpoint.
type transcriptionResponse struct {
	Text string `json:"text"`
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
		return stt.Result{}, fmt.Errorf("whisperapi: create form file: %w", err)
	}
	if _, err := part.Write(audio.EncodeWAV(pcm, format)); err != nil {
		return stt.Result{}, fmt.Errorf("whisperapi: write audio: %w", err)
	}
	if err := w.WriteField("model", t.model); err != nil {
		return stt.Result{}, fmt.Errorf("whisperapi: write model field: %w", err)
	}
	// The API rejects "auto"; an absent field means auto-detect.
	if t.language != "" && t.language != "auto" {
		if err := w.WriteField("language", t.language); err != nil {
			return stt.Result{}, fmt.Errorf("whisperapi: write language field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisperapi: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisperapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisperapi: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return stt.Result{}, fmt.Errorf("whisperapi: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return stt.Result{}, fmt.Errorf("whisperapi: decode response: %w", err)
	}
	return stt.Result{Text: strings.TrimSpace(parsed.Text)}, nil
}
