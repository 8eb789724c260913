// Package config provides the configuration schema, loader, and provider
// registry for voxkey.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps [time.Duration] so YAML values like "30s" or "5m" decode
// directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for voxkey.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Hotkey       HotkeyConfig       `yaml:"hotkey"`
	Wake         WakeConfig         `yaml:"wake"`
	Audio        AudioConfig        `yaml:"audio"`
	STT          STTConfig          `yaml:"stt"`
	LLM          ProviderEntry      `yaml:"llm"`
	Conversation ConversationConfig `yaml:"conversation"`
	Delivery     DeliveryConfig     `yaml:"delivery"`
	History      HistoryConfig      `yaml:"history"`
	Debug        DebugConfig        `yaml:"debug"`
}

// HotkeyConfig selects the push-to-talk key binding.
type HotkeyConfig struct {
	// Combo is the modifier+key combination held to record
	// (e.g., "ctrl+shift+space").
	Combo string `yaml:"combo"`
}

// WakeConfig controls how transcripts are recognised as assistant commands.
type WakeConfig struct {
	// Words lists the wake words that address the assistant. Matching is
	// case-insensitive and tolerant of transcription misspellings.
	Words []string `yaml:"words"`

	// PhoneticThreshold is the string-similarity score in [0.5, 1.0] above
	// which a near-miss counts as the wake word. Zero means the default.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`

	// ForceAssistant routes every transcript to the assistant regardless of
	// wording. Off by default.
	ForceAssistant bool `yaml:"force_assistant"`
}

// AudioConfig holds capture settings.
type AudioConfig struct {
	// InputDevice is the capture device passed to ffmpeg
	// (e.g., ":0" for the default avfoundation microphone).
	InputDevice string `yaml:"input_device"`

	// FFmpegPath overrides the ffmpeg binary location. Empty means $PATH.
	FFmpegPath string `yaml:"ffmpeg_path"`

	// Cue enables the audible start/stop recording signal.
	Cue bool `yaml:"cue"`

	// MinDuration is the shortest recording worth transcribing; anything
	// shorter is treated as an accidental key tap. Zero means the default.
	MinDuration Duration `yaml:"min_duration"`
}

// STTConfig selects the transcription backends and their failover policy.
type STTConfig struct {
	// Primary is the preferred transcription backend.
	Primary ProviderEntry `yaml:"primary"`

	// Fallbacks are tried in order when the primary is failing.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Failover tunes the circuit breaker guarding each backend.
	Failover FailoverConfig `yaml:"failover"`

	// Chunking bounds how much audio is sent per transcription request.
	Chunking ChunkingConfig `yaml:"chunking"`

	// Timeout bounds each transcription request. Zero means the default.
	Timeout Duration `yaml:"timeout"`
}

// FailoverConfig tunes the per-backend circuit breaker.
type FailoverConfig struct {
	// Threshold is the consecutive-failure count that trips a backend.
	// Zero means the default.
	Threshold int `yaml:"threshold"`

	// Cooldown is how long a tripped backend is skipped before it is
	// probed again. Zero means the default.
	Cooldown Duration `yaml:"cooldown"`
}

// ChunkingConfig bounds per-request audio size.
type ChunkingConfig struct {
	// MaxChunkMB caps a single request's audio payload in megabytes.
	MaxChunkMB int `yaml:"max_chunk_mb"`

	// MaxChunkDuration caps a single request's audio length.
	MaxChunkDuration Duration `yaml:"max_chunk_duration"`

	// Overlap is the audio shared between consecutive chunks so words cut
	// at a boundary appear whole in at least one chunk.
	Overlap Duration `yaml:"overlap"`
}

// ProviderEntry is the common configuration block shared by STT and LLM
// backends. The Name field selects the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "deepgram", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "nova-2", "ggml-base.en.bin").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// ConversationConfig tunes the assistant's conversation session.
type ConversationConfig struct {
	// IdleExpiry is the inactivity window after which follow-up context is
	// discarded. Zero means the default.
	IdleExpiry Duration `yaml:"idle_expiry"`

	// MaxHistoryTokens bounds the conversation history sent to the model,
	// in estimated tokens. Zero means the default.
	MaxHistoryTokens int `yaml:"max_history_tokens"`
}

// DeliveryConfig controls how final text reaches the focused application.
type DeliveryConfig struct {
	// Allowlist names applications trusted to receive text even when the
	// focused UI element cannot be identified.
	Allowlist []string `yaml:"allowlist"`
}

// HistoryConfig controls the local transcription log.
type HistoryConfig struct {
	// Enabled turns local history on. Off means nothing is persisted.
	Enabled bool `yaml:"enabled"`

	// Dir is the on-disk store location. Empty means a directory under the
	// user config dir.
	Dir string `yaml:"dir"`

	// Retention is how long entries are kept. Zero means the default.
	Retention Duration `yaml:"retention"`
}

// DebugConfig holds logging and the local debug endpoint.
type DebugConfig struct {
	// ListenAddr is the address for the metrics and health endpoint
	// (e.g., "127.0.0.1:9090"). Empty disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}
