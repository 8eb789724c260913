package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/voxkey/voxkey/internal/hotkey"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "whisper-api", "whisper-local", "whisper-native"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// ${VAR} references are expanded from the environment before decoding, so
// API keys can live outside the file. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Hotkey
	if cfg.Hotkey.Combo != "" {
		if _, _, err := hotkey.Parse(cfg.Hotkey.Combo); err != nil {
			errs = append(errs, fmt.Errorf("hotkey.combo: %w", err))
		}
	}

	// Wake
	if t := cfg.Wake.PhoneticThreshold; t != 0 && (t < 0.5 || t > 1.0) {
		errs = append(errs, fmt.Errorf("wake.phonetic_threshold %.2f is out of range [0.5, 1.0]", t))
	}
	seen := make(map[string]int, len(cfg.Wake.Words))
	for i, w := range cfg.Wake.Words {
		if w == "" {
			errs = append(errs, fmt.Errorf("wake.words[%d] is empty", i))
			continue
		}
		if prev, ok := seen[w]; ok {
			errs = append(errs, fmt.Errorf("wake.words[%d] %q is a duplicate of wake.words[%d]", i, w, prev))
		}
		seen[w] = i
	}

	// Audio
	if cfg.Audio.MinDuration < 0 {
		errs = append(errs, fmt.Errorf("audio.min_duration must not be negative"))
	}

	// STT
	if cfg.STT.Primary.Name == "" {
		errs = append(errs, fmt.Errorf("stt.primary.name is required"))
	}
	validateProviderName("stt", cfg.STT.Primary.Name)
	for i, fb := range cfg.STT.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("stt.fallbacks[%d].name is required", i))
		}
		validateProviderName("stt", fb.Name)
	}
	if cfg.STT.Failover.Threshold < 0 {
		errs = append(errs, fmt.Errorf("stt.failover.threshold must not be negative"))
	}
	if cfg.STT.Chunking.MaxChunkMB < 0 {
		errs = append(errs, fmt.Errorf("stt.chunking.max_chunk_mb must not be negative"))
	}
	if ov, max := cfg.STT.Chunking.Overlap, cfg.STT.Chunking.MaxChunkDuration; ov != 0 && max != 0 && ov >= max {
		errs = append(errs, fmt.Errorf("stt.chunking.overlap %s must be shorter than max_chunk_duration %s", ov.Std(), max.Std()))
	}

	// LLM
	validateProviderName("llm", cfg.LLM.Name)
	if cfg.LLM.Name == "" {
		slog.Warn("llm is not configured; assistant commands will fall back to plain dictation")
	}

	// Conversation
	if cfg.Conversation.MaxHistoryTokens < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_history_tokens must not be negative"))
	}

	// Debug
	if cfg.Debug.LogLevel != "" && !cfg.Debug.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("debug.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Debug.LogLevel))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
