package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Fields that can be
// applied without restarting the pipeline are tracked individually; anything
// else sets RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WakeChanged covers wake words, the phonetic threshold, and the
	// force-assistant toggle. The classifier is rebuilt on the fly.
	WakeChanged bool

	// AudioCueChanged toggles the start/stop sound.
	AudioCueChanged bool

	// AllowlistChanged swaps the trusted-application list used by focus
	// detection.
	AllowlistChanged bool

	// HotkeyChanged requires re-registering the key binding.
	HotkeyChanged bool
	NewCombo      string

	// RestartRequired is set for changes the running pipeline cannot absorb,
	// such as swapping STT or LLM backends.
	RestartRequired bool
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.WakeChanged || d.AudioCueChanged ||
		d.AllowlistChanged || d.HotkeyChanged || d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Debug.LogLevel != new.Debug.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Debug.LogLevel
	}

	if !slices.Equal(old.Wake.Words, new.Wake.Words) ||
		old.Wake.PhoneticThreshold != new.Wake.PhoneticThreshold ||
		old.Wake.ForceAssistant != new.Wake.ForceAssistant {
		d.WakeChanged = true
	}

	if old.Audio.Cue != new.Audio.Cue {
		d.AudioCueChanged = true
	}

	if !slices.Equal(old.Delivery.Allowlist, new.Delivery.Allowlist) {
		d.AllowlistChanged = true
	}

	if old.Hotkey.Combo != new.Hotkey.Combo {
		d.HotkeyChanged = true
		d.NewCombo = new.Hotkey.Combo
	}

	if providersChanged(old, new) {
		d.RestartRequired = true
	}

	return d
}

// providersChanged reports whether any backend selection or connection
// setting differs between the two configs.
func providersChanged(old, new *Config) bool {
	if !entryEqual(old.STT.Primary, new.STT.Primary) {
		return true
	}
	if len(old.STT.Fallbacks) != len(new.STT.Fallbacks) {
		return true
	}
	for i := range old.STT.Fallbacks {
		if !entryEqual(old.STT.Fallbacks[i], new.STT.Fallbacks[i]) {
			return true
		}
	}
	if old.STT.Failover != new.STT.Failover || old.STT.Chunking != new.STT.Chunking {
		return true
	}
	if !entryEqual(old.LLM, new.LLM) {
		return true
	}
	if old.Audio.InputDevice != new.Audio.InputDevice || old.Audio.FFmpegPath != new.Audio.FFmpegPath {
		return true
	}
	if old.History != new.History {
		return true
	}
	return false
}

// entryEqual compares provider entries including the free-form Options map,
// whose values may be nested.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return reflect.DeepEqual(a.Options, b.Options)
}
