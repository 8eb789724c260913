package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const watcherYAML = `
stt:
  primary:
    name: deepgram
debug:
  log_level: info
`

const watcherYAMLUpdated = `
stt:
  primary:
    name: deepgram
debug:
  log_level: debug
`

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	// Force a distinct mtime; some filesystems have coarse resolution.
	bump := time.Now().Add(time.Second)
	if err := os.Chtimes(path, bump, bump); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcherInitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxkey.yaml")
	writeConfigFile(t, path, watcherYAML)

	w, err := NewWatcher(path, nil, WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Debug.LogLevel; got != LogInfo {
		t.Errorf("Current().Debug.LogLevel = %q, want info", got)
	}
}

func TestWatcherInitialLoadFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxkey.yaml")
	writeConfigFile(t, path, "debug: {log_level: loud}")

	if _, err := NewWatcher(path, nil); err == nil {
		t.Fatal("NewWatcher accepted an invalid initial config")
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxkey.yaml")
	writeConfigFile(t, path, watcherYAML)

	var (
		mu      sync.Mutex
		changed []ConfigDiff
	)
	onChange := func(old, new *Config) {
		mu.Lock()
		defer mu.Unlock()
		changed = append(changed, Diff(old, new))
	}

	w, err := NewWatcher(path, onChange, WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfigFile(t, path, watcherYAMLUpdated)

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		n := len(changed)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher never reported the change")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	d := changed[0]
	mu.Unlock()
	if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
	if got := w.Current().Debug.LogLevel; got != LogDebug {
		t.Errorf("Current().Debug.LogLevel = %q, want debug", got)
	}
}

func TestWatcherKeepsOldConfigOnInvalidEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxkey.yaml")
	writeConfigFile(t, path, watcherYAML)

	called := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(old, new *Config) {
		select {
		case called <- struct{}{}:
		default:
		}
	}, WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfigFile(t, path, "debug: {log_level: loud}")

	select {
	case <-called:
		t.Fatal("onChange fired for an invalid config")
	case <-time.After(200 * time.Millisecond):
	}
	if got := w.Current().Debug.LogLevel; got != LogInfo {
		t.Errorf("Current().Debug.LogLevel = %q, want the last valid value", got)
	}
}
