// Package app wires all voxkey subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the hotkey event loop, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithRunner, WithDevice, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/voxkey/voxkey/internal/agent"
	"github.com/voxkey/voxkey/internal/automation"
	"github.com/voxkey/voxkey/internal/capture"
	"github.com/voxkey/voxkey/internal/chunker"
	"github.com/voxkey/voxkey/internal/classify"
	"github.com/voxkey/voxkey/internal/config"
	"github.com/voxkey/voxkey/internal/deliver"
	"github.com/voxkey/voxkey/internal/focus"
	"github.com/voxkey/voxkey/internal/history"
	"github.com/voxkey/voxkey/internal/hotkey"
	"github.com/voxkey/voxkey/internal/notify"
	"github.com/voxkey/voxkey/internal/observe"
	"github.com/voxkey/voxkey/internal/overlay"
	"github.com/voxkey/voxkey/internal/permission"
	"github.com/voxkey/voxkey/internal/ptt"
	"github.com/voxkey/voxkey/internal/route"
	"github.com/voxkey/voxkey/pkg/llm"
	"github.com/voxkey/voxkey/pkg/stt"
)

// DefaultCombo is the push-to-talk binding used when none is configured.
const DefaultCombo = "ctrl+alt+space"

// defaultPermIdleRefresh is how long the hotkey may sit unused before the
// next key-down forces a fresh permission probe. Permission state is most
// likely to have changed while the user was away.
const defaultPermIdleRefresh = time.Hour

// Providers holds the backends assembled by main.go via the config registry.
// A nil LLM disables the assistant; commands then fall back to dictation.
type Providers struct {
	Transcriber stt.Transcriber
	LLM         llm.Provider
}

// App owns all subsystem lifetimes and runs the push-to-talk loop.
type App struct {
	cfg       *config.Config
	providers *Providers

	runner   automation.Runner
	perm     *permission.Checker
	detector *focus.Detector
	notifier notify.Notifier
	display  overlay.Display
	clip     deliver.Clipboard
	device   capture.Device
	source   hotkey.Source
	hist     *history.Store
	orch     *ptt.Orchestrator
	metrics  *observe.Metrics
	logLevel *slog.LevelVar

	// permIdleRefresh is the key-down gap after which the cached permission
	// state is invalidated before the cycle runs.
	permIdleRefresh time.Duration

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRunner injects the OS automation runner.
func WithRunner(r automation.Runner) Option {
	return func(a *App) { a.runner = r }
}

// WithDevice injects the audio capture device.
func WithDevice(d capture.Device) Option {
	return func(a *App) { a.device = d }
}

// WithSource injects the hotkey event source instead of registering a global
// hotkey.
func WithSource(s hotkey.Source) Option {
	return func(a *App) { a.source = s }
}

// WithNotifier injects the user notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithClipboard injects the clipboard implementation.
func WithClipboard(c deliver.Clipboard) Option {
	return func(a *App) { a.clip = c }
}

// WithDisplay injects the overlay display.
func WithDisplay(d overlay.Display) Option {
	return func(a *App) { a.display = d }
}

// WithMetrics injects the pipeline metrics recorder.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevelVar injects the level var backing the process logger, enabling
// log-level hot-reload.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Transcriber == nil {
		return nil, errors.New("app: a transcription backend is required")
	}

	a := &App{
		cfg:             cfg,
		providers:       providers,
		permIdleRefresh: defaultPermIdleRefresh,
	}
	for _, o := range opts {
		o(a)
	}

	a.initOS()
	if err := a.initHistory(); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}
	if err := a.initOrchestrator(); err != nil {
		return nil, fmt.Errorf("app: init orchestrator: %w", err)
	}

	return a, nil
}

// initOS sets up the automation boundary and everything built on it.
func (a *App) initOS() {
	if a.runner == nil {
		a.runner = automation.NewOsascriptRunner()
	}
	if a.clip == nil {
		a.clip = deliver.PasteboardClipboard{}
	}
	if a.notifier == nil {
		a.notifier = notify.NewOSNotifier(a.runner)
	}
	if a.display == nil {
		a.display = overlay.NewNotificationDisplay(a.notifier)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.perm = permission.NewChecker(a.runner)

	var focusOpts []focus.Option
	if len(a.cfg.Delivery.Allowlist) > 0 {
		focusOpts = append(focusOpts, focus.WithAllowlist(a.cfg.Delivery.Allowlist))
	}
	a.detector = focus.NewDetector(a.runner, focusOpts...)

	if a.device == nil {
		var devOpts []capture.FFmpegOption
		if a.cfg.Audio.FFmpegPath != "" {
			devOpts = append(devOpts, capture.WithBinary(a.cfg.Audio.FFmpegPath))
		}
		if a.cfg.Audio.InputDevice != "" {
			devOpts = append(devOpts, capture.WithInput("avfoundation", a.cfg.Audio.InputDevice))
		}
		a.device = capture.NewFFmpegDevice(devOpts...)
	}
}

// initHistory opens the local transcription log when enabled.
func (a *App) initHistory() error {
	if !a.cfg.History.Enabled {
		return nil
	}

	dir := a.cfg.History.Dir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("resolve user config dir: %w", err)
		}
		dir = filepath.Join(base, "voxkey", "history")
	}

	var histOpts []history.Option
	if a.cfg.History.Retention > 0 {
		histOpts = append(histOpts, history.WithRetention(a.cfg.History.Retention.Std()))
	}
	store, err := history.Open(dir, histOpts...)
	if err != nil {
		return err
	}
	a.hist = store
	a.closers = append(a.closers, store.Close)
	return nil
}

// initOrchestrator assembles the pipeline around the push-to-talk state
// machine.
func (a *App) initOrchestrator() error {
	classifier := a.buildClassifier(a.cfg)

	var convoOpts []ptt.ConvoOption
	if d := a.cfg.Conversation.IdleExpiry; d > 0 {
		convoOpts = append(convoOpts, ptt.WithIdleExpiry(d.Std()))
	}
	if n := a.cfg.Conversation.MaxHistoryTokens; n > 0 {
		convoOpts = append(convoOpts, ptt.WithMaxHistoryTokens(n))
	}
	convo := ptt.NewConversationManager(convoOpts...)

	chain := deliver.NewChain(
		defaultStrategies(a.runner, a.clip),
		a.perm,
		a.notifier,
		a.detector.FrontmostApp,
		deliver.WithMetrics(a.metrics),
	)

	// The router needs orchestrator state and the orchestrator needs the
	// router; the closure resolves the cycle.
	var router ptt.Router
	dictating := func() bool { return a.orch != nil && a.orch.Dictating() }
	if a.providers.LLM != nil {
		asst := agent.New(a.providers.LLM)
		rt := route.NewRouter(asst, a.detector, a.display, dictating)
		if a.hist != nil {
			rt.SetRecentContext(a.recentTranscripts)
		}
		router = rt
	} else {
		router = assistantDisabledRouter{}
	}

	pttCfg := ptt.Config{
		Device:      a.device,
		Transcriber: a.providers.Transcriber,
		Classifier:  classifier,
		Router:      router,
		Deliverer:   chain,
		Selection:   a.detector.SelectedText,
		Notifier:    a.notifier,
		Convo:       convo,
		Metrics:     a.metrics,
		AudioCue:    a.cfg.Audio.Cue,
	}
	if a.hist != nil {
		pttCfg.History = a.hist
	}
	if d := a.cfg.STT.Timeout; d > 0 {
		pttCfg.TranscribeTimeout = d.Std()
	}
	if d := a.cfg.Audio.MinDuration; d > 0 {
		pttCfg.MinDuration = d.Std()
	}
	if c := a.cfg.STT.Chunking; c != (config.ChunkingConfig{}) {
		opts := chunker.DefaultOptions()
		if c.MaxChunkMB > 0 {
			opts.MaxChunkBytes = c.MaxChunkMB << 20
		}
		if c.MaxChunkDuration > 0 {
			opts.MaxChunkDuration = c.MaxChunkDuration.Std()
		}
		if c.Overlap > 0 {
			opts.Overlap = c.Overlap.Std()
		}
		pttCfg.ChunkOpts = opts
	}

	orch, err := ptt.New(pttCfg)
	if err != nil {
		return err
	}
	orch.SetForceAssistant(a.cfg.Wake.ForceAssistant)
	a.orch = orch
	return nil
}

// defaultStrategies returns the delivery chain in priority order: fast
// native paste, temp-file staged keystroke, focus-verified paste, then the
// app-specific notes strategy (promoted by the chain when its app is
// frontmost).
func defaultStrategies(runner automation.Runner, clip deliver.Clipboard) []deliver.Strategy {
	return []deliver.Strategy{
		deliver.FastPaste{Runner: runner, Clipboard: clip},
		deliver.StagedPaste{Runner: runner, Clipboard: clip},
		deliver.VerifiedPaste{Runner: runner, Clipboard: clip},
		deliver.NotesPaste{Runner: runner, Clipboard: clip},
	}
}

// recentTranscripts pulls the last few history entries for agent context.
// Failures degrade to no extra context rather than failing the command.
func (a *App) recentTranscripts(context.Context) []string {
	entries, err := a.hist.Recent(3)
	if err != nil {
		slog.Debug("history lookup for agent context failed", "err", err)
		return nil
	}
	texts := make([]string, 0, len(entries))
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	return texts
}

// buildClassifier constructs the wake-word classifier from cfg.
func (a *App) buildClassifier(cfg *config.Config) *classify.Classifier {
	words := cfg.Wake.Words
	if len(words) == 0 {
		words = []string{"jarvis"}
	}
	var opts []classify.Option
	if t := cfg.Wake.PhoneticThreshold; t > 0 {
		opts = append(opts, classify.WithPhoneticThreshold(t))
	}
	return classify.New(words, opts...)
}

// Orchestrator exposes the push-to-talk state machine, mainly for the debug
// endpoint and tests.
func (a *App) Orchestrator() *ptt.Orchestrator { return a.orch }

// Permissions exposes the accessibility permission checker for readiness
// probes.
func (a *App) Permissions() *permission.Checker { return a.perm }

// Run registers the hotkey (unless a source was injected) and consumes key
// edges until ctx is cancelled. It blocks for the lifetime of the app.
func (a *App) Run(ctx context.Context) error {
	source := a.source
	if source == nil {
		combo := a.cfg.Hotkey.Combo
		if combo == "" {
			combo = DefaultCombo
		}
		listener, err := hotkey.NewListener(combo)
		if err != nil {
			return fmt.Errorf("app: register hotkey: %w", err)
		}
		a.closers = append(a.closers, listener.Close)
		go listener.Run(ctx)
		source = listener
		slog.Info("push-to-talk ready", "combo", combo)
	}

	if !a.perm.Granted(ctx) {
		slog.Warn("accessibility permission not granted; delivery will fail until it is")
	}

	lastKey := time.Now()
	for {
		select {
		case <-ctx.Done():
			a.orch.Cancel()
			return ctx.Err()
		case ev, ok := <-source.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case hotkey.KeyDown:
				if time.Since(lastKey) > a.permIdleRefresh {
					slog.Debug("long idle, refreshing permission state")
					a.perm.Invalidate()
				}
				lastKey = time.Now()
				a.orch.KeyDown()
			case hotkey.KeyUp:
				a.orch.KeyUp()
			}
		}
	}
}

// HandleConfigChange applies a reloaded config. Hot-applicable fields take
// effect immediately; anything else is logged as needing a restart.
func (a *App) HandleConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}

	if d.LogLevelChanged {
		if a.logLevel != nil {
			a.logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		} else {
			slog.Warn("log level changed but no level var is wired")
		}
	}

	if d.WakeChanged {
		a.orch.SetClassifier(a.buildClassifier(new))
		a.orch.SetForceAssistant(new.Wake.ForceAssistant)
		slog.Info("wake settings reloaded", "words", new.Wake.Words, "force_assistant", new.Wake.ForceAssistant)
	}

	if d.AudioCueChanged {
		a.orch.SetAudioCue(new.Audio.Cue)
	}

	if d.AllowlistChanged {
		a.detector.SetAllowlist(new.Delivery.Allowlist)
		slog.Info("delivery allowlist reloaded", "apps", new.Delivery.Allowlist)
	}

	if d.HotkeyChanged || d.RestartRequired {
		slog.Warn("config changes require a restart to take effect",
			"hotkey", d.HotkeyChanged, "providers", d.RestartRequired)
	}

	a.cfg = new
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.orch.Cancel()

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// assistantDisabledRouter satisfies the routing contract when no LLM is
// configured. Every command errors, which the orchestrator turns into a raw
// transcript delivery.
type assistantDisabledRouter struct{}

var errAssistantDisabled = errors.New("app: no llm configured, assistant disabled")

func (assistantDisabledRouter) Route(context.Context, classify.Decision, string, []llm.Message) (route.Output, error) {
	return route.Output{}, errAssistantDisabled
}

// slogLevel maps a config log level to a slog level.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
