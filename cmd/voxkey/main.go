// Command voxkey is the push-to-talk dictation and voice assistant daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxkey/voxkey/internal/app"
	"github.com/voxkey/voxkey/internal/config"
	"github.com/voxkey/voxkey/internal/failover"
	"github.com/voxkey/voxkey/internal/health"
	"github.com/voxkey/voxkey/internal/observe"
	"github.com/voxkey/voxkey/pkg/llm"
	llmanyllm "github.com/voxkey/voxkey/pkg/llm/anyllm"
	llmopenai "github.com/voxkey/voxkey/pkg/llm/openai"
	"github.com/voxkey/voxkey/pkg/stt"
	"github.com/voxkey/voxkey/pkg/stt/deepgram"
	"github.com/voxkey/voxkey/pkg/stt/whisperapi"
	"github.com/voxkey/voxkey/pkg/stt/whisperlocal"
	"github.com/voxkey/voxkey/pkg/stt/whispernative"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "voxkey.yaml", "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("voxkey", version)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxkey: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxkey: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Debug.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("voxkey starting",
		"version", version,
		"config", *configPath,
		"log_level", cfg.Debug.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry first so every subsystem records into the real providers.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(cfg, providers, app.WithLogLevelVar(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// Config hot-reload.
	watcher, err := config.NewWatcher(*configPath, application.HandleConfigChange)
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// Debug server: Prometheus metrics plus health probes.
	var debugSrv *http.Server
	if cfg.Debug.ListenAddr != "" {
		debugSrv = startDebugServer(cfg.Debug.ListenAddr, application)
	}

	printStartupSummary(cfg)
	slog.Info("ready, hold the hotkey to talk; press Ctrl+C to quit")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if debugSrv != nil {
		if err := debugSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("debug server shutdown error", "err", err)
		}
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires all built-in backend factories into reg.
// Each factory receives a config.ProviderEntry and constructs the backend
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// STT

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper-api", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisperapi.Option
		if entry.BaseURL != "" {
			opts = append(opts, whisperapi.WithEndpoint(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, whisperapi.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisperapi.WithLanguage(lang))
		}
		return whisperapi.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper-local", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisperlocal.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisperlocal.WithLanguage(lang))
		}
		return whisperlocal.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whispernative.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whispernative.WithLanguage(lang))
		}
		return whispernative.New(modelPath, opts...)
	})

	// LLM: "openai" talks to the OpenAI API directly; everything else goes
	// through the any-llm multiplexer.

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return llmanyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return llmanyllm.New("ollama", entry.Model, opts...)
	})
}

// buildProviders instantiates the backends named in cfg, wrapping the STT
// backends in a failover chain, and returns them for the application.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	primary, err := reg.CreateSTT(cfg.STT.Primary)
	if err != nil {
		return nil, fmt.Errorf("create stt backend %q: %w", cfg.STT.Primary.Name, err)
	}

	breakerCfg := failover.BreakerConfig{
		Threshold: cfg.STT.Failover.Threshold,
		Cooldown:  cfg.STT.Failover.Cooldown.Std(),
	}
	chain := failover.NewTranscriber(cfg.STT.Primary.Name, primary, breakerCfg)
	chain.Instrument(observe.DefaultMetrics())
	for _, entry := range cfg.STT.Fallbacks {
		backend, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
		}
		chain.Add(entry.Name, backend)
		slog.Info("stt fallback registered", "name", entry.Name)
	}
	ps.Transcriber = chain
	slog.Info("stt backend ready", "primary", cfg.STT.Primary.Name, "fallbacks", len(cfg.STT.Fallbacks))

	if name := cfg.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		slog.Info("llm provider ready", "name", name, "model", cfg.LLM.Model)
	}

	return ps, nil
}

// startDebugServer serves /metrics, /healthz, and /readyz on addr.
func startDebugServer(addr string, application *app.App) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	h := health.New(
		health.Checker{Name: "permissions", Check: func(ctx context.Context) error {
			if !application.Permissions().Granted(ctx) {
				return errors.New("accessibility permission not granted")
			}
			return nil
		}},
	)
	h.Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("debug server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("debug server error", "err", err)
		}
	}()
	return srv
}

// printStartupSummary logs a one-look overview of the effective configuration.
func printStartupSummary(cfg *config.Config) {
	combo := cfg.Hotkey.Combo
	if combo == "" {
		combo = app.DefaultCombo
	}
	words := cfg.Wake.Words
	if len(words) == 0 {
		words = []string{"jarvis"}
	}
	llmName := cfg.LLM.Name
	if llmName == "" {
		llmName = "(disabled)"
	}
	slog.Info("configuration",
		"hotkey", combo,
		"wake_words", words,
		"stt", cfg.STT.Primary.Name,
		"stt_fallbacks", len(cfg.STT.Fallbacks),
		"llm", llmName,
		"history", cfg.History.Enabled,
		"audio_cue", cfg.Audio.Cue,
	)
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

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a
// string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
