// Command voxrelay is the entry point for the voxrelay voice-agent server:
// it loads configuration from the environment, wires the STT/TTS/LLM
// providers and the single configured agent, and serves the /session
// WebSocket endpoint alongside /healthz and /readyz.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxrelay/voxrelay/internal/config"
	"github.com/voxrelay/voxrelay/internal/health"
	"github.com/voxrelay/voxrelay/internal/observe"
	"github.com/voxrelay/voxrelay/internal/resilience"
	"github.com/voxrelay/voxrelay/internal/session"
	"github.com/voxrelay/voxrelay/internal/toolhost"
	"github.com/voxrelay/voxrelay/internal/toolhost/tools/fileio"
	"github.com/voxrelay/voxrelay/internal/toolhost/tools/roll"
	"github.com/voxrelay/voxrelay/internal/wsserver"
	"github.com/voxrelay/voxrelay/pkg/provider/llm"
	"github.com/voxrelay/voxrelay/pkg/provider/llm/anyllm"
	"github.com/voxrelay/voxrelay/pkg/provider/llm/openaigw"
	"github.com/voxrelay/voxrelay/pkg/provider/stt"
	"github.com/voxrelay/voxrelay/pkg/provider/stt/assemblyai"
	"github.com/voxrelay/voxrelay/pkg/provider/tts"
	"github.com/voxrelay/voxrelay/pkg/provider/tts/cartesia"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── Load configuration ────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxrelay: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Server.LogLevel.Slog()}))
	slog.SetDefault(logger)

	slog.Info("voxrelay starting",
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"agent", cfg.Agent.Name,
	)

	// ── OpenTelemetry ──────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: "voxrelay",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(ctx); err != nil {
			slog.Error("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry (LLM only; STT/TTS have one concrete backend) ───
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	primaryLLM, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to create llm provider", "name", cfg.Providers.LLM.Name, "err", err)
		return 1
	}

	// Every call to C4 goes through a per-backend circuit breaker so a
	// string of upstream failures stops hammering the provider instead of
	// retrying forever (spec §4.4 "retries on transport error").
	llmFallback := resilience.NewLLMFallback(primaryLLM, cfg.Providers.LLM.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: cfg.Providers.LLM.Name},
	})
	if cfg.Providers.LLMFallback.Name != "" {
		fallbackLLM, err := reg.CreateLLM(cfg.Providers.LLMFallback)
		if err != nil {
			slog.Error("failed to create llm fallback provider", "name", cfg.Providers.LLMFallback.Name, "err", err)
			return 1
		}
		llmFallback.AddFallback(cfg.Providers.LLMFallback.Name, fallbackLLM)
		slog.Info("llm fallback registered", "primary", cfg.Providers.LLM.Name, "fallback", cfg.Providers.LLMFallback.Name)
	}
	llmCaller := &instrumentedLLM{inner: llmFallback, metrics: metrics, provider: cfg.Providers.LLM.Name}

	var sttOpts []assemblyai.Option
	if cfg.Providers.STT.BaseURL != "" {
		sttOpts = append(sttOpts, assemblyai.WithBaseURL(cfg.Providers.STT.BaseURL))
	}
	sttProvider, err := assemblyai.New(cfg.Providers.STT.APIKey, sttOpts...)
	if err != nil {
		slog.Error("failed to create stt provider", "err", err)
		return 1
	}

	var ttsOpts []cartesia.Option
	if cfg.Providers.TTS.BaseURL != "" {
		ttsOpts = append(ttsOpts, cartesia.WithWSURL(cfg.Providers.TTS.BaseURL))
	}
	ttsPool, err := cartesia.New(cfg.Providers.TTS.APIKey, ttsOpts...)
	if err != nil {
		slog.Error("failed to create tts provider", "err", err)
		return 1
	}
	defer ttsPool.Close()

	// ── Built-in tools ──────────────────────────────────────────────────────
	builtins := toolhost.New()
	baseDir, err := filepath.Abs(getEnvDefault("FILEIO_BASE_DIR", "."))
	if err != nil {
		slog.Error("failed to resolve FILEIO_BASE_DIR", "err", err)
		return 1
	}
	for _, t := range []toolhost.Tool{roll.Tool(), fileio.Tool(baseDir)} {
		if err := builtins.Register(t); err != nil {
			slog.Error("failed to register built-in tool", "tool", t.Name, "err", err)
			return 1
		}
	}

	// ── Startup summary ───────────────────────────────────────────────────
	printStartupSummary(cfg)

	// ── Session factory ───────────────────────────────────────────────────
	speechModel := cfg.Providers.STT.Model
	if speechModel == "" {
		speechModel = "best"
	}
	sttConfig := stt.Config{
		SpeechModel:           speechModel,
		Prompt:                cfg.Agent.STTPrompt,
		MinEndOfTurnSilenceMS: 400,
		MaxTurnSilenceMS:      1200,
	}
	ttsConfig := tts.Config{Voice: cfg.Agent.Voice}

	// agentCfgPtr holds the agent config new sessions pick up; swapped
	// atomically by the bundle-dir watcher below so a hot-reloaded
	// instructions/greeting/voice change applies to the next connection
	// without restarting the process. Sessions already running keep
	// whatever they were handed at construction (spec's single-turn
	// invariant never targets an in-flight session's config).
	var agentCfgPtr atomic.Pointer[session.AgentConfig]
	initialAgentCfg := cfg.Agent.ToSession()
	agentCfgPtr.Store(&initialAgentCfg)

	if dir := os.Getenv("BUNDLE_DIR"); dir != "" {
		watcher, err := config.NewWatcher(filepath.Join(dir, "agent.yaml"), *cfg, func(old, new config.Config) {
			updated := new.Agent.ToSession()
			agentCfgPtr.Store(&updated)
			slog.Info("agent config reloaded from bundle overlay", "agent", new.Agent.Name)
		})
		if err != nil {
			slog.Error("failed to start config watcher", "bundle_dir", dir, "err", err)
			return 1
		}
		defer watcher.Stop()
	}

	factory := func(id string, sink session.ClientSink) *session.Session {
		return session.New(session.Deps{
			ID:        id,
			Agent:     *agentCfgPtr.Load(),
			STT:       sttProvider,
			STTConfig: sttConfig,
			TTS:       ttsPool,
			TTSConfig: ttsConfig,
			LLM:       llmCaller,
			Model:     cfg.Providers.LLM.Model,
			Builtin:   builtins,
			Metrics:   metrics,
			Sink:      sink,
			Log:       slog.Default().With("session_id", id),
		})
	}

	server := wsserver.New(factory, slog.Default(), metrics)
	healthHandler := health.New(health.Checker{
		Name: "wsserver",
		Check: func(context.Context) error {
			_ = server.ActiveSessions()
			return nil
		},
	})

	// The WebSocket upgrade needs the raw ResponseWriter's Hijacker, so it is
	// never wrapped in observe.Middleware — only the plain HTTP routes are.
	httpMux := http.NewServeMux()
	httpMux.Handle("/metrics", promhttp.Handler())
	healthHandler.Register(httpMux)

	mux := http.NewServeMux()
	mux.Handle("/session", server.Handler())
	mux.Handle("/", observe.Middleware(metrics)(httpMux))

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// instrumentedLLM wraps an [llm.Caller] (here, the circuit-breaker-guarded
// [resilience.LLMFallback]) with C4's provider-request/error/duration
// metrics, so the LLM instruments in internal/observe record real traffic
// rather than sitting unused.
type instrumentedLLM struct {
	inner    llm.Caller
	metrics  *observe.Metrics
	provider string
}

func (c *instrumentedLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	start := time.Now()
	resp, err := c.inner.Complete(ctx, req)
	c.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
		c.metrics.RecordProviderError(ctx, c.provider, "llm")
	}
	c.metrics.RecordProviderRequest(ctx, c.provider, "llm", status)
	return resp, err
}

// ── Provider wiring ────────────────────────────────────────────────────────

// registerBuiltinProviders registers every LLM backend factory this binary
// ships with: the default OpenAI-compatible gateway, plus one any-llm-go
// entry per supported vendor (spec §6's LLM_PROVIDER selects among these).
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openaigw", func(e config.ProviderEntry) (llm.Caller, error) {
		var opts []openaigw.Option
		if e.BaseURL != "" {
			opts = append(opts, openaigw.WithBaseURL(e.BaseURL))
		}
		return openaigw.New(e.APIKey, e.Model, opts...)
	})

	for _, vendor := range []string{"anthropic", "gemini", "ollama", "openai"} {
		vendor := vendor
		reg.RegisterLLM("anyllm:"+vendor, func(e config.ProviderEntry) (llm.Caller, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(vendor, e.Model, opts...)
		})
	}
}

// ── Startup summary ────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         voxrelay — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Listen addr", cfg.Server.ListenAddr)
	printField("Log level", string(cfg.Server.LogLevel))
	printField("Agent", cfg.Agent.Name)
	printField("LLM", cfg.Providers.LLM.Name+" / "+cfg.Providers.LLM.Model)
	printField("STT", cfg.Providers.STT.Name)
	printField("TTS", cfg.Providers.TTS.Name)
	printField("Built-ins", "roll, read_file")
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printField(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s : %-19s ║\n", label, value)
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
