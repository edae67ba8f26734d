// Package config provides the configuration schema, loader, and provider
// registry for the voxrelay voice-agent server.
package config

import (
	"fmt"
	"log/slog"

	"github.com/voxrelay/voxrelay/internal/session"
)

// Config is the root configuration structure for voxrelay. It is built by
// [Load], which reads environment variables and, optionally, a YAML overlay
// file for the fields that don't fit comfortably in an env var.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Agent     AgentConfig     `yaml:"agent"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":3000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls log verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel is one of the severities spec §6 allows for LOG_LEVEL.
type LogLevel string

const (
	LogLevelDebug    LogLevel = "DEBUG"
	LogLevelInfo     LogLevel = "INFO"
	LogLevelWarn     LogLevel = "WARN"
	LogLevelError    LogLevel = "ERROR"
	LogLevelCritical LogLevel = "CRITICAL"
)

// IsValid reports whether l is one of the recognized levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelCritical:
		return true
	default:
		return false
	}
}

// Slog maps l onto the nearest [slog.Level]. CRITICAL has no slog
// equivalent, so it maps to the same level as ERROR.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError, LogLevelCritical:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ProvidersConfig declares which provider to use for each pipeline stage.
// Unlike the multi-backend teacher schema, only LLM currently has more than
// one registered backend (openaigw, anyllm); STT and TTS each have exactly
// one concrete provider, so Name there is informational only.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`

	// LLMFallback, when Name is non-empty, is registered as a secondary LLM
	// backend behind the primary's circuit breaker (cmd/voxrelay wires this
	// through [github.com/voxrelay/voxrelay/internal/resilience]).
	LLMFallback ProviderEntry `yaml:"llm_fallback"`
}

// ProviderEntry is the configuration block shared by every provider stage.
type ProviderEntry struct {
	// Name selects the registered backend (only meaningful for LLM; see
	// [Registry]).
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. Empty uses the
	// provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o",
	// "sonic-2").
	Model string `yaml:"model"`
}

// AgentConfig describes the single voice agent this server hosts (spec §3's
// "one configured agent persona per deployment").
type AgentConfig struct {
	// Name is a human-readable label used only in logs and the startup
	// summary; it is never sent to the client.
	Name string `yaml:"name"`

	// Instructions is the system prompt injected ahead of every turn.
	Instructions string `yaml:"instructions"`

	// Greeting is spoken at the start of the call, once audio_ready arrives
	// (spec §4.7).
	Greeting string `yaml:"greeting"`

	// Voice selects the TTS voice identifier.
	Voice string `yaml:"voice"`

	// STTPrompt is an optional vendor-specific hint (vocabulary, domain
	// context) passed through to the STT provider at connect time.
	STTPrompt string `yaml:"stt_prompt"`

	// EnabledBuiltins lists which built-in tools (spec §4.5) this agent may
	// call. An empty list means none.
	EnabledBuiltins []string `yaml:"enabled_builtins"`
}

// ToSession converts a into the shape [internal/session.Session] consumes.
func (a AgentConfig) ToSession() session.AgentConfig {
	return session.AgentConfig{
		Name:         a.Name,
		Instructions: a.Instructions,
		Greeting:     a.Greeting,
		Voice:        a.Voice,
		STTPrompt:    a.STTPrompt,

		EnabledBuiltins: a.EnabledBuiltins,
	}
}

// Validate checks required fields and enum values, returning every problem
// found rather than stopping at the first one.
func (c Config) Validate() error {
	var errs []error

	if c.Server.ListenAddr == "" {
		errs = append(errs, fmt.Errorf("server.listen_addr: required"))
	}
	if !c.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level: invalid value %q", c.Server.LogLevel))
	}

	if c.Providers.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("providers.llm.api_key: required"))
	}
	if c.Providers.STT.APIKey == "" {
		errs = append(errs, fmt.Errorf("providers.stt.api_key: required"))
	}
	if c.Providers.TTS.APIKey == "" {
		errs = append(errs, fmt.Errorf("providers.tts.api_key: required"))
	}

	if c.Agent.Greeting == "" {
		errs = append(errs, fmt.Errorf("agent.greeting: required"))
	}
	if c.Agent.Voice == "" {
		errs = append(errs, fmt.Errorf("agent.voice: required"))
	}

	if len(errs) == 0 {
		return nil
	}
	msg := "invalid configuration:"
	for _, e := range errs {
		msg += "\n  - " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}
