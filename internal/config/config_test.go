package config_test

import (
	"strings"
	"testing"

	"github.com/voxrelay/voxrelay/internal/config"
)

func validConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{ListenAddr: ":3000", LogLevel: config.LogLevelInfo},
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openaigw", APIKey: "sk-test", Model: "gpt-4o"},
			STT: config.ProviderEntry{Name: "assemblyai", APIKey: "aai-test"},
			TTS: config.ProviderEntry{Name: "cartesia", APIKey: "cart-test"},
		},
		Agent: config.AgentConfig{
			Name:     "test-agent",
			Greeting: "Hello, how can I help?",
			Voice:    "sonic-english",
		},
	}
}

func TestConfig_Validate_Valid(t *testing.T) {
	t.Parallel()
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestConfig_Validate_MissingRequiredFields(t *testing.T) {
	t.Parallel()
	cfg := config.Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for empty config")
	}
	for _, want := range []string{"server.listen_addr", "providers.llm.api_key", "providers.stt.api_key", "providers.tts.api_key", "agent.greeting", "agent.voice"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got: %v", want, err)
		}
	}
}

func TestConfig_Validate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Server.LogLevel = "VERBOSE"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Fatalf("expected log_level error, got: %v", err)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogLevelDebug, config.LogLevelInfo, config.LogLevelWarn, config.LogLevelError, config.LogLevelCritical} {
		if !l.IsValid() {
			t.Errorf("expected %q to be valid", l)
		}
	}
	if config.LogLevel("NOPE").IsValid() {
		t.Error("expected NOPE to be invalid")
	}
}

func TestLogLevel_Slog(t *testing.T) {
	t.Parallel()
	if config.LogLevelDebug.Slog() >= config.LogLevelInfo.Slog() {
		t.Error("expected DEBUG to be more verbose than INFO")
	}
	if config.LogLevelCritical.Slog() != config.LogLevelError.Slog() {
		t.Error("expected CRITICAL to map to the same slog level as ERROR")
	}
}

func TestAgentConfig_ToSession(t *testing.T) {
	t.Parallel()
	a := config.AgentConfig{
		Name:         "Aria",
		Instructions: "Be concise.",
		Greeting:     "Hi!",
		Voice:        "sonic-english",
		STTPrompt:    "voxrelay, Anthropic",
	}
	s := a.ToSession()
	if s.Name != a.Name || s.Instructions != a.Instructions || s.Greeting != a.Greeting || s.Voice != a.Voice || s.STTPrompt != a.STTPrompt {
		t.Errorf("ToSession did not preserve all fields: %+v", s)
	}
}
