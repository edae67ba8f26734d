package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// envOverlay is the subset of Config that can be expressed as a YAML file at
// <BUNDLE_DIR>/agent.yaml. It exists separately from Config so decoding it
// never requires (and never silently accepts) the server/provider sections,
// which are env-only.
type envOverlay struct {
	Agent AgentConfig `yaml:"agent"`
}

// Load builds a Config from the process environment (spec §6:
// "Configuration: read from environment"), then applies an optional YAML
// overlay at <BUNDLE_DIR>/agent.yaml for the agent fields that don't fit
// comfortably in a single env var (long instructions, greeting prose). The
// overlay is applied on top of the env-derived baseline and is skipped
// entirely if the file does not exist.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddr: ":" + getEnvDefault("PORT", "3000"),
			LogLevel:   LogLevel(getEnvDefault("LOG_LEVEL", string(LogLevelInfo))),
		},
		Providers: ProvidersConfig{
			LLM: ProviderEntry{
				Name:    getEnvDefault("LLM_PROVIDER", "openaigw"),
				APIKey:  os.Getenv("LLM_API_KEY"),
				BaseURL: os.Getenv("LLM_BASE_URL"),
				Model:   os.Getenv("LLM_MODEL"),
			},
			STT: ProviderEntry{
				Name:    "assemblyai",
				APIKey:  os.Getenv("STT_API_KEY"),
				BaseURL: os.Getenv("STT_BASE_URL"),
				Model:   os.Getenv("STT_MODEL"),
			},
			TTS: ProviderEntry{
				Name:    "cartesia",
				APIKey:  os.Getenv("TTS_API_KEY"),
				BaseURL: os.Getenv("TTS_BASE_URL"),
				Model:   os.Getenv("TTS_MODEL"),
			},
			LLMFallback: ProviderEntry{
				Name:    os.Getenv("LLM_FALLBACK_PROVIDER"),
				APIKey:  os.Getenv("LLM_FALLBACK_API_KEY"),
				BaseURL: os.Getenv("LLM_FALLBACK_BASE_URL"),
				Model:   os.Getenv("LLM_FALLBACK_MODEL"),
			},
		},
		Agent: AgentConfig{
			Name:         getEnvDefault("AGENT_NAME", "voxrelay-agent"),
			Instructions: os.Getenv("AGENT_INSTRUCTIONS"),
			Greeting:     os.Getenv("AGENT_GREETING"),
			Voice:        os.Getenv("AGENT_VOICE"),
			STTPrompt:    os.Getenv("AGENT_STT_PROMPT"),
		},
	}

	if dir := os.Getenv("BUNDLE_DIR"); dir != "" {
		if err := applyOverlay(cfg, filepath.Join(dir, "agent.yaml")); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverlay decodes the YAML file at path, if present, onto cfg.Agent.
// A missing file is not an error; a malformed one is.
func applyOverlay(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: open overlay %q: %w", path, err)
	}
	defer f.Close()

	var overlay envOverlay
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&overlay); err != nil {
		return fmt.Errorf("config: decode overlay %q: %w", path, err)
	}

	if overlay.Agent.Name != "" {
		cfg.Agent.Name = overlay.Agent.Name
	}
	if overlay.Agent.Instructions != "" {
		cfg.Agent.Instructions = overlay.Agent.Instructions
	}
	if overlay.Agent.Greeting != "" {
		cfg.Agent.Greeting = overlay.Agent.Greeting
	}
	if overlay.Agent.Voice != "" {
		cfg.Agent.Voice = overlay.Agent.Voice
	}
	if overlay.Agent.STTPrompt != "" {
		cfg.Agent.STTPrompt = overlay.Agent.STTPrompt
	}
	if len(overlay.Agent.EnabledBuiltins) > 0 {
		cfg.Agent.EnabledBuiltins = overlay.Agent.EnabledBuiltins
	}
	return nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
