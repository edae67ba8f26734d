package config_test

import (
	"testing"

	"github.com/voxrelay/voxrelay/internal/config"
)

func TestDiffAgent_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Config{Agent: config.AgentConfig{Greeting: "hi", Voice: "v1"}}
	d := config.DiffAgent(cfg, cfg)
	if d.Changed() {
		t.Error("expected no changes for identical configs")
	}
}

func TestDiffAgent_GreetingAndVoiceChanged(t *testing.T) {
	t.Parallel()
	old := config.Config{Agent: config.AgentConfig{Greeting: "hi", Voice: "v1"}}
	new := config.Config{Agent: config.AgentConfig{Greeting: "hello", Voice: "v2"}}

	d := config.DiffAgent(old, new)
	if !d.GreetingChanged {
		t.Error("expected GreetingChanged=true")
	}
	if !d.VoiceChanged {
		t.Error("expected VoiceChanged=true")
	}
	if d.InstructionsChanged || d.STTPromptChanged || d.BuiltinsChanged {
		t.Error("expected only greeting and voice to be flagged")
	}
	if !d.Changed() {
		t.Error("expected Changed()=true")
	}
}

func TestDiffAgent_BuiltinsOrderSensitive(t *testing.T) {
	t.Parallel()
	old := config.Config{Agent: config.AgentConfig{EnabledBuiltins: []string{"roll_dice", "read_file"}}}
	new := config.Config{Agent: config.AgentConfig{EnabledBuiltins: []string{"read_file", "roll_dice"}}}

	d := config.DiffAgent(old, new)
	if !d.BuiltinsChanged {
		t.Error("expected BuiltinsChanged=true for reordered slice")
	}
}
