package session

import (
	"strings"
	"testing"
)

func TestBuildSystemPrompt_WithoutTools(t *testing.T) {
	cfg := AgentConfig{Instructions: "You help with billing questions."}
	prompt := buildSystemPrompt(cfg, false)

	if !strings.Contains(prompt, platformInstructions) {
		t.Error("expected platform instructions to be present")
	}
	if !strings.Contains(prompt, cfg.Instructions) {
		t.Error("expected agent instructions suffix to be present")
	}
	if strings.Contains(prompt, toolUsageReminder) {
		t.Error("expected no tool-usage reminder when no tools are available")
	}
	if !strings.Contains(prompt, voiceRules) {
		t.Error("expected the voice rules block to always be present")
	}
}

func TestBuildSystemPrompt_WithTools(t *testing.T) {
	prompt := buildSystemPrompt(AgentConfig{}, true)

	if !strings.Contains(prompt, toolUsageReminder) {
		t.Error("expected the tool-usage reminder when tools are available")
	}
	if !strings.Contains(prompt, "final_answer") {
		t.Error("expected the tool-usage reminder to mandate final_answer")
	}
}

func TestBuildSystemPrompt_EmptyInstructionsOmitted(t *testing.T) {
	prompt := buildSystemPrompt(AgentConfig{}, false)
	// No blank agent-suffix paragraph should appear: platform instructions
	// followed directly by the voice rules block.
	if strings.Contains(prompt, "\n\n\n") {
		t.Error("expected no stray blank paragraph from an empty instructions suffix")
	}
}
