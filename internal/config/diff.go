package config

// AgentDiff describes what changed in the agent's hot-reloadable fields
// between two configs. The teacher compared a list of NPCs keyed by name;
// with a single agent per deployment there's exactly one comparison to
// make.
type AgentDiff struct {
	InstructionsChanged bool
	GreetingChanged     bool
	VoiceChanged        bool
	STTPromptChanged    bool
	BuiltinsChanged     bool
}

// Changed reports whether any field differs.
func (d AgentDiff) Changed() bool {
	return d.InstructionsChanged || d.GreetingChanged || d.VoiceChanged ||
		d.STTPromptChanged || d.BuiltinsChanged
}

// DiffAgent compares the agent section of old and new, reporting only
// fields safe to apply to a running server without dropping active
// sessions (spec §3/§6: the agent persona, not the provider wiring, is
// what the YAML overlay is meant to hot-reload).
func DiffAgent(old, new Config) AgentDiff {
	return AgentDiff{
		InstructionsChanged: old.Agent.Instructions != new.Agent.Instructions,
		GreetingChanged:     old.Agent.Greeting != new.Agent.Greeting,
		VoiceChanged:        old.Agent.Voice != new.Agent.Voice,
		STTPromptChanged:    old.Agent.STTPrompt != new.Agent.STTPrompt,
		BuiltinsChanged:     !slicesEqual(old.Agent.EnabledBuiltins, new.Agent.EnabledBuiltins),
	}
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
