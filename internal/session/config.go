package session

// AgentConfig is the immutable per-session agent configuration (spec §3):
// name, instructions, greeting, voice identifier, optional STT prompt bias,
// and the set of built-in tool names this agent is allowed to use. The
// user-defined tool bodies themselves live in the Deps.User executor passed
// to New — AgentConfig only names which built-ins are enabled.
type AgentConfig struct {
	// Name identifies the agent in logs; not sent to the client.
	Name string

	// Instructions is the agent-specific system-prompt suffix appended after
	// the platform default (spec §4.6).
	Instructions string

	// Greeting is spoken once, after the first on_audio_ready.
	Greeting string

	// Voice is the TTS voice identifier forwarded in every synthesis config
	// frame.
	Voice string

	// STTPrompt biases STT recognition toward agent-specific vocabulary.
	// Empty means no bias.
	STTPrompt string

	// EnabledBuiltins lists which registered built-in tool names this agent
	// may use. A nil slice means no built-ins are enabled; it does not mean
	// "all" — callers must list every built-in they want offered.
	EnabledBuiltins []string
}

// platformInstructions is prepended to every agent's system prompt
// (spec §4.6: "concatenate the platform's default instructions...").
const platformInstructions = "You are a helpful, friendly voice assistant. Keep replies concise and conversational, as they will be spoken aloud."

// toolUsageReminder is appended only when at least one tool is available.
const toolUsageReminder = "You have access to tools. When you are done — whether or not you used any tools — you must call final_answer with your reply to the user. Never respond without calling final_answer."

// voiceRules is appended to every system prompt regardless of tool
// availability (spec §4.6: "a fixed VOICE_RULES block forbidding markdown,
// lists, code blocks, and tool/search mentions in the spoken output").
const voiceRules = "VOICE_RULES: Your output is converted to speech. Never use markdown, bullet points, numbered lists, code blocks, or emoji. Never mention tools, searches, or function calls by name — speak only the natural-language result."

// buildSystemPrompt assembles the system message content per spec §4.6.
func buildSystemPrompt(cfg AgentConfig, hasTools bool) string {
	parts := []string{platformInstructions}
	if cfg.Instructions != "" {
		parts = append(parts, cfg.Instructions)
	}
	if hasTools {
		parts = append(parts, toolUsageReminder)
	}
	parts = append(parts, voiceRules)

	out := parts[0]
	for _, p := range parts[1:] {
		out += "\n\n" + p
	}
	return out
}
