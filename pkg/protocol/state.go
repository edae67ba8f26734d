package protocol

import "log/slog"

// SessionState is one of the six states a session's state machine may be in
// (spec §3). The zero value is StateConnecting.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateReady
	StateListening
	StateThinking
	StateSpeaking
	StateError
)

// String returns the lower-case name used in log output.
func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// transitions is the canonical table from spec §3. Any transition not listed
// here is invalid.
var transitions = map[SessionState]map[SessionState]bool{
	StateConnecting: {StateReady: true, StateError: true},
	StateReady:       {StateListening: true, StateError: true, StateConnecting: true},
	StateListening:   {StateThinking: true, StateSpeaking: true, StateError: true, StateConnecting: true},
	StateThinking:    {StateSpeaking: true, StateListening: true, StateError: true, StateConnecting: true},
	StateSpeaking:    {StateListening: true, StateThinking: true, StateError: true, StateConnecting: true},
	StateError:       {StateConnecting: true, StateReady: true},
}

// ValidTransition reports whether moving from `from` to `to` is permitted by
// the canonical table.
func ValidTransition(from, to SessionState) bool {
	return transitions[from][to]
}

// LogInvalidTransition logs an invalid transition at warn level. The caller
// is expected to apply the transition regardless (spec §9: "invalid
// transitions still apply the requested state"); this call is the "logged in
// non-production" half of that rule, gated by the caller on its own
// environment flag.
func LogInvalidTransition(logger *slog.Logger, from, to SessionState) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("invalid session state transition", "from", from.String(), "to", to.String())
}
