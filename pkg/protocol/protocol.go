// Package protocol defines the wire messages exchanged on the client
// WebSocket, the session state machine, and the platform-wide sampling
// defaults shared by every other package in voxrelay.
//
// Client → server frames are either a text frame carrying one of the
// [ClientMessage] types below, or a binary frame carrying raw PCM16 audio.
// Server → client frames mirror that shape with the [ServerMessage] types.
package protocol

const (
	// ClientAudioReady is sent once the browser's audio pipeline is armed and
	// ready to play back synthesized speech.
	ClientAudioReady = "audio_ready"
	// ClientCancel requests a barge-in: abort the in-flight chat/TTS turn.
	ClientCancel = "cancel"
	// ClientReset requests the transcript be truncated back to the system
	// message and the greeting replayed.
	ClientReset = "reset"
	// ClientPing is a liveness probe, answered with ServerPong even before
	// the session reaches ready.
	ClientPing = "ping"
)

const (
	// ServerReady is the first frame of every session, carrying the
	// negotiated sample rates.
	ServerReady = "ready"
	// ServerGreeting carries the agent's opening line, emitted once after
	// the first audio_ready.
	ServerGreeting = "greeting"
	// ServerTranscript carries an interim or final STT result.
	ServerTranscript = "transcript"
	// ServerTurn announces a completed user utterance about to be processed.
	ServerTurn = "turn"
	// ServerThinking announces that a turn has begun executing.
	ServerThinking = "thinking"
	// ServerChat carries the assistant's final turn text and the tool steps
	// taken to produce it.
	ServerChat = "chat"
	// ServerTTSDone marks the end of an utterance's audio stream.
	ServerTTSDone = "tts_done"
	// ServerCancelled acknowledges a barge-in once TTS has fully aborted.
	ServerCancelled = "cancelled"
	// ServerReset acknowledges a reset once the transcript has been truncated.
	ServerReset = "reset"
	// ServerPong answers ClientPing.
	ServerPong = "pong"
	// ServerError carries a non-fatal error description; the session
	// continues afterward.
	ServerError = "error"
)

// Error message strings fixed by the error-handling design (spec §7). These
// are matched verbatim by clients, so they must never be reworded in place.
const (
	ErrSTTConnectFailed  = "Failed to connect to speech recognition"
	ErrSTTDisconnected   = "Speech recognition disconnected"
	ErrChatFailed        = "Chat failed"
	ErrTTSFailed         = "TTS synthesis failed"
	FallbackChatResponse = "Sorry, I couldn't generate a response."
)

// Sample rates negotiated for every session: 16 kHz mono PCM16 from the
// client, 24 kHz mono PCM16 from the server.
const (
	STTSampleRateHz = 16000
	TTSSampleRateHz = 24000
)

// ClientMessage is the decoded form of an incoming text frame. Only Type is
// guaranteed to be set; other fields are populated depending on Type, but
// none of the current client message types carry a payload beyond Type.
type ClientMessage struct {
	Type string `json:"type"`
}

// ReadyPayload is the body of a ServerReady frame.
type ReadyPayload struct {
	Type          string `json:"type"`
	SampleRate    int    `json:"sampleRate"`
	TTSSampleRate int    `json:"ttsSampleRate"`
}

// NewReady builds a ServerReady frame with the platform's negotiated rates.
func NewReady() ReadyPayload {
	return ReadyPayload{Type: ServerReady, SampleRate: STTSampleRateHz, TTSSampleRate: TTSSampleRateHz}
}

// GreetingPayload is the body of a ServerGreeting frame.
type GreetingPayload struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewGreeting builds a ServerGreeting frame.
func NewGreeting(text string) GreetingPayload {
	return GreetingPayload{Type: ServerGreeting, Text: text}
}

// TranscriptPayload is the body of a ServerTranscript frame.
type TranscriptPayload struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// NewTranscript builds a ServerTranscript frame.
func NewTranscript(text string, final bool) TranscriptPayload {
	return TranscriptPayload{Type: ServerTranscript, Text: text, Final: final}
}

// TurnPayload is the body of a ServerTurn frame.
type TurnPayload struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewTurn builds a ServerTurn frame.
func NewTurn(text string) TurnPayload {
	return TurnPayload{Type: ServerTurn, Text: text}
}

// ThinkingPayload is the body of a ServerThinking frame; it carries no fields
// beyond Type.
type ThinkingPayload struct {
	Type string `json:"type"`
}

// NewThinking builds a ServerThinking frame.
func NewThinking() ThinkingPayload { return ThinkingPayload{Type: ServerThinking} }

// ChatPayload is the body of a ServerChat frame.
type ChatPayload struct {
	Type  string   `json:"type"`
	Text  string   `json:"text"`
	Steps []string `json:"steps"`
}

// NewChat builds a ServerChat frame.
func NewChat(text string, steps []string) ChatPayload {
	if steps == nil {
		steps = []string{}
	}
	return ChatPayload{Type: ServerChat, Text: text, Steps: steps}
}

// simplePayload is the shared body shape for frames that carry only Type.
type simplePayload struct {
	Type string `json:"type"`
}

// NewTTSDone builds a ServerTTSDone frame.
func NewTTSDone() any { return simplePayload{Type: ServerTTSDone} }

// NewCancelled builds a ServerCancelled frame.
func NewCancelled() any { return simplePayload{Type: ServerCancelled} }

// NewReset builds a ServerReset frame.
func NewReset() any { return simplePayload{Type: ServerReset} }

// NewPong builds a ServerPong frame.
func NewPong() any { return simplePayload{Type: ServerPong} }

// ErrorPayload is the body of a ServerError frame.
type ErrorPayload struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// NewError builds a ServerError frame.
func NewError(message string, details ...string) ErrorPayload {
	return ErrorPayload{Type: ServerError, Message: message, Details: details}
}
