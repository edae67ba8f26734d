// Package stt defines the C2 abstraction: a single upstream streaming
// speech-to-text connection with ephemeral-token refresh and four events
// (interim transcript, completed turn, transport error, close).
package stt

import "context"

// Config describes the audio format and recognition parameters for a new
// STT connection (spec §4.2, §6).
type Config struct {
	// SampleRate is the audio sample rate in Hz. The platform default is
	// 16000 (protocol.STTSampleRateHz).
	SampleRate int

	// SpeechModel selects the upstream recognition model.
	SpeechModel string

	// Prompt biases recognition toward agent-specific vocabulary. Empty
	// omits the query parameter entirely.
	Prompt string

	// MinEndOfTurnSilenceMS and MaxTurnSilenceMS tune the upstream's
	// end-of-turn detector (spec §6 defaults: 400 and 1200).
	MinEndOfTurnSilenceMS int
	MaxTurnSilenceMS      int
}

// EventSink receives the four events a connected STT stream may produce.
// Implementations (the session orchestrator, in production) must not block
// for long inside these callbacks — they run on the stream's read loop.
type EventSink interface {
	// OnTranscript reports a low-latency interim result. isFinal reflects
	// the upstream's own end-of-turn hint, but this is not a completed,
	// formatted turn — see OnTurn for that.
	OnTranscript(text string, isFinal bool)

	// OnTurn reports a completed, formatted turn ready to drive C5.
	OnTurn(text string)

	// OnError reports a non-fatal transport problem (e.g. a failed token
	// refresh) that does not by itself terminate the connection.
	OnError(err error)

	// OnClose reports that the upstream connection has closed. code is the
	// WebSocket close code; 1000 is a normal close.
	OnClose(code int, reason string)
}

// Handle is a live, possibly token-refreshed, upstream STT connection.
// Calling any method after Close is safe and a no-op.
type Handle interface {
	// Send best-effort-delivers a PCM16 audio chunk. If the underlying
	// socket is not currently open (e.g. mid-refresh), this is a silent
	// no-op — callers never need to check for backpressure.
	Send(audio []byte)

	// Clear sends the provider's force-end-of-turn control message, used
	// on cancel/reset to terminate any in-progress utterance.
	Clear()

	// Close tears down the connection and cancels any pending refresh.
	// Safe to call more than once.
	Close() error
}

// Provider opens new STT connections.
type Provider interface {
	// Connect fetches an ephemeral token, opens the upstream WebSocket, and
	// returns a Handle that begins delivering events to sink immediately.
	// ctx governs only the initial connect; the returned Handle outlives it.
	Connect(ctx context.Context, cfg Config, sink EventSink) (Handle, error)
}
