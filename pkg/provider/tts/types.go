// Package tts defines the C3 abstraction: a pool of pre-warmed, one-shot
// upstream WebSocket connections that each synthesize exactly one utterance
// (spec §4.3, §6).
package tts

import "context"

// Config carries the per-utterance synthesis parameters sent in the
// upstream's opening configuration frame.
type Config struct {
	Voice             string
	MaxTokens         int
	BufferSize        int
	RepetitionPenalty float64
	Temperature       float64
	TopP              float64
}

// Sink receives PCM16 audio chunks as they arrive, in order.
type Sink func(chunk []byte)

// Pool synthesizes one utterance at a time per call, using a pre-warmed
// connection when one is available to hide connect latency.
type Pool interface {
	// Synthesize sends the configuration frame built from cfg, then text
	// (split on whitespace into word frames), to the upstream, and delivers
	// each binary PCM16 chunk to sink, in arrival order. ctx cancellation is
	// the operation's cancel signal: on cancellation the upstream
	// connection is closed and Synthesize returns nil (never an error) once
	// that close has been observed. A transport error (non-normal close,
	// write/read failure) returns a non-nil error.
	//
	// After Synthesize returns for any reason, the pool begins warming its
	// next connection in the background unless Close has been called.
	Synthesize(ctx context.Context, cfg Config, text string, sink Sink) error

	// Close disposes the pool and closes any warm or in-flight connection.
	// Safe to call more than once.
	Close() error
}
