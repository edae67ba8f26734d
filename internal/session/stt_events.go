package session

import (
	"context"

	"github.com/voxrelay/voxrelay/pkg/protocol"
)

// Compile-time check that *Session satisfies stt.EventSink's method set.
var _ interface {
	OnTranscript(text string, isFinal bool)
	OnTurn(text string)
	OnError(err error)
	OnClose(code int, reason string)
} = (*Session)(nil)

// OnTranscript forwards an interim STT result to the client.
func (s *Session) OnTranscript(text string, isFinal bool) {
	_ = s.sink.Send(protocol.NewTranscript(text, isFinal))
}

// OnTurn starts a turn for a completed, formatted utterance (spec §4.6).
// The orchestrator tracks exactly one in-flight turn; runTurn itself aborts
// any still-running prior turn before doing anything else.
func (s *Session) OnTurn(text string) {
	go s.runTurn(text)
}

// OnError reports a non-fatal STT transport problem. Decision #2
// (DESIGN.md) adopts the stricter variant: every STT error is surfaced, not
// just a subset.
func (s *Session) OnError(err error) {
	s.log.Warn("stt: transport error", "err", err)
	_ = s.sink.Send(protocol.NewError(protocol.ErrSTTDisconnected))
}

// OnClose handles an unexpected (or final) STT disconnect. If the session
// hasn't been stopped, it attempts exactly one background reconnect;
// otherwise it just clears the handle.
func (s *Session) OnClose(code int, reason string) {
	s.mu.Lock()
	s.sttHandle = nil
	stopped := s.stopped
	s.mu.Unlock()

	s.log.Info("stt: connection closed", "code", code, "reason", reason)

	if stopped {
		return
	}
	go s.reconnectSTT(context.Background())
}
