package session

import (
	"context"

	"github.com/voxrelay/voxrelay/pkg/protocol"
)

// reconnectSTT performs a single background reconnect attempt against the
// STT provider after an unexpected close, per spec §4.6/§7: "attempt a
// single reconnect... if it fails, session continues degraded." Unlike the
// teacher's exponential-backoff Reconnector (which retried up to
// maxRetries times with growing delay), the spec calls for exactly one
// attempt — a failure is not retried again until the next close event.
func (s *Session) reconnectSTT(ctx context.Context) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped || s.sttProvider == nil {
		return
	}

	s.log.Info("stt: attempting reconnect")
	handle, err := s.sttProvider.Connect(ctx, s.sttConfig, s)
	if err != nil {
		s.log.Warn("stt: reconnect failed, session continues degraded", "err", err)
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = handle.Close()
		return
	}
	s.sttHandle = handle
	s.mu.Unlock()

	s.log.Info("stt: reconnect succeeded")
	s.setState(protocol.StateListening)
}
