package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/voxrelay/voxrelay/internal/turn"
	"github.com/voxrelay/voxrelay/pkg/protocol"
)

// runTurn drives one completed utterance through C5 and, on success, a TTS
// relay of the resulting text (spec §4.6 "Turn lifecycle").
func (s *Session) runTurn(text string) {
	s.abortInflight()

	turnStart := time.Now()

	_ = s.sink.Send(protocol.NewTurn(text))
	_ = s.sink.Send(protocol.NewThinking())
	s.setState(protocol.StateThinking)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.chatCancel = cancel
	s.chatDone = done
	s.mu.Unlock()
	defer close(done)
	defer cancel()

	s.mu.Lock()
	secrets := s.secrets
	tools := s.tools
	builtin, user := s.builtin, s.user
	model := s.model
	s.mu.Unlock()

	result, err := turn.Run(ctx, s.log, &s.transcript, text, tools, builtin, user, s.llmCaller, model, secrets)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled: return silently, emit nothing further for this turn
			// (spec §4.6 step 4).
			return
		}
		s.log.Error("turn: chat failed", "err", err)
		_ = s.sink.Send(protocol.NewError(protocol.ErrChatFailed))
		s.setState(protocol.StateError)
		return
	}

	_ = s.sink.Send(protocol.NewChat(result.Text, result.Steps))
	s.setState(protocol.StateSpeaking)
	if s.metrics != nil {
		s.metrics.RecordTurnCompleted(context.Background(), s.id)
	}

	if strings.TrimSpace(result.Text) == "" {
		_ = s.sink.Send(protocol.NewTTSDone())
		return
	}
	s.runTTSRelay(result.Text, turnStart)
}

// runTTSRelay synthesizes text and streams the resulting PCM16 chunks to
// the client, tracking its own cancellation signal and completion channel
// (spec §4.3, §4.6 step 5). It never sends tts_done if its own abort signal
// fired; on a transport error it sends a TTS_FAILED error frame instead.
//
// The relay always derives its context from Background, independent of any
// turn's chat context: TTS must remain cancellable even after the chat call
// that produced its text has already completed (spec §3: "both are
// cancellable independently"), and the greeting relay has no owning turn
// at all.
//
// turnStart is the moment runTurn began; the zero value (used by the
// greeting relay, which has no owning turn) disables TurnDuration
// recording. The metric is recorded once, on the first synthesized audio
// chunk, matching its documented meaning: "completed transcript to first
// synthesized audio byte."
func (s *Session) runTTSRelay(text string, turnStart time.Time) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.ttsCancel = cancel
	s.ttsDone = done
	s.mu.Unlock()

	defer close(done)
	defer cancel()

	cfg := s.ttsConfig
	cfg.Voice = s.agent.Voice

	var recordOnce sync.Once
	err := s.ttsPool.Synthesize(ctx, cfg, text, func(chunk []byte) {
		if !turnStart.IsZero() && s.metrics != nil {
			recordOnce.Do(func() {
				s.metrics.TurnDuration.Record(context.Background(), time.Since(turnStart).Seconds())
			})
		}
		_ = s.sink.SendAudio(chunk)
	})

	aborted := ctx.Err() != nil
	if err != nil {
		s.log.Warn("tts: synthesis failed", "err", err)
		_ = s.sink.Send(protocol.NewError(protocol.ErrTTSFailed))
		return
	}
	if aborted {
		// Cancellation path: OnCancel/OnReset/Stop send their own
		// acknowledgement frame once this channel closes.
		return
	}
	_ = s.sink.Send(protocol.NewTTSDone())
}
