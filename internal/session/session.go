// Package session implements C6, the per-connection orchestrator: it owns
// one client's STT stream, TTS client, and conversation transcript, drives
// C5 for each completed utterance, and enforces the session state machine
// and barge-in/reset/stop semantics (spec §3, §4.6).
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxrelay/voxrelay/internal/observe"
	"github.com/voxrelay/voxrelay/internal/toolhost"
	"github.com/voxrelay/voxrelay/internal/turn"
	"github.com/voxrelay/voxrelay/pkg/protocol"
	"github.com/voxrelay/voxrelay/pkg/provider/llm"
	"github.com/voxrelay/voxrelay/pkg/provider/stt"
	"github.com/voxrelay/voxrelay/pkg/provider/tts"
)

// Deps holds everything a Session needs, injected at construction. Nothing
// here is owned by more than one Session; Providers (STT, TTS, LLM, tool
// executors) are expected to be shared, stateless dispatchers.
type Deps struct {
	ID    string
	Agent AgentConfig

	STT       stt.Provider
	STTConfig stt.Config

	TTS       tts.Pool
	TTSConfig tts.Config

	LLM   llm.Caller
	Model string

	// Builtin and User are the two tool executors C5 dispatches to,
	// built-in first (spec §4.5c). Either may be nil; New substitutes an
	// empty toolhost.Executor so Has/Execute are always safe to call.
	Builtin *toolhost.Executor
	User    *toolhost.Executor

	Secrets map[string]string

	// Metrics records turn/session instrumentation (spec's ambient
	// observability stack). Nil disables recording.
	Metrics *observe.Metrics

	Sink ClientSink
	Log  *slog.Logger
}

// Session is one client connection's runtime. All exported methods are
// safe for concurrent use; internally, serialization of transcript
// mutation is achieved by always waiting for the previous turn/TTS relay to
// fully settle before starting the next one (spec §5's single-turn
// invariant), not by holding a lock across the whole operation.
type Session struct {
	id    string
	agent AgentConfig
	log   *slog.Logger

	sttProvider stt.Provider
	sttConfig   stt.Config
	ttsPool     tts.Pool
	ttsConfig   tts.Config
	llmCaller   llm.Caller
	model       string
	builtin     *toolhost.Executor
	user        *toolhost.Executor
	tools       []llm.ToolDefinition
	secrets     map[string]string
	metrics     *observe.Metrics
	sink        ClientSink

	mu              sync.Mutex
	state           protocol.SessionState
	transcript      []llm.Message
	sttHandle       stt.Handle
	stopped         bool
	greetingPending bool

	chatCancel context.CancelFunc
	chatDone   chan struct{}
	ttsCancel  context.CancelFunc
	ttsDone    chan struct{}
}

// New constructs a Session. It does not perform any I/O; call Start to
// begin the session.
func New(deps Deps) *Session {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	builtin := deps.Builtin
	if builtin == nil {
		builtin = toolhost.New()
	}
	user := deps.User
	if user == nil {
		user = toolhost.New()
	}

	tools := filterDefinitions(builtin.Definitions(), deps.Agent.EnabledBuiltins)
	tools = append(tools, user.Definitions()...)

	sttConfig := deps.STTConfig
	sttConfig.Prompt = deps.Agent.STTPrompt

	systemPrompt := buildSystemPrompt(deps.Agent, len(tools) > 0)

	return &Session{
		id:          deps.ID,
		agent:       deps.Agent,
		log:         log.With("session_id", deps.ID),
		sttProvider: deps.STT,
		sttConfig:   sttConfig,
		ttsPool:     deps.TTS,
		ttsConfig:   deps.TTSConfig,
		llmCaller:   deps.LLM,
		model:       deps.Model,
		builtin:     builtin,
		user:        user,
		tools:       tools,
		secrets:     deps.Secrets,
		metrics:     deps.Metrics,
		sink:        deps.Sink,
		state:       protocol.StateConnecting,
		transcript:  []llm.Message{{Role: "system", Content: systemPrompt}},
	}
}

// filterDefinitions keeps only the definitions in all whose Name is listed
// in enabled.
func filterDefinitions(all []llm.ToolDefinition, enabled []string) []llm.ToolDefinition {
	if len(enabled) == 0 {
		return nil
	}
	want := make(map[string]bool, len(enabled))
	for _, n := range enabled {
		want[n] = true
	}
	out := make([]llm.ToolDefinition, 0, len(enabled))
	for _, d := range all {
		if want[d.Name] {
			out = append(out, d)
		}
	}
	return out
}

// Start sends the ready frame, arms the pending greeting, and connects STT
// in the background (spec §4.6). It returns once the ready frame has been
// sent; STT connection failure is reported asynchronously via an error
// frame, not as a return value.
func (s *Session) Start(ctx context.Context) error {
	if err := s.sink.Send(protocol.NewReady()); err != nil {
		return fmt.Errorf("session: send ready: %w", err)
	}

	s.mu.Lock()
	s.greetingPending = true
	s.mu.Unlock()
	s.setState(protocol.StateReady)

	go s.connectSTT(context.Background())
	return nil
}

// connectSTT opens the STT stream. Failure is reported via an error frame
// (spec §7: "STT connect failed"); it is not auto-recovered within this
// call (the background reconnect only fires on a post-connect close).
func (s *Session) connectSTT(ctx context.Context) {
	if s.sttProvider == nil {
		return
	}
	handle, err := s.sttProvider.Connect(ctx, s.sttConfig, s)
	if err != nil {
		s.log.Error("stt: connect failed", "err", err)
		_ = s.sink.Send(protocol.NewError(protocol.ErrSTTConnectFailed))
		s.setState(protocol.StateError)
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

	s.setState(protocol.StateListening)
}

// OnAudioReady sends the pending greeting and begins its TTS relay.
// Idempotent: subsequent calls are no-ops until the next reset.
func (s *Session) OnAudioReady() {
	s.mu.Lock()
	if !s.greetingPending {
		s.mu.Unlock()
		return
	}
	s.greetingPending = false
	s.mu.Unlock()

	s.speakGreeting()
}

// speakGreeting sends the greeting frame and, if non-empty, starts its TTS
// relay; otherwise it sends tts_done immediately (spec §8: "Empty LLM
// text:... no TTS call" applies equally to an empty greeting).
func (s *Session) speakGreeting() {
	_ = s.sink.Send(protocol.NewGreeting(s.agent.Greeting))
	if strings.TrimSpace(s.agent.Greeting) == "" {
		_ = s.sink.Send(protocol.NewTTSDone())
		return
	}
	s.runTTSRelay(s.agent.Greeting, time.Time{})
}

// OnAudio forwards a microphone chunk to the STT stream, best-effort.
func (s *Session) OnAudio(chunk []byte) {
	s.mu.Lock()
	h := s.sttHandle
	s.mu.Unlock()
	if h != nil {
		h.Send(chunk)
	}
}

// OnCancel implements client-initiated barge-in (spec §4.6): abort the
// in-flight chat and TTS, finalize the STT utterance, and only then
// acknowledge with `cancelled` — guaranteeing no audio chunk of the
// aborted utterance arrives after it.
func (s *Session) OnCancel() {
	s.abortInflight()

	s.mu.Lock()
	h := s.sttHandle
	s.mu.Unlock()
	if h != nil {
		h.Clear()
	}

	_ = s.sink.Send(protocol.NewCancelled())
}

// OnReset implements client-initiated reset: like cancel, plus truncating
// the transcript to the system message and replaying the greeting.
func (s *Session) OnReset() {
	s.abortInflight()

	s.mu.Lock()
	h := s.sttHandle
	s.mu.Unlock()
	if h != nil {
		h.Clear()
	}

	s.mu.Lock()
	s.transcript = s.transcript[:1]
	s.mu.Unlock()

	_ = s.sink.Send(protocol.NewReset())
	s.speakGreeting()
}

// Stop idempotently tears the session down: abort inflight work, await any
// TTS completion, close STT, close the TTS pool. After Stop returns, no
// further frames are sent to the client.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.abortInflight()

	s.mu.Lock()
	h := s.sttHandle
	s.sttHandle = nil
	s.mu.Unlock()
	if h != nil {
		_ = h.Close()
	}
	if s.ttsPool != nil {
		_ = s.ttsPool.Close()
	}
}

// abortInflight cancels any running chat turn and TTS relay, and waits for
// both to fully settle before returning (spec §5: chat, TTS, and
// reset/stop are serialized by the single-turn invariant).
func (s *Session) abortInflight() {
	s.mu.Lock()
	chatCancel, chatDone := s.chatCancel, s.chatDone
	ttsCancel, ttsDone := s.ttsCancel, s.ttsDone
	s.mu.Unlock()

	if chatCancel != nil {
		chatCancel()
	}
	if ttsCancel != nil {
		ttsCancel()
	}
	if ttsDone != nil {
		<-ttsDone
	}
	if chatDone != nil {
		<-chatDone
	}
}

// setState applies a state transition, logging (per spec §9) when the
// transition isn't in the canonical table; the requested state is applied
// regardless.
func (s *Session) setState(to protocol.SessionState) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	if !protocol.ValidTransition(from, to) {
		protocol.LogInvalidTransition(s.log, from, to)
	}
}

// State returns the session's current state.
func (s *Session) State() protocol.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
