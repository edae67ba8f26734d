// Package cartesia implements tts.Pool against a Cartesia-shaped streaming
// WebSocket API (spec §4.3, §6): one connection per utterance, a JSON
// configuration frame, per-word text frames, a literal "__END__"
// terminator, and a stream of binary PCM16 chunks.
package cartesia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/voxrelay/voxrelay/pkg/provider/tts"
)

const endMarker = "__END__"

// Option configures a Pool at construction.
type Option func(*Pool)

// WithWSURL overrides the full WebSocket endpoint (default assumes a
// Cartesia-compatible "wss://api.cartesia.ai/tts/websocket").
func WithWSURL(u string) Option { return func(p *Pool) { p.wsURL = u } }

// New builds a Pool and starts warming its first connection in the
// background. apiKey is sent as "Authorization: Api-Key <apiKey>" on every
// dial.
func New(apiKey string, opts ...Option) (*Pool, error) {
	if apiKey == "" {
		return nil, errors.New("cartesia: apiKey must not be empty")
	}
	p := &Pool{
		apiKey: apiKey,
		wsURL:  "wss://api.cartesia.ai/tts/websocket",
	}
	for _, o := range opts {
		o(p)
	}
	p.rewarm()
	return p, nil
}

// pendingConn is a connection attempt in flight or already settled. await
// blocks until the dial completes; ws/err are immutable after that.
type pendingConn struct {
	ready chan struct{}
	ws    *websocket.Conn
	err   error
}

func (pc *pendingConn) await() (*websocket.Conn, error) {
	<-pc.ready
	return pc.ws, pc.err
}

// Pool implements tts.Pool.
type Pool struct {
	apiKey string
	wsURL  string

	mu       sync.Mutex
	warm     *pendingConn
	disposed bool
}

// dial opens one fresh upstream connection.
func (p *Pool) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Api-Key "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, p.wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// rewarm starts dialing the next warm connection in the background unless
// the pool has been disposed.
func (p *Pool) rewarm() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	pc := &pendingConn{ready: make(chan struct{})}
	p.warm = pc
	p.mu.Unlock()

	go func() {
		defer close(pc.ready)
		conn, err := p.dial(context.Background())
		pc.ws, pc.err = conn, err
	}()
}

func (p *Pool) rewarmUnlessDisposed() {
	p.mu.Lock()
	disposed := p.disposed
	p.mu.Unlock()
	if !disposed {
		p.rewarm()
	}
}

// takeWarm removes and returns the current warm connection attempt, if any
// (spec §4.3 step 2: "take the warm connection ... otherwise open a fresh
// one").
func (p *Pool) takeWarm() *pendingConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	pc := p.warm
	p.warm = nil
	return pc
}

// configFrame is the JSON opening frame (spec §6).
type configFrame struct {
	Voice             string  `json:"voice"`
	MaxTokens         int     `json:"max_tokens"`
	BufferSize        int     `json:"buffer_size"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
}

// Synthesize implements tts.Pool.
func (p *Pool) Synthesize(ctx context.Context, cfg tts.Config, text string, sink tts.Sink) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	pc := p.takeWarm()
	var conn *websocket.Conn
	var err error
	if pc != nil {
		conn, err = pc.await()
	} else {
		conn, err = p.dial(ctx)
	}
	if err != nil {
		p.rewarmUnlessDisposed()
		return fmt.Errorf("cartesia: connect: %w", err)
	}
	defer p.rewarmUnlessDisposed()

	frame, err := json.Marshal(configFrame{
		Voice:             cfg.Voice,
		MaxTokens:         cfg.MaxTokens,
		BufferSize:        cfg.BufferSize,
		RepetitionPenalty: cfg.RepetitionPenalty,
		Temperature:       cfg.Temperature,
		TopP:              cfg.TopP,
	})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "bad config")
		return fmt.Errorf("cartesia: marshal config: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return p.handleCancelOrTransport(ctx, conn, err)
	}

	for _, word := range strings.Fields(text) {
		if err := conn.Write(ctx, websocket.MessageText, []byte(word)); err != nil {
			return p.handleCancelOrTransport(ctx, conn, err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(endMarker)); err != nil {
		return p.handleCancelOrTransport(ctx, conn, err)
	}

	return p.readChunks(ctx, conn, sink)
}

// readChunks drains binary frames into sink until the upstream closes, an
// error occurs, or ctx is cancelled (spec §4.3 steps 4-6).
func (p *Pool) readChunks(ctx context.Context, conn *websocket.Conn, sink tts.Sink) error {
	type readResult struct {
		typ websocket.MessageType
		msg []byte
		err error
	}
	resultCh := make(chan readResult, 1)

	for {
		go func() {
			typ, msg, err := conn.Read(ctx)
			resultCh <- readResult{typ, msg, err}
		}()

		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "cancelled")
			<-resultCh // drain the in-flight read before returning
			return nil
		case r := <-resultCh:
			if r.err != nil {
				code := websocket.CloseStatus(r.err)
				if code == websocket.StatusNormalClosure || code == websocket.StatusNoStatusRcvd {
					return nil
				}
				return fmt.Errorf("cartesia: transport error: %w", r.err)
			}
			if r.typ == websocket.MessageBinary {
				sink(r.msg)
			}
		}
	}
}

// handleCancelOrTransport distinguishes a write failure caused by
// cancellation (resolve, no error) from a genuine transport failure
// (reject).
func (p *Pool) handleCancelOrTransport(ctx context.Context, conn *websocket.Conn, writeErr error) error {
	conn.Close(websocket.StatusInternalError, "write failed")
	select {
	case <-ctx.Done():
		return nil
	default:
		return fmt.Errorf("cartesia: write: %w", writeErr)
	}
}

// Close implements tts.Pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.disposed = true
	pc := p.warm
	p.warm = nil
	p.mu.Unlock()

	if pc != nil {
		if conn, err := pc.await(); err == nil && conn != nil {
			conn.Close(websocket.StatusNormalClosure, "pool closed")
		}
	}
	return nil
}

var _ tts.Pool = (*Pool)(nil)
