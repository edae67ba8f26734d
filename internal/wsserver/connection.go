package wsserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/voxrelay/voxrelay/internal/session"
	"github.com/voxrelay/voxrelay/pkg/protocol"
)

// connection drives one client WebSocket from accept to close. It
// implements [session.ClientSink] directly, so the session writes frames
// straight back through the same connection that owns it.
//
// Two locks protect different concerns: mu guards the small bits of state
// (has the session finished starting? what's buffered?) and is never held
// across a blocking call; dispatchMu serializes the actual calls into the
// session (audio_ready/cancel/reset), including the one-time replay of
// whatever arrived before the session was ready, so control messages are
// always applied in arrival order (spec §4.7).
type connection struct {
	id         string
	ws         *websocket.Conn
	newSession SessionFactory
	log        *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	sess    *session.Session
	ready   bool
	pending []string

	dispatchMu sync.Mutex

	closed chan struct{}
}

func newConnection(id string, ws *websocket.Conn, factory SessionFactory, log *slog.Logger) *connection {
	return &connection{
		id:         id,
		ws:         ws,
		newSession: factory,
		log:        log,
		closed:     make(chan struct{}),
	}
}

// run drives the connection until the client disconnects or the context is
// cancelled. It returns once teardown (session stop, socket close) is done.
func (c *connection) run(ctx context.Context) {
	defer close(c.closed)
	go c.setupSession(ctx)

	c.readLoop(ctx)

	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess != nil {
		sess.Stop()
	}
	_ = c.ws.Close(websocket.StatusNormalClosure, "")
}

// closeForShutdown closes the underlying socket, causing run's read loop to
// unblock and tear the session down.
func (c *connection) closeForShutdown() {
	_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
}

// setupSession creates and starts the session, then replays, in order,
// whatever control messages arrived before it was ready (spec §4.7 "on
// open: create and start the session; replay buffered control messages").
func (c *connection) setupSession(ctx context.Context) {
	sess := c.newSession(c.id, c)
	if err := sess.Start(ctx); err != nil {
		c.log.Error("session start failed", "err", err)
		_ = c.ws.Close(websocket.StatusInternalError, "session start failed")
		return
	}

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	c.sess = sess
	c.ready = true
	buffered := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, typ := range buffered {
		c.callSession(sess, typ)
	}
}

// readLoop reads frames until the socket closes. Binary frames and text
// control messages are each handled inline; since this is the connection's
// only reader, ordering between them is preserved for free.
func (c *connection) readLoop(ctx context.Context) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}
		switch typ {
		case websocket.MessageBinary:
			c.handleBinary(data)
		case websocket.MessageText:
			c.handleText(data)
		}
	}
}

// handleBinary forwards microphone audio to the session, once it exists.
// A binary frame that arrives before the session is ready is dropped per
// spec §8's boundary behaviour.
func (c *connection) handleBinary(data []byte) {
	c.mu.Lock()
	sess := c.sess
	ready := c.ready
	c.mu.Unlock()
	if !ready {
		return
	}
	sess.OnAudio(data)
}

// handleText parses one JSON control frame and either answers a ping
// immediately, buffers the message (pre-open), or dispatches it (ready).
func (c *connection) handleText(data []byte) {
	var msg protocol.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Debug("malformed client message, ignoring", "err", err)
		return
	}

	if msg.Type == protocol.ClientPing {
		// Answered regardless of session state (spec §4.7).
		_ = c.Send(protocol.NewPong())
		return
	}

	c.mu.Lock()
	if !c.ready {
		c.pending = append(c.pending, msg.Type)
		c.mu.Unlock()
		return
	}
	sess := c.sess
	c.mu.Unlock()

	c.dispatchMu.Lock()
	c.callSession(sess, msg.Type)
	c.dispatchMu.Unlock()
}

// callSession applies one control message's effect. Unknown JSON types are
// ignored (spec §4.7: "unknown JSON → ignore").
func (c *connection) callSession(sess *session.Session, typ string) {
	switch typ {
	case protocol.ClientAudioReady:
		sess.OnAudioReady()
	case protocol.ClientCancel:
		sess.OnCancel()
	case protocol.ClientReset:
		sess.OnReset()
	default:
		c.log.Debug("unknown client message type, ignoring", "type", typ)
	}
}

// Send implements session.ClientSink: marshal msg as JSON and write it as a
// text frame.
func (c *connection) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.Write(context.Background(), websocket.MessageText, data)
}

// SendAudio implements session.ClientSink: write chunk as a binary frame.
func (c *connection) SendAudio(chunk []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.Write(context.Background(), websocket.MessageBinary, chunk)
}
