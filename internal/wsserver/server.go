// Package wsserver implements C7, the client WebSocket handler: upgrade,
// pre-open control-message buffering, the serial control-message queue,
// ping/pong, and binary audio hand-off (spec §4.7).
package wsserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/voxrelay/voxrelay/internal/observe"
	"github.com/voxrelay/voxrelay/internal/session"
)

// SessionFactory builds a new Session for one connection. id is a freshly
// generated, opaque session identifier; sink is the connection's ClientSink.
type SessionFactory func(id string, sink session.ClientSink) *session.Session

// Server accepts client WebSocket connections at /session, creates one
// [session.Session] per connection, and tears it down on close.
type Server struct {
	newSession SessionFactory
	log        *slog.Logger
	metrics    *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*connection
}

// New constructs a Server. factory is called once per accepted connection.
// metrics may be nil, in which case the active-session gauge is not
// recorded (tests that don't care about metrics pass nil).
func New(factory SessionFactory, log *slog.Logger, metrics *observe.Metrics) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		newSession: factory,
		log:        log,
		metrics:    metrics,
		sessions:   make(map[string]*connection),
	}
}

// ActiveSessions returns the number of currently connected sessions.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Handler returns the HTTP handler serving the /session WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/session", s.handleSession)
	return mux
}

// handleSession upgrades the request to a WebSocket and drives the
// connection until it closes. A non-upgrade GET yields HTTP 400, per
// spec §6 ("Upgrade required").
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// websocket.Accept has already written the appropriate error
		// response (400 for a non-upgrade request) by the time it returns.
		return
	}

	id := uuid.NewString()
	conn := newConnection(id, wsConn, s.newSession, s.log.With("session_id", id))

	s.mu.Lock()
	s.sessions[id] = conn
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(context.Background(), 1)
	}

	conn.run(r.Context())

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(context.Background(), -1)
	}
}

// Shutdown stops every active session and waits for their connections to
// close. It does not stop accepting new connections; callers should stop
// the HTTP server first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	conns := make([]*connection, 0, len(s.sessions))
	for _, c := range s.sessions {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.closeForShutdown()
	}

	done := make(chan struct{})
	go func() {
		for _, c := range conns {
			<-c.closed
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wsserver: shutdown: %w", ctx.Err())
	}
}
