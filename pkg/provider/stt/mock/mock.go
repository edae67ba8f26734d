// Package mock provides test doubles for the stt package.
package mock

import (
	"context"
	"sync"

	"github.com/voxrelay/voxrelay/pkg/provider/stt"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	Cfg  stt.Config
	Sink stt.EventSink
}

// Provider is a scripted stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Handle is returned by Connect. If nil, Connect builds a fresh *Handle.
	Handle *Handle

	// ConnectErr, if non-nil, is returned by Connect instead.
	ConnectErr error

	// Calls records every Connect invocation.
	Calls []ConnectCall
}

// Connect implements stt.Provider.
func (p *Provider) Connect(_ context.Context, cfg stt.Config, sink stt.EventSink) (stt.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, ConnectCall{Cfg: cfg, Sink: sink})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Handle != nil {
		p.Handle.sink = sink
		return p.Handle, nil
	}
	return &Handle{sink: sink}, nil
}

var _ stt.Provider = (*Provider)(nil)

// Handle is a scripted stt.Handle that records every Send/Clear/Close call
// and lets tests drive sink callbacks directly (h.Sink().OnTurn(...), etc).
type Handle struct {
	mu sync.Mutex

	sink stt.EventSink

	Sent        [][]byte
	ClearCalls  int
	CloseCalls  int
	CloseErr    error
}

// Send implements stt.Handle.
func (h *Handle) Send(audio []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]byte, len(audio))
	copy(cp, audio)
	h.Sent = append(h.Sent, cp)
}

// Clear implements stt.Handle.
func (h *Handle) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ClearCalls++
}

// Close implements stt.Handle.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CloseCalls++
	return h.CloseErr
}

// Sink exposes the EventSink passed to Connect so tests can simulate
// upstream events (OnTranscript, OnTurn, OnError, OnClose).
func (h *Handle) Sink() stt.EventSink {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sink
}

var _ stt.Handle = (*Handle)(nil)
