// Package mock provides a scripted test double for tts.Pool.
package mock

import (
	"context"
	"sync"

	"github.com/voxrelay/voxrelay/pkg/provider/tts"
)

// Call records a single Synthesize invocation.
type Call struct {
	Cfg  tts.Config
	Text string
}

// Pool is a scripted tts.Pool.
type Pool struct {
	mu sync.Mutex

	// Chunks is delivered to the sink on every Synthesize call, in order.
	Chunks [][]byte

	// Err, if non-nil, is returned by Synthesize instead of delivering Chunks.
	Err error

	// Calls records every Synthesize invocation.
	Calls []Call

	// CloseCallCount counts Close invocations.
	CloseCallCount int
}

// Synthesize implements tts.Pool.
func (p *Pool) Synthesize(ctx context.Context, cfg tts.Config, text string, sink tts.Sink) error {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Cfg: cfg, Text: text})
	err := p.Err
	chunks := p.Chunks
	p.mu.Unlock()

	if err != nil {
		return err
	}
	for _, c := range chunks {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		sink(c)
	}
	return nil
}

// Close implements tts.Pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCallCount++
	return nil
}

var _ tts.Pool = (*Pool)(nil)
