// Package mock provides a test double for llm.Caller.
package mock

import (
	"context"
	"sync"

	"github.com/voxrelay/voxrelay/pkg/provider/llm"
)

// Caller is a scripted llm.Caller: each call to Complete pops the next
// entry from Responses (or repeats the last one if Responses is
// exhausted and Repeat is true). Safe for concurrent use.
type Caller struct {
	mu sync.Mutex

	// Responses is consumed in order, one per Complete call.
	Responses []Response

	// Repeat makes the last Responses entry repeat forever instead of
	// falling back to a bare "stop" response once Responses is exhausted.
	Repeat bool

	// Calls records every request passed to Complete, in order.
	Calls []llm.Request

	next int
}

// Response is a scripted outcome for one Complete call.
type Response struct {
	Resp *llm.Response
	Err  error
}

// Complete implements llm.Caller.
func (c *Caller) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Calls = append(c.Calls, req)

	idx := c.next
	if idx >= len(c.Responses) {
		if c.Repeat && len(c.Responses) > 0 {
			idx = len(c.Responses) - 1
		} else {
			return &llm.Response{FinishReason: "stop"}, nil
		}
	} else {
		c.next++
	}

	r := c.Responses[idx]
	return r.Resp, r.Err
}

var _ llm.Caller = (*Caller)(nil)
