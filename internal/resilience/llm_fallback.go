package resilience

import (
	"context"

	"github.com/voxrelay/voxrelay/pkg/provider/llm"
)

// LLMFallback implements [llm.Caller] with automatic failover across
// multiple LLM backends (e.g. the default gateway and an any-llm-go
// vendor). Each backend has its own circuit breaker; when the primary
// fails or its breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Caller]
}

var _ llm.Caller = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Caller, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional LLM caller as a fallback.
func (f *LLMFallback) AddFallback(name string, caller llm.Caller) {
	f.group.AddFallback(name, caller)
}

// Complete sends req to the first healthy backend and returns its response,
// trying each registered fallback in order if earlier ones fail.
func (f *LLMFallback) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return ExecuteWithResult(f.group, func(c llm.Caller) (*llm.Response, error) {
		return c.Complete(ctx, req)
	})
}
