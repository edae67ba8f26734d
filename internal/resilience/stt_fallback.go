package resilience

import (
	"context"

	"github.com/voxrelay/voxrelay/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across
// multiple STT backends at connect time. Each backend has its own circuit
// breaker. This is distinct from internal/session's single in-stream
// reconnect: that retries the same upstream once after an unexpected
// close; this tries a different upstream entirely when the first one
// won't even connect.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Connect opens a connection against the first healthy provider, trying
// each registered fallback in order if earlier ones fail.
func (f *STTFallback) Connect(ctx context.Context, cfg stt.Config, sink stt.EventSink) (stt.Handle, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.Handle, error) {
		return p.Connect(ctx, cfg, sink)
	})
}
