package resilience

import (
	"context"
	"errors"

	"github.com/voxrelay/voxrelay/pkg/provider/tts"
)

// TTSFallback implements [tts.Pool] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker; when the primary
// fails to synthesize, the next healthy fallback is tried for that
// utterance.
type TTSFallback struct {
	group *FallbackGroup[tts.Pool]
}

var _ tts.Pool = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Pool, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional TTS pool as a fallback.
func (f *TTSFallback) AddFallback(name string, pool tts.Pool) {
	f.group.AddFallback(name, pool)
}

// Synthesize speaks text through the first healthy pool, trying each
// registered fallback in order if earlier ones fail. A pool that fails
// after it has already delivered chunks to sink is retried against the
// next pool like any other failure, so sink can receive audio from both.
func (f *TTSFallback) Synthesize(ctx context.Context, cfg tts.Config, text string, sink tts.Sink) error {
	return f.group.Execute(func(p tts.Pool) error {
		return p.Synthesize(ctx, cfg, text, sink)
	})
}

// Close closes every pool in the group — primary and fallbacks alike —
// and joins any errors encountered.
func (f *TTSFallback) Close() error {
	var errs []error
	for i := range f.group.entries {
		if err := f.group.entries[i].value.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
