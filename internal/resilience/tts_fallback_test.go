package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/voxrelay/voxrelay/pkg/provider/tts"
	ttsmock "github.com/voxrelay/voxrelay/pkg/provider/tts/mock"
)

func collectChunks(t *testing.T, run func(tts.Sink) error) [][]byte {
	t.Helper()
	var chunks [][]byte
	if err := run(func(c []byte) { chunks = append(chunks, c) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return chunks
}

func TestTTSFallback_Synthesize_PrimarySuccess(t *testing.T) {
	primary := &ttsmock.Pool{Chunks: [][]byte{[]byte("audio1"), []byte("audio2")}}
	secondary := &ttsmock.Pool{Chunks: [][]byte{[]byte("fallback-audio")}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	chunks := collectChunks(t, func(sink tts.Sink) error {
		return fb.Synthesize(context.Background(), tts.Config{Voice: "v1"}, "hello", sink)
	})
	if len(chunks) != 2 || string(chunks[0]) != "audio1" {
		t.Fatalf("got %v, want [audio1 audio2]", chunks)
	}
	if len(primary.Calls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.Calls))
	}
	if len(secondary.Calls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Calls))
	}
}

func TestTTSFallback_Synthesize_Failover(t *testing.T) {
	primary := &ttsmock.Pool{Err: errors.New("primary down")}
	secondary := &ttsmock.Pool{Chunks: [][]byte{[]byte("fallback-audio")}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	chunks := collectChunks(t, func(sink tts.Sink) error {
		return fb.Synthesize(context.Background(), tts.Config{}, "hello", sink)
	})
	if len(chunks) != 1 || string(chunks[0]) != "fallback-audio" {
		t.Fatalf("got %v, want [fallback-audio]", chunks)
	}
}

func TestTTSFallback_Synthesize_AllFail(t *testing.T) {
	primary := &ttsmock.Pool{Err: errors.New("primary down")}
	secondary := &ttsmock.Pool{Err: errors.New("secondary down")}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	err := fb.Synthesize(context.Background(), tts.Config{}, "hello", func([]byte) {})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTTSFallback_Close_ClosesEveryPool(t *testing.T) {
	primary := &ttsmock.Pool{}
	secondary := &ttsmock.Pool{}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	if err := fb.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.CloseCallCount != 1 {
		t.Errorf("primary.CloseCallCount = %d, want 1", primary.CloseCallCount)
	}
	if secondary.CloseCallCount != 1 {
		t.Errorf("secondary.CloseCallCount = %d, want 1", secondary.CloseCallCount)
	}
}
