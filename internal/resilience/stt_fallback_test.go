package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/voxrelay/voxrelay/pkg/provider/stt"
	sttmock "github.com/voxrelay/voxrelay/pkg/provider/stt/mock"
)

func TestSTTFallback_Connect_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Provider{Handle: &sttmock.Handle{}}
	secondary := &sttmock.Provider{Handle: &sttmock.Handle{}}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	h, err := fb.Connect(context.Background(), stt.Config{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h == nil {
		t.Fatal("expected non-nil handle")
	}
	if len(primary.Calls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.Calls))
	}
	if len(secondary.Calls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Calls))
	}
}

func TestSTTFallback_Connect_Failover(t *testing.T) {
	primary := &sttmock.Provider{ConnectErr: errors.New("primary down")}
	secondary := &sttmock.Provider{Handle: &sttmock.Handle{}}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Connect(context.Background(), stt.Config{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(secondary.Calls) != 1 {
		t.Fatalf("secondary called %d times, want 1", len(secondary.Calls))
	}
}

func TestSTTFallback_Connect_AllFail(t *testing.T) {
	primary := &sttmock.Provider{ConnectErr: errors.New("primary down")}
	secondary := &sttmock.Provider{ConnectErr: errors.New("secondary down")}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Connect(context.Background(), stt.Config{}, nil)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
