package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/voxrelay/voxrelay/internal/config"
)

const watcherValidOverlay = `
agent:
  greeting: "hi there"
`

const watcherUpdatedOverlay = `
agent:
  greeting: "howdy"
`

const watcherInvalidOverlay = `
agent: [this is not a map]
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

func baseWatcherConfig() config.Config {
	return config.Config{
		Server:    config.ServerConfig{ListenAddr: ":3000", LogLevel: config.LogLevelInfo},
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{APIKey: "k"}, STT: config.ProviderEntry{APIKey: "k"}, TTS: config.ProviderEntry{APIKey: "k"}},
		Agent:     config.AgentConfig{Greeting: "default greeting", Voice: "v1"},
	}
}

func TestWatcher_InitialLoadAppliesExistingOverlay(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	writeFile(t, path, watcherValidOverlay)

	w, err := config.NewWatcher(path, baseWatcherConfig(), nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Agent.Greeting; got != "hi there" {
		t.Errorf("expected overlay applied at construction, got %q", got)
	}
}

func TestWatcher_InitialLoadFailsOnMalformedOverlay(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	writeFile(t, path, watcherInvalidOverlay)

	if _, err := config.NewWatcher(path, baseWatcherConfig(), nil, config.WithInterval(50*time.Millisecond)); err == nil {
		t.Fatal("expected error for malformed overlay at construction")
	}
}

func TestWatcher_NoOverlayFileKeepsBase(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")

	w, err := config.NewWatcher(path, baseWatcherConfig(), nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Agent.Greeting; got != "default greeting" {
		t.Errorf("expected base greeting when no overlay exists, got %q", got)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	writeFile(t, path, watcherValidOverlay)

	var mu sync.Mutex
	var callbackOld, callbackNew config.Config
	called := make(chan struct{}, 1)

	w, err := config.NewWatcher(path, baseWatcherConfig(), func(old, new config.Config) {
		mu.Lock()
		callbackOld, callbackNew = old, new
		mu.Unlock()
		select {
		case called <- struct{}{}:
		default:
		}
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, watcherUpdatedOverlay)

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if callbackOld.Agent.Greeting != "hi there" {
		t.Errorf("old greeting: got %q, want hi there", callbackOld.Agent.Greeting)
	}
	if callbackNew.Agent.Greeting != "howdy" {
		t.Errorf("new greeting: got %q", callbackNew.Agent.Greeting)
	}

	if cur := w.Current().Agent.Greeting; cur != "howdy" {
		t.Errorf("Current(): got %q, want howdy", cur)
	}
}

func TestWatcher_InvalidOverlayKeepsOldConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	writeFile(t, path, watcherValidOverlay)

	callCount := 0
	var mu sync.Mutex

	w, err := config.NewWatcher(path, baseWatcherConfig(), func(old, new config.Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, watcherInvalidOverlay)
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	calls := callCount
	mu.Unlock()
	if calls != 0 {
		t.Errorf("callback should not be called for invalid overlay, got %d calls", calls)
	}

	if cur := w.Current().Agent.Greeting; cur != "hi there" {
		t.Errorf("Current() should still be the last valid config, got %q", cur)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")

	w, err := config.NewWatcher(path, baseWatcherConfig(), nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w.Stop()
	w.Stop()
	w.Stop()
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	writeFile(t, path, watcherValidOverlay)

	callCount := 0
	var mu sync.Mutex

	w, err := config.NewWatcher(path, baseWatcherConfig(), func(old, new config.Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("failed to touch file: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	calls := callCount
	mu.Unlock()
	if calls != 0 {
		t.Errorf("callback should not fire for touch-only, got %d calls", calls)
	}
}
