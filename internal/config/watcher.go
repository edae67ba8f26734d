package config

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls the agent YAML overlay file for changes and calls a
// callback with the before/after [Config] whenever its content changes. It
// polls rather than using fsnotify to keep dependencies minimal, same as
// the teacher's NPC-bundle watcher.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new Config)

	mu      sync.Mutex
	current Config
	done    chan struct{}
	stop    sync.Once

	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher starts polling the agent overlay file at path (typically
// <BUNDLE_DIR>/agent.yaml) for changes, applying each update on top of
// base. onChange fires, with the lock released, whenever the overlay's
// content changes and the result still validates.
func NewWatcher(path string, base Config, onChange func(old, new Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		current:  base,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	hash, mtime, err := w.loadAndHash()
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: watcher initial load: %w", err)
		}
	} else {
		if err := applyOverlay(&w.current, path); err != nil {
			return nil, fmt.Errorf("config: watcher initial overlay: %w", err)
		}
		if err := w.current.Validate(); err != nil {
			return nil, fmt.Errorf("config: watcher initial overlay: %w", err)
		}
		w.lastHash = hash
		w.lastMtime = mtime
	}

	go w.poll()
	return w, nil
}

// Current returns the most recently applied valid config.
func (w *Watcher) Current() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops the file watcher.
func (w *Watcher) Stop() {
	w.stop.Do(func() { close(w.done) })
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("config watcher: cannot stat overlay", "path", w.path, "err", err)
		}
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()
	if info.ModTime().Equal(mtime) {
		return
	}

	hash, newMtime, err := w.loadAndHash()
	if err != nil {
		slog.Warn("config watcher: failed to load overlay", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if hash == w.lastHash {
		w.lastMtime = newMtime
		w.mu.Unlock()
		return
	}

	old := w.current
	next := old
	if err := applyOverlay(&next, w.path); err != nil {
		w.mu.Unlock()
		slog.Warn("config watcher: overlay apply failed", "path", w.path, "err", err)
		return
	}
	if err := next.Validate(); err != nil {
		w.mu.Unlock()
		slog.Warn("config watcher: reloaded config is invalid, keeping previous", "path", w.path, "err", err)
		return
	}

	w.current = next
	w.lastHash = hash
	w.lastMtime = newMtime
	w.mu.Unlock()

	slog.Info("config watcher: agent overlay reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, next)
	}
}

// loadAndHash hashes the overlay file's raw bytes for change detection; it
// does not parse it (applyOverlay does that once the hash confirms a real
// change).
func (w *Watcher) loadAndHash() ([sha256.Size]byte, time.Time, error) {
	var zeroHash [sha256.Size]byte

	f, err := os.Open(w.path)
	if err != nil {
		return zeroHash, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return zeroHash, time.Time{}, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return zeroHash, time.Time{}, err
	}

	return sha256.Sum256(data), info.ModTime(), nil
}
