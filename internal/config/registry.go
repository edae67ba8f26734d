package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voxrelay/voxrelay/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by CreateLLM when no factory has been
// registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps an LLM provider name to its constructor. STT and TTS each
// have exactly one concrete implementation (pkg/provider/stt/assemblyai,
// pkg/provider/tts/cartesia), so unlike the multi-backend teacher registry
// they're constructed directly in cmd/voxrelay and don't need a name-keyed
// factory table. LLM keeps one because C4 ships two interchangeable
// backends: "openaigw" for the default OpenAI-compatible gateway, and
// "anyllm:<vendor>" (e.g. "anyllm:anthropic") to route through any-llm-go.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]func(ProviderEntry) (llm.Caller, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{llm: make(map[string]func(ProviderEntry) (llm.Caller, error))}
}

// RegisterLLM registers an LLM backend factory under name. Subsequent calls
// with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Caller, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// CreateLLM instantiates an LLM caller using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory matches.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Caller, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
