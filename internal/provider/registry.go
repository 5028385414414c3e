package provider

import (
	"fmt"
	"sync"
)

// Registry maps provider IDs to providers. It is filled once at start-up
// and read concurrently by every LLM client afterwards.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p under its ID. IDs are unique.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.ID()
	if id == "" {
		return fmt.Errorf("provider has no id")
	}
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("provider %q already registered", id)
	}
	r.providers[id] = p
	return nil
}

func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider %q not found", id)
	}
	return p, nil
}

// GetForModel resolves the provider part of ref.
func (r *Registry) GetForModel(ref ModelRef) (Provider, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("model %q has no provider prefix", ref)
	}
	return r.Get(ref.Provider())
}
