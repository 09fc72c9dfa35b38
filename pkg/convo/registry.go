package convo

import (
	"sync"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
)

// Registry holds the read-only set of loaded PromptConfigs. Prompts are
// immutable once loaded.
type Registry struct {
	mu      sync.RWMutex
	prompts map[string]*PromptConfig
}

// NewRegistry builds a Registry seeded with the two built-in prompts
// (general-support, ocint-victim-report) plus any additional configs
// supplied — additional configs with the same ID override a built-in.
func NewRegistry(extra ...PromptConfig) (*Registry, error) {
	r := &Registry{prompts: make(map[string]*PromptConfig)}
	for _, p := range Builtins() {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	for _, p := range extra {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register compiles and stores p, overriding any existing prompt with the
// same ID.
func (r *Registry) Register(p PromptConfig) error {
	if p.ID == "" {
		return coreerr.NewValidationError("id", "must not be empty")
	}
	cp := p
	if err := cp.Compile(); err != nil {
		return err
	}
	r.mu.Lock()
	r.prompts[cp.ID] = &cp
	r.mu.Unlock()
	return nil
}

// Get returns the prompt by id.
func (r *Registry) Get(id string) (*PromptConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prompts[id]
	if !ok {
		return nil, coreerr.NewNotFoundError("prompt", id)
	}
	return p, nil
}

// List returns every loaded prompt's id, for listPrompts().
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.prompts))
	for id := range r.prompts {
		out = append(out, id)
	}
	return out
}
