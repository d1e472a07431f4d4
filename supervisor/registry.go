package supervisor

import (
	"context"
	"sync"

	"whatsapp-session-keeper/types"
)

// Registry holds the supervisor for each bot identity. One process
// normally runs a single identity, but nothing downstream assumes it.
type Registry struct {
	mu   sync.RWMutex
	sups map[types.BotIdentity]*Supervisor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sups: make(map[types.BotIdentity]*Supervisor)}
}

// Add registers a supervisor under its identity, replacing any previous
// entry.
func (r *Registry) Add(s *Supervisor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sups[s.Identity()] = s
}

// Get returns the supervisor for identity, if registered.
func (r *Registry) Get(identity types.BotIdentity) (*Supervisor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sups[identity]
	return s, ok
}

// List returns all registered supervisors.
func (r *Registry) List() []*Supervisor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Supervisor, 0, len(r.sups))
	for _, s := range r.sups {
		out = append(out, s)
	}
	return out
}

// ShutdownAll stops every registered supervisor, each with its own final
// backup pass, sharing the caller's deadline.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	var firstErr error
	for _, s := range r.List() {
		if err := s.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
