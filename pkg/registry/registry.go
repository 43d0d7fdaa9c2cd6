package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/arbor/pkg/ports"
)

// Handler defines the signature for a node implementation.
// It receives a private copy of the full state, the capability client the
// node is bound to and the node's options (its kwargs), and returns the
// fields to merge back into the state.
type Handler func(ctx context.Context, state map[string]any, client ports.ModelClient, opts map[string]any) (map[string]any, error)

// Registry manages the available node kinds.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler to the registry.
// If a handler with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// Has reports whether a node kind is registered.
func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[name]
	return fn, ok
}

// Names lists the registered node kinds, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Execute looks up a handler by name and executes it.
// Returns an error if the handler is not found.
func (r *Registry) Execute(ctx context.Context, name string, state map[string]any, client ports.ModelClient, opts map[string]any) (map[string]any, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("node type not found: %s", name)
	}
	return fn(ctx, state, client, opts)
}

// Merge returns a registry holding the handlers of r overlaid with those of
// other.
func (r *Registry) Merge(other *Registry) *Registry {
	out := NewRegistry()
	for _, src := range []*Registry{r, other} {
		if src == nil {
			continue
		}
		src.mu.RLock()
		for name, fn := range src.handlers {
			out.handlers[name] = fn
		}
		src.mu.RUnlock()
	}
	return out
}
