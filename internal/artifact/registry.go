package artifact

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps artifact type names to their helpers. It is explicitly
// constructed and injected into the orchestrator; there is no hidden
// package-level instance, so tests can build isolated registries.
type Registry struct {
	mu      sync.RWMutex
	helpers map[string]Helper
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{helpers: make(map[string]Helper)}
}

// Register adds a helper under its Name. Registering the same name twice
// is a programming error and panics.
func (r *Registry) Register(h Helper) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h == nil {
		panic("artifact: Register called with nil helper")
	}
	if _, exists := r.helpers[h.Name()]; exists {
		panic(fmt.Sprintf("artifact: Register called twice for type %s", h.Name()))
	}
	r.helpers[h.Name()] = h
}

// Lookup returns the helper registered for the type name.
func (r *Registry) Lookup(typeName string) (Helper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.helpers[typeName]
	return h, ok
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.helpers))
	for name := range r.helpers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
