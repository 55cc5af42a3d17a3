package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps job kind tags to statically registered job bodies. Kinds are
// resolved at registration time, so an unknown kind is caught when a job is
// added instead of when it fires.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]JobFunc
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[string]JobFunc),
	}
}

// Register binds a job kind to its body. Re-registering a kind replaces the
// previous binding.
func (r *Registry) Register(kind string, fn JobFunc) error {
	if kind == "" {
		return fmt.Errorf("job kind must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("job body for kind %q must not be nil", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = fn
	return nil
}

// Resolve looks up the body for a kind
func (r *Registry) Resolve(kind string) (JobFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.kinds[kind]
	return fn, ok
}

// Kinds returns the registered kind tags, sorted
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
