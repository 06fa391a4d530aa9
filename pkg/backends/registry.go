// Package backends maps backend-type tags to their plugin
// implementations and hosts the process-wide registry of built-in
// backend types.
package backends

import (
	"fmt"
	"sort"
	"sync"

	"github.com/overcast-cloud/backendctl/pkg/engine"
)

// Registry maps backend-type tags to plugin implementations.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]engine.Backend
}

// NewRegistry creates an empty registry. Tests use isolated instances;
// production code uses the process-wide registry through Init.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]engine.Backend),
	}
}

// Register adds a backend plugin under its type tag. Registering a tag
// twice is a collision error.
func (r *Registry) Register(b engine.Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tag := b.Type()
	if _, ok := r.plugins[tag]; ok {
		return engine.NewConflictError(fmt.Sprintf("backend type %s is already registered", tag), nil)
	}
	r.plugins[tag] = b
	return nil
}

// Resolve returns the plugin registered under the type tag.
func (r *Registry) Resolve(tag string) (engine.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.plugins[tag]
	if !ok {
		return nil, engine.NewNotFoundError(fmt.Sprintf("unknown backend type %s", tag), nil)
	}
	return b, nil
}

// Types returns the registered type tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.plugins))
	for tag := range r.plugins {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Init populates the process-wide registry with the built-in backend
// types and returns it. Calling Init on an already-initialized registry
// returns the existing instance. This and Reset are the only mutations
// of the process-wide table.
func Init() (*Registry, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry != nil {
		return defaultRegistry, nil
	}
	r := NewRegistry()
	for _, b := range builtin() {
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	defaultRegistry = r
	return r, nil
}

// Reset discards the process-wide registry. The next Init rebuilds it.
func Reset() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = nil
}
