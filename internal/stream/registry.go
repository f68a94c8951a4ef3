package stream

import (
	"fmt"
	"sync"
)

// Registry holds every configured price source, keyed by name. One source
// is the default, used by the poll loops and for on-demand quotes.
type Registry struct {
	mu          sync.RWMutex
	order       []string
	sources     map[string]Source
	defaultName string
}

// NewRegistry creates an empty source registry
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source. Names must be unique.
func (r *Registry) Register(src Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := src.Name()
	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("source %q already registered", name)
	}
	r.sources[name] = src
	r.order = append(r.order, name)
	return nil
}

// SetDefault marks a registered source as the default
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; !exists {
		return fmt.Errorf("source %q not registered", name)
	}
	r.defaultName = name
	return nil
}

// Default returns the default source, or nil when none is set
func (r *Registry) Default() Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[r.defaultName]
}

// Get looks up a source by name
func (r *Registry) Get(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[name]
	return src, ok
}

// All returns every source in registration order
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sources[name])
	}
	return out
}

// RealtimeSources returns the real-time sources in registration order
func (r *Registry) RealtimeSources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		if src := r.sources[name]; src.Realtime() {
			out = append(out, src)
		}
	}
	return out
}
