package scrape

import "sync"

// Registry owns the set of registered plugins for the process
// lifetime. Registration order is significant: Resolve returns the
// first match, and re-registering a name swaps the new plugin into the
// original position instead of moving it to the end.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
}

func NewRegistry() *Registry { return &Registry{} }

// Register adds p under its name, replacing any plugin already
// registered with the same name.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.plugins {
		if existing.Name() == p.Name() {
			r.plugins[i] = p
			return
		}
	}
	r.plugins = append(r.plugins, p)
}

// Resolve returns the first registered plugin that recognises url.
// No match is a normal outcome, not an error.
func (r *Registry) Resolve(url string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plugins {
		if p.CanHandle(url) {
			return p, true
		}
	}
	return nil, false
}

// Get returns the plugin registered under name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plugins {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Plugins returns the registered plugins in registration order.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Sources returns the registered source names in registration order.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.plugins))
	for i, p := range r.plugins {
		names[i] = p.Name()
	}
	return names
}
