// Package plugin keeps the named engine factories a voice agent can be
// configured with. Each engine kind (speech-to-text, text-to-speech, wake
// phrase) has its own Registry; the engine packages themselves live in the
// subdirectories.
package plugin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory builds an engine of type T from settings S.
type Factory[S, T any] func(ctx context.Context, settings S) (T, error)

// Plugin is a registered factory with its metadata.
type Plugin[S, T any] struct {
	Name        string
	Description string
	Factory     Factory[S, T]
}

// Registry maps engine names to factories for one kind of engine.
type Registry[S, T any] struct {
	kind string

	mu      sync.RWMutex
	plugins map[string]*Plugin[S, T]
}

// NewRegistry creates an empty registry. kind appears in error messages.
func NewRegistry[S, T any](kind string) *Registry[S, T] {
	return &Registry[S, T]{
		kind:    kind,
		plugins: make(map[string]*Plugin[S, T]),
	}
}

// Register adds a factory under name.
// Panics if the name is empty, the factory is nil or the name is taken.
func (r *Registry[S, T]) Register(name, description string, factory Factory[S, T]) {
	if name == "" {
		panic("plugin name cannot be empty")
	}
	if factory == nil {
		panic("plugin factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[name]; exists {
		panic(fmt.Sprintf("plugin %s/%s already registered", r.kind, name))
	}
	r.plugins[name] = &Plugin[S, T]{Name: name, Description: description, Factory: factory}
}

// Get returns the factory registered under name.
func (r *Registry[S, T]) Get(name string) (Factory[S, T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[name]
	if !ok {
		return nil, false
	}
	return p.Factory, true
}

// New builds the engine registered under name.
func (r *Registry[S, T]) New(ctx context.Context, name string, settings S) (T, error) {
	factory, ok := r.Get(name)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown %s engine %q (available: %s)", r.kind, name, strings.Join(r.Names(), ", "))
	}
	return factory(ctx, settings)
}

// List returns the registered plugins sorted by name.
func (r *Registry[S, T]) List() []*Plugin[S, T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plugins := make([]*Plugin[S, T], 0, len(r.plugins))
	for _, p := range r.plugins {
		plugins = append(plugins, p)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Name < plugins[j].Name
	})
	return plugins
}

// Names returns the registered names in sorted order.
func (r *Registry[S, T]) Names() []string {
	plugins := r.List()
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Kind returns the engine kind this registry holds.
func (r *Registry[S, T]) Kind() string {
	return r.kind
}
