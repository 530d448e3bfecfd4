// Package provider defines search providers and the gateway that calls them.
package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/sells-group/wine-resolver/internal/model"
)

// Provider names.
const (
	NameSerper    = "serper"
	NameGoogleCSE = "google_cse"
	NameBrave     = "brave"
)

// DefaultOrder is the provider order used when none is configured.
var DefaultOrder = []string{NameGoogleCSE, NameBrave, NameSerper}

// Provider is a search backend that returns candidates in the common shape.
type Provider interface {
	// Name returns the provider identifier used in config and cache keys.
	Name() string
	// Available reports whether the provider has the credentials it needs.
	Available() bool
	// Search runs one query.
	Search(ctx context.Context, query string) ([]model.Candidate, error)
}

// Registry manages the configured providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available returns the registered providers from order that have
// credentials, preserving order.
func (r *Registry) Available(order []string) []string {
	var out []string
	for _, name := range order {
		if p := r.Get(name); p != nil && p.Available() {
			out = append(out, name)
		}
	}
	return out
}
