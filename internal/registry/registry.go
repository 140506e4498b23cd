// Package registry holds the immutable set of routes the gateway may call.
//
// A Registry is built once from configuration and never mutated, so lookups
// need no locking. The only mutable state hangs off each Route (its rate
// window and in-flight bound) and is scoped to that route.
package registry

import (
	"fmt"
	"sort"

	"github.com/wesleyorama2/horde/internal/config"
)

// Registry maps logical route names to routes.
type Registry struct {
	routes map[string]*Route
	names  []string
}

// FromConfig builds a registry from a validated, defaulted route file.
func FromConfig(f *config.RoutesFile) (*Registry, error) {
	if f == nil || len(f.Routes) == 0 {
		return nil, fmt.Errorf("no routes configured")
	}

	r := &Registry{routes: make(map[string]*Route, len(f.Routes))}
	for name, rc := range f.Routes {
		route, err := newRoute(name, rc)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", name, err)
		}
		r.routes[name] = route
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)

	return r, nil
}

// Load reads a route file and builds a registry from it.
func Load(path string) (*Registry, error) {
	f, err := config.LoadRoutes(path)
	if err != nil {
		return nil, err
	}
	return FromConfig(f)
}

// Resolve returns the route registered under name. The same *Route is
// returned on every call.
func (r *Registry) Resolve(name string) (*Route, bool) {
	route, ok := r.routes[name]
	return route, ok
}

// Routes returns all routes sorted by name.
func (r *Registry) Routes() []*Route {
	out := make([]*Route, len(r.names))
	for i, name := range r.names {
		out[i] = r.routes[name]
	}
	return out
}

// Names returns the sorted route names.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of routes.
func (r *Registry) Len() int {
	return len(r.routes)
}
