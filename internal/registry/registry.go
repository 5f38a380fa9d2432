package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/specialistvlad/burstbeam/internal/backend"
	"github.com/specialistvlad/burstbeam/internal/ctxlog"
	"github.com/specialistvlad/burstbeam/internal/nodestore"
	"github.com/specialistvlad/burstbeam/internal/runerr"
)

// Module is the interface that all core modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// BackendFactory opens a backend connection.
type BackendFactory func(ctx context.Context, opts backend.Options) (backend.Backend, error)

// StoreFactory opens the store of one run.
type StoreFactory func(ctx context.Context, opts map[string]string, runID string) (nodestore.Store, error)

// Registry holds the backend and store factories of a single application
// instance.
type Registry struct {
	backends map[string]BackendFactory
	stores   map[string]StoreFactory
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		backends: make(map[string]BackendFactory),
		stores:   make(map[string]StoreFactory),
	}
}

// RegisterBackend registers a backend factory under name.
func (r *Registry) RegisterBackend(name string, f BackendFactory) {
	if _, exists := r.backends[name]; exists {
		panic(fmt.Sprintf("backend with name '%s' already registered", name))
	}
	slog.Debug("Registering backend.", "name", name)
	r.backends[name] = f
}

// RegisterStore registers a store factory under name.
func (r *Registry) RegisterStore(name string, f StoreFactory) {
	if _, exists := r.stores[name]; exists {
		panic(fmt.Sprintf("store with name '%s' already registered", name))
	}
	slog.Debug("Registering store.", "name", name)
	r.stores[name] = f
}

// Backends returns the registered backend names, sorted.
func (r *Registry) Backends() []string { return sortedKeys(r.backends) }

// Stores returns the registered store names, sorted.
func (r *Registry) Stores() []string { return sortedKeys(r.stores) }

// Open connects to the named backend. Unknown names and connection failures
// are reported as *runerr.BackendUnavailableError.
func (r *Registry) Open(ctx context.Context, name string, opts backend.Options) (backend.Backend, error) {
	f, ok := r.backends[name]
	if !ok {
		return nil, &runerr.BackendUnavailableError{Backend: name, Err: fmt.Errorf("unknown backend (registered: %v)", r.Backends())}
	}
	ctxlog.FromContext(ctx).Debug("Opening backend.", "name", name, "options", len(opts))
	b, err := f(ctx, opts)
	if err != nil {
		return nil, &runerr.BackendUnavailableError{Backend: name, Err: err}
	}
	return b, nil
}

// OpenStore opens the named store for runID.
func (r *Registry) OpenStore(ctx context.Context, name string, opts map[string]string, runID string) (nodestore.Store, error) {
	f, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("unknown store %q (registered: %v)", name, r.Stores())
	}
	s, err := f(ctx, opts, runID)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", name, err)
	}
	return s, nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
