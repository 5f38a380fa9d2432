package local

import (
	"context"

	"github.com/specialistvlad/burstbeam/internal/backend"
	"github.com/specialistvlad/burstbeam/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the "local" backend.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterBackend("local", func(ctx context.Context, opts backend.Options) (backend.Backend, error) {
		cfg, err := ConfigFromOptions(opts)
		if err != nil {
			return nil, err
		}
		return New(ctx, cfg), nil
	})
}
