package socketio

import (
	"context"

	"github.com/specialistvlad/burstbeam/internal/backend"
	"github.com/specialistvlad/burstbeam/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the "socketio" backend.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterBackend("socketio", func(ctx context.Context, opts backend.Options) (backend.Backend, error) {
		cfg, err := ClientConfigFromOptions(opts)
		if err != nil {
			return nil, err
		}
		b, err := Dial(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	})
}
