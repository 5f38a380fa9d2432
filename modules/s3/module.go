package s3

import (
	"context"

	"github.com/specialistvlad/burstbeam/internal/nodestore"
	"github.com/specialistvlad/burstbeam/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the "s3" run store.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStore("s3", func(ctx context.Context, opts map[string]string, runID string) (nodestore.Store, error) {
		cfg, err := ConfigFromOptions(opts)
		if err != nil {
			return nil, err
		}
		b, err := New(ctx, cfg, runID)
		if err != nil {
			return nil, err
		}
		return b, nil
	})
}
