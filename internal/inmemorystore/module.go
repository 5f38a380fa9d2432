package inmemorystore

import (
	"context"

	"github.com/specialistvlad/burstbeam/internal/nodestore"
	"github.com/specialistvlad/burstbeam/internal/registry"
)

// Module registers the in-memory store as "memory".
type Module struct{}

// Register implements registry.Module.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStore("memory", func(ctx context.Context, opts map[string]string, runID string) (nodestore.Store, error) {
		return New(), nil
	})
}
