package inmemorystore

import (
	"context"
	"sync"

	"github.com/specialistvlad/burstbeam/internal/nodestore"
	"github.com/zclconf/go-cty/cty"
)

// Store is an in-memory implementation of nodestore.Store.
type Store struct {
	outputs sync.Map // Key: step name, Value: []cty.Value
	views   sync.Map // Key: view key, Value: cty.Value
}

// New creates a new, empty in-memory store.
func New() nodestore.Store {
	return &Store{}
}

// SetOutput records a copy of the step's output bag.
func (s *Store) SetOutput(ctx context.Context, step string, bag []cty.Value) error {
	s.outputs.Store(step, append([]cty.Value(nil), bag...))
	return nil
}

// GetOutput returns the recorded output bag of a step.
func (s *Store) GetOutput(ctx context.Context, step string) ([]cty.Value, bool, error) {
	bag, ok := s.outputs.Load(step)
	if !ok {
		return nil, false, nil
	}
	return bag.([]cty.Value), true, nil
}

// SetView records a materialized view value.
func (s *Store) SetView(ctx context.Context, key string, v cty.Value) error {
	s.views.Store(key, v)
	return nil
}

// GetView returns a materialized view value.
func (s *Store) GetView(ctx context.Context, key string) (cty.Value, bool, error) {
	v, ok := s.views.Load(key)
	if !ok {
		return cty.NilVal, false, nil
	}
	return v.(cty.Value), true, nil
}
