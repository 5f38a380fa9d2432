package sideinput

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/burstbeam/internal/ctxlog"
	"github.com/specialistvlad/burstbeam/internal/nodestore"
	"github.com/specialistvlad/burstbeam/internal/pipeline"
	"github.com/specialistvlad/burstbeam/internal/runerr"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Materializer computes and caches the views of one run.
type Materializer struct {
	store nodestore.Store
	keys  map[*pipeline.View]string

	group singleflight.Group

	mu    sync.RWMutex
	cache map[*pipeline.View]cty.Value
}

// New returns a materializer for views. Each view gets a run-unique key,
// used for the store and for deduplicating concurrent requests.
func New(views []*pipeline.View, store nodestore.Store) *Materializer {
	m := &Materializer{
		store: store,
		keys:  make(map[*pipeline.View]string, len(views)),
		cache: make(map[*pipeline.View]cty.Value, len(views)),
	}
	for i, v := range views {
		m.keys[v] = fmt.Sprintf("v%d-%s", i, v.Name())
	}
	return m
}

// Key returns the run-unique key of view.
func (m *Materializer) Key(view *pipeline.View) (string, bool) {
	k, ok := m.keys[view]
	return k, ok
}

// Value returns the cached value of a materialized view.
func (m *Materializer) Value(view *pipeline.View) (cty.Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.cache[view]
	return v, ok
}

// Materialize computes view from the bag of its source step and records the
// result. Concurrent callers share one computation; once a view is cached,
// the bag is ignored. Failures are reported as *runerr.SideInputResolutionError.
func (m *Materializer) Materialize(ctx context.Context, view *pipeline.View, bag []cty.Value) (cty.Value, error) {
	if v, ok := m.Value(view); ok {
		return v, nil
	}
	key, ok := m.keys[view]
	if !ok {
		return cty.NilVal, &runerr.SideInputResolutionError{View: view.Name(), Err: fmt.Errorf("view is not part of this run")}
	}

	res, err, shared := m.group.Do(key, func() (any, error) {
		if v, ok := m.Value(view); ok {
			return v, nil
		}
		logger := ctxlog.FromContext(ctx).With("view", view.Name(), "kind", view.Kind())
		logger.Debug("Materializing side input.", "elements", len(bag))

		v, err := Compute(view, bag)
		if err != nil {
			logger.Warn("Side input materialization failed.", "error", err)
			return nil, err
		}
		if m.store != nil {
			if err := m.store.SetView(ctx, key, v); err != nil {
				return nil, fmt.Errorf("record view: %w", err)
			}
		}
		m.mu.Lock()
		m.cache[view] = v
		m.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return cty.NilVal, &runerr.SideInputResolutionError{View: view.Name(), Err: err}
	}
	if shared {
		ctxlog.FromContext(ctx).Debug("Shared side input materialization.", "view", view.Name())
	}
	return res.(cty.Value), nil
}

// MaterializeAll materializes several views of the same source concurrently.
// The returned values align with views. The first failure cancels the rest.
func (m *Materializer) MaterializeAll(ctx context.Context, views []*pipeline.View, bag []cty.Value) ([]cty.Value, error) {
	out := make([]cty.Value, len(views))
	g, gctx := errgroup.WithContext(ctx)
	for i, view := range views {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return &runerr.SideInputResolutionError{View: view.Name(), Err: err}
			}
			v, err := m.Materialize(gctx, view, bag)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
