package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/burstbeam/internal/backend"
	"github.com/specialistvlad/burstbeam/internal/inmemorystore"
	"github.com/specialistvlad/burstbeam/internal/nodestore"
	"github.com/specialistvlad/burstbeam/internal/registry"
	"github.com/specialistvlad/burstbeam/internal/runerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	r := registry.New()
	var got backend.Options
	r.RegisterBackend("fake", func(ctx context.Context, opts backend.Options) (backend.Backend, error) {
		got = opts
		return nil, nil
	})

	_, err := r.Open(context.Background(), "fake", backend.Options{"address": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", got["address"])
	assert.Equal(t, []string{"fake"}, r.Backends())
}

func TestOpen_Failures(t *testing.T) {
	r := registry.New()
	boom := errors.New("refused")
	r.RegisterBackend("down", func(ctx context.Context, opts backend.Options) (backend.Backend, error) {
		return nil, boom
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := r.Open(context.Background(), "nope", nil)
		var unavailable *runerr.BackendUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, "nope", unavailable.Backend)
	})

	t.Run("factory error", func(t *testing.T) {
		_, err := r.Open(context.Background(), "down", nil)
		assert.ErrorIs(t, err, boom)
		var unavailable *runerr.BackendUnavailableError
		assert.ErrorAs(t, err, &unavailable)
	})
}

func TestRegisterTwicePanics(t *testing.T) {
	r := registry.New()
	f := func(ctx context.Context, opts backend.Options) (backend.Backend, error) { return nil, nil }
	r.RegisterBackend("a", f)
	assert.Panics(t, func() { r.RegisterBackend("a", f) })
}

func TestOpenStore(t *testing.T) {
	r := registry.New()
	r.RegisterStore("memory", func(ctx context.Context, opts map[string]string, runID string) (nodestore.Store, error) {
		return inmemorystore.New(), nil
	})

	s, err := r.OpenStore(context.Background(), "memory", nil, "run")
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = r.OpenStore(context.Background(), "disk", nil, "run")
	assert.ErrorContains(t, err, `unknown store "disk"`)
}
