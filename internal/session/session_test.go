package session

import (
	"context"
	"testing"
	"time"

	"github.com/specialistvlad/burstbeam/internal/backend"
	"github.com/specialistvlad/burstbeam/internal/graph"
	"github.com/specialistvlad/burstbeam/internal/inmemorystore"
	"github.com/specialistvlad/burstbeam/internal/nodestore"
	"github.com/specialistvlad/burstbeam/internal/pipeline"
	"github.com/specialistvlad/burstbeam/internal/registry"
	"github.com/specialistvlad/burstbeam/internal/runerr"
	"github.com/specialistvlad/burstbeam/internal/scheduler"
	"github.com/specialistvlad/burstbeam/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type fixture struct {
	reg   *registry.Registry
	be    *testutil.ManualBackend
	store nodestore.Store
	ix    *graph.Index
	runs  []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p := pipeline.New()
	a := p.Apply("a", pipeline.Create(cty.True))
	p.Apply("b", pipeline.NoOp(), a)
	ix, err := graph.Build(context.Background(), p)
	require.NoError(t, err)

	f := &fixture{reg: registry.New(), be: testutil.NewManualBackend(8), store: inmemorystore.New(), ix: ix}
	f.reg.RegisterBackend("manual", func(ctx context.Context, opts backend.Options) (backend.Backend, error) {
		return f.be, nil
	})
	f.reg.RegisterStore("fixed", func(ctx context.Context, opts map[string]string, runID string) (nodestore.Store, error) {
		f.runs = append(f.runs, runID)
		return f.store, nil
	})
	return f
}

func (f *fixture) options() Options {
	return Options{BackendName: "manual", StoreName: "fixed"}
}

func TestSession_Run(t *testing.T) {
	f := newFixture(t)
	sess, err := Open(context.Background(), f.reg, f.ix, f.options())
	require.NoError(t, err)
	require.Len(t, f.runs, 1)
	assert.Equal(t, f.runs[0], sess.RunID())
	assert.NotEmpty(t, sess.RunID())
	assert.Same(t, f.store, sess.Store())

	go func() {
		for task := range f.be.Submitted {
			f.be.Complete(task.Step, cty.True)
			if task.Label == "b" {
				return
			}
		}
	}()

	outcome, err := sess.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scheduler.Succeeded, outcome.Kind)
	require.NoError(t, sess.Close(context.Background()))
	require.NoError(t, sess.Close(context.Background()))
	assert.Equal(t, 1, f.be.Shutdowns())
}

func TestSession_Resume(t *testing.T) {
	f := newFixture(t)
	a, _ := f.ix.StepByLabel("a")
	require.NoError(t, f.store.SetOutput(context.Background(), a.Name(), []cty.Value{cty.False}))

	opts := f.options()
	opts.ResumeRunID = "run-42"
	sess, err := Open(context.Background(), f.reg, f.ix, opts)
	require.NoError(t, err)
	defer func() { _ = sess.Close(context.Background()) }()
	assert.Equal(t, "run-42", sess.RunID())
	assert.Equal(t, []string{"run-42"}, f.runs)

	done := make(chan scheduler.Outcome, 1)
	go func() {
		o, _ := sess.Run(context.Background())
		done <- o
	}()

	select {
	case task := <-f.be.Submitted:
		assert.Equal(t, "b", task.Label, "recorded step is not submitted")
		require.Len(t, task.Inputs, 1)
		assert.True(t, task.Inputs[0][0].False())
		f.be.Complete(task.Step)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for b")
	}

	select {
	case o := <-done:
		assert.Equal(t, scheduler.Succeeded, o.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

func TestSession_OpenErrors(t *testing.T) {
	f := newFixture(t)

	opts := f.options()
	opts.StoreName = "nope"
	_, err := Open(context.Background(), f.reg, f.ix, opts)
	assert.ErrorContains(t, err, `unknown store "nope"`)

	opts = f.options()
	opts.BackendName = "nope"
	_, err = Open(context.Background(), f.reg, f.ix, opts)
	var unavailable *runerr.BackendUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "nope", unavailable.Backend)
}

func TestSession_CloseBeforeRun(t *testing.T) {
	f := newFixture(t)
	sess, err := Open(context.Background(), f.reg, f.ix, f.options())
	require.NoError(t, err)

	require.NoError(t, sess.Close(context.Background()))
	assert.Equal(t, 1, f.be.Shutdowns())

	_, err = sess.Run(context.Background())
	assert.ErrorIs(t, err, runerr.ErrShutdown)
}
