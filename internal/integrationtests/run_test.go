package integrationtests

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/burstbeam/internal/app"
	"github.com/specialistvlad/burstbeam/internal/backend"
	"github.com/specialistvlad/burstbeam/internal/inmemorystore"
	"github.com/specialistvlad/burstbeam/internal/nodestore"
	"github.com/specialistvlad/burstbeam/internal/registry"
	"github.com/specialistvlad/burstbeam/internal/runerr"
	"github.com/specialistvlad/burstbeam/modules/local"
	"github.com/specialistvlad/burstbeam/modules/socketio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wordCount = `
step "create" "lines" {
  values = ["the cat", "the dog"]
}

step "flat_map" "words" {
  input = step.lines
  expr  = split(" ", item)
}

step "map" "pairs" {
  input = step.words
  expr  = [item, 1]
}

step "group_by_key" "grouped" {
  input = step.pairs
}

step "map" "counts" {
  input = step.grouped
  expr  = [item[0], length(item[1])]
}
`

func TestRun_WordCount(t *testing.T) {
	t.Parallel()
	res := runPipeline(t, map[string]string{"main.hcl": wordCount}, nil)
	require.NoError(t, res.Err, res.Logs)
	require.Len(t, res.Outputs, 1)
	assert.JSONEq(t, `[["the", 2], ["cat", 1], ["dog", 1]]`, string(res.Outputs["counts"]))
	assert.Contains(t, res.Logs, "Run succeeded.")
}

func TestRun_SideInputsAcrossFiles(t *testing.T) {
	t.Parallel()
	files := map[string]string{
		"lookup.hcl": `
step "create" "prices" {
  values = [["apple", 3], ["pear", 5]]
}

step "create" "nothing" {}
`,
		"main.hcl": `
step "create" "basket" {
  values = ["pear", "apple", "pear"]
}

step "map" "priced" {
  input = step.basket
  expr  = side.prices[item] * side.discount

  side_input "prices" {
    from = step.prices
    view = "dict"
  }

  side_input "discount" {
    from    = step.nothing
    view    = "singleton"
    default = tonumber(env.DISCOUNT)
  }
}

step "combine" "total" {
  input = step.priced
  init  = 0
  expr  = acc + item
}
`,
	}
	res := runPipeline(t, files, nil)
	require.NoError(t, res.Err, res.Logs)
	assert.JSONEq(t, `[26]`, string(res.Outputs["total"]))
}

func TestRun_FlattenDiamond(t *testing.T) {
	t.Parallel()
	res := runPipeline(t, map[string]string{"main.hcl": `
step "create" "a" { values = [1, 2] }
step "create" "d" { values = [10] }
step "map" "b" {
  input = step.a
  expr  = item * 100
}
step "flatten" "c" {
  inputs = [step.b, step.d]
}
`}, &app.Config{BackendOptions: map[string]string{"workers": "1"}})
	require.NoError(t, res.Err, res.Logs)
	assert.JSONEq(t, `[100, 200, 10]`, string(res.Outputs["c"]))
}

func TestRun_StepFailure(t *testing.T) {
	t.Parallel()
	res := runPipeline(t, map[string]string{"main.hcl": `
step "create" "a" { values = ["x"] }
step "filter" "bad" {
  input = step.a
  expr  = item
}
step "noop" "after" { input = step.bad }
`}, nil)
	require.Error(t, res.Err)
	var stepErr *runerr.StepExecutionError
	require.ErrorAs(t, res.Err, &stepErr)
	assert.Equal(t, "bad", stepErr.Label)
	assert.Empty(t, res.Outputs)
	assert.NotContains(t, res.Logs, "label=after handle=", "dependent of the failed step was submitted")
}

func TestRun_DanglingReference(t *testing.T) {
	t.Parallel()
	res := runPipeline(t, map[string]string{"main.hcl": `step "noop" "a" { input = step.ghost }`}, nil)
	var malformed *runerr.MalformedGraphError
	require.ErrorAs(t, res.Err, &malformed)
	assert.Equal(t, "ghost", malformed.Value)
}

// countingBackend counts submissions reaching a local backend.
type countingBackend struct {
	*local.Backend
	submits *atomic.Int32
}

func (c countingBackend) Submit(ctx context.Context, task backend.Task) (backend.Handle, error) {
	c.submits.Add(1)
	return c.Backend.Submit(ctx, task)
}

// sharedModule serves one store to every run and counts submissions.
type sharedModule struct {
	store   nodestore.Store
	submits atomic.Int32
}

func (m *sharedModule) Register(r *registry.Registry) {
	r.RegisterStore("shared", func(ctx context.Context, opts map[string]string, runID string) (nodestore.Store, error) {
		return m.store, nil
	})
	r.RegisterBackend("counting", func(ctx context.Context, opts backend.Options) (backend.Backend, error) {
		return countingBackend{Backend: local.New(ctx, local.Config{Workers: 2}), submits: &m.submits}, nil
	})
}

func TestRun_ResumeSkipsRecordedSteps(t *testing.T) {
	t.Parallel()
	mod := &sharedModule{store: inmemorystore.New()}
	files := map[string]string{"main.hcl": wordCount}
	cfg := func() *app.Config {
		return &app.Config{BackendName: "counting", StoreName: "shared", ResumeRunID: "run-1"}
	}

	first := runPipeline(t, files, cfg(), mod)
	require.NoError(t, first.Err, first.Logs)
	assert.Equal(t, int32(5), mod.submits.Load())

	second := runPipeline(t, files, cfg(), mod)
	require.NoError(t, second.Err, second.Logs)
	assert.Equal(t, int32(5), mod.submits.Load(), "no step runs again")
	assert.JSONEq(t, string(first.Outputs["counts"]), string(second.Outputs["counts"]))
}

// failingModule registers a backend that cannot be reached.
type failingModule struct{}

func (failingModule) Register(r *registry.Registry) {
	r.RegisterStore("memory", func(ctx context.Context, opts map[string]string, runID string) (nodestore.Store, error) {
		return inmemorystore.New(), nil
	})
	r.RegisterBackend("down", func(ctx context.Context, opts backend.Options) (backend.Backend, error) {
		return nil, errors.New("connection refused")
	})
}

func TestRun_BackendUnavailable(t *testing.T) {
	t.Parallel()
	res := runPipeline(t, map[string]string{"main.hcl": `step "create" "a" {}`}, &app.Config{BackendName: "down"}, failingModule{})
	var unavailable *runerr.BackendUnavailableError
	require.ErrorAs(t, res.Err, &unavailable)
	assert.Equal(t, "down", unavailable.Backend)
}

func TestRun_SocketIOWorker(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a socket.io server")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := socketio.NewWorker(ctx, local.Config{Workers: 2})
	srv := httptest.NewServer(w.Handler())
	defer srv.Close()
	go w.Run(ctx)
	defer func() { _ = w.Close(context.Background()) }()

	res := runPipeline(t, map[string]string{"main.hcl": wordCount}, &app.Config{
		BackendName:    "socketio",
		BackendOptions: map[string]string{"address": srv.URL, "connect_timeout": (5 * time.Second).String()},
	})
	require.NoError(t, res.Err, res.Logs)
	assert.JSONEq(t, `[["the", 2], ["cat", 1], ["dog", 1]]`, string(res.Outputs["counts"]))
}
