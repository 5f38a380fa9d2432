package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/burstbeam/internal/graph"
	"github.com/specialistvlad/burstbeam/internal/pipeline"
	"github.com/specialistvlad/burstbeam/internal/scheduler"
	"github.com/specialistvlad/burstbeam/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()

	_, err := NewConfig(Config{})
	require.Error(t, err)

	cfg, err := NewConfig(Config{PipelinePath: "p.hcl"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBackend, cfg.BackendName)
	assert.Equal(t, DefaultStore, cfg.StoreName)
	assert.NotNil(t, cfg.BackendOptions)
	assert.NotNil(t, cfg.StoreOptions)
}

func TestLoadFileConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "backend.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  name: socketio
  options:
    address: http://worker:8090
    namespace: /jobs
store:
  name: s3
  options:
    bucket: runs
`), 0o600))

	fc, err := LoadFileConfig(path)
	require.NoError(t, err)
	want := &FileConfig{
		Backend: Section{Name: "socketio", Options: map[string]string{"address": "http://worker:8090", "namespace": "/jobs"}},
		Store:   Section{Name: "s3", Options: map[string]string{"bucket": "runs"}},
	}
	if diff := cmp.Diff(want, fc); diff != "" {
		t.Errorf("LoadFileConfig() mismatch (-want +got):\n%s", diff)
	}

	_, err = LoadFileConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("backend: [unclosed"), 0o600))
	_, err = LoadFileConfig(bad)
	assert.ErrorContains(t, err, "parse config file")
}

func TestMerge(t *testing.T) {
	t.Parallel()
	got := Merge(map[string]string{"a": "1", "b": "2"}, map[string]string{"b": "3", "c": "4"})
	assert.Equal(t, map[string]string{"a": "1", "b": "3", "c": "4"}, got)
}

func TestNewLogger_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "run.log")
	stdout := &testutil.SafeBuffer{}

	logger, closer := newLogger("warn", "json", path, stdout)
	logger.Info("dropped")
	logger.Warn("kept", "k", "v")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"kept"`)
	assert.NotContains(t, string(b), "dropped")
	assert.Empty(t, stdout.String())
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	cfg, err := NewConfig(Config{PipelinePath: "unused"})
	require.NoError(t, err)
	a, _, _ := SetupAppTest(t, cfg)
	srv := httptest.NewServer(a.healthMux())
	defer srv.Close()

	get := func() statusReport {
		resp, err := http.Get(srv.URL + "/status")
		require.NoError(t, err)
		defer resp.Body.Close()
		var rep statusReport
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
		return rep
	}
	assert.Equal(t, "pending", get().Outcome)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	p := pipeline.New()
	a1 := p.Apply("a", pipeline.Create())
	p.Apply("b", pipeline.NoOp(), a1)
	ix, err := graph.Build(context.Background(), p)
	require.NoError(t, err)
	mb := testutil.NewManualBackend(4)
	s := scheduler.New(ix, mb, scheduler.Options{})
	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Shutdown(context.Background()) }()
	a.setRun("run-1", s)

	rep := get()
	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, "running", rep.Outcome)
	assert.Equal(t, map[string]int{"running": 1, "pending": 1}, rep.States)

	require.NoError(t, s.Shutdown(context.Background()))
	rep = get()
	assert.Equal(t, "aborted", rep.Outcome)
	assert.NotEmpty(t, rep.Error)
	assert.Equal(t, map[string]int{"cancelled": 2}, rep.States)
}

func TestRegistryHasCoreModules(t *testing.T) {
	t.Parallel()
	cfg, err := NewConfig(Config{PipelinePath: "unused"})
	require.NoError(t, err)
	a, _, _ := SetupAppTest(t, cfg)
	assert.Equal(t, []string{"local", "socketio"}, a.Registry().Backends())
	assert.Equal(t, []string{"memory", "s3"}, a.Registry().Stores())
}
