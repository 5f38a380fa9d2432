package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/burstbeam/internal/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePipeline(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestRun_Succeeds(t *testing.T) {
	t.Parallel()
	path := writePipeline(t, `
step "create" "words" {
  values = ["a", "b"]
}

step "map" "loud" {
  input = step.words
  expr  = upper(item)
}
`)
	out, logs := &bytes.Buffer{}, &bytes.Buffer{}
	require.NoError(t, run(context.Background(), out, logs, []string{"-log-format", "text", path}))

	var line struct {
		Step   string   `json:"step"`
		Output []string `json:"output"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, "loud", line.Step)
	assert.Equal(t, []string{"A", "B"}, line.Output)
}

func TestRun_LoadError(t *testing.T) {
	t.Parallel()
	path := writePipeline(t, `
step "noop" "A" {
  input = step.B
// Missing closing brace here
`)
	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
	assert.Equal(t, cli.ExitRunFailed, cli.ExitCode(err))
}

func TestRun_CycleExitCode(t *testing.T) {
	t.Parallel()
	path := writePipeline(t, `
step "noop" "a" { input = step.b }
step "noop" "b" { input = step.a }
`)
	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{path})
	require.Error(t, err)
	assert.Equal(t, cli.ExitBadGraph, cli.ExitCode(err))
}

func TestRun_UnknownBackend(t *testing.T) {
	t.Parallel()
	path := writePipeline(t, `step "create" "a" { values = [1] }`)
	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"-backend", "carrier-pigeon", path})
	require.Error(t, err)
	assert.Equal(t, cli.ExitUnavailable, cli.ExitCode(err))
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}
	require.NoError(t, run(context.Background(), out, &bytes.Buffer{}, []string{"-h"}))
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()
	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
	assert.Equal(t, cli.ExitUsage, cli.ExitCode(err))
}
