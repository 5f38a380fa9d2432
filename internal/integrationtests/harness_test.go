package integrationtests

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/specialistvlad/burstbeam/internal/app"
	"github.com/specialistvlad/burstbeam/internal/registry"
	"github.com/stretchr/testify/require"
)

// runResult is what one application run produced.
type runResult struct {
	Outputs map[string]json.RawMessage
	Logs    string
	Err     error
}

// runPipeline writes files into a temporary directory and runs the
// application on it. cfg may be nil.
func runPipeline(t *testing.T, files map[string]string, cfg *app.Config, modules ...registry.Module) runResult {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	if cfg == nil {
		cfg = &app.Config{}
	}
	cfg.PipelinePath = dir
	cfg, err := app.NewConfig(*cfg)
	require.NoError(t, err)

	a, out, logs := app.SetupAppTest(t, cfg, modules...)
	a.Loader().Env = map[string]string{"DISCOUNT": "2"}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	runErr := a.Run(ctx)

	res := runResult{Outputs: map[string]json.RawMessage{}, Logs: logs.String(), Err: runErr}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var lo struct {
			Step   string          `json:"step"`
			Output json.RawMessage `json:"output"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &lo), line)
		res.Outputs[lo.Step] = lo.Output
	}
	return res
}
