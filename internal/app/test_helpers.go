package app

import (
	"os"
	"testing"

	"github.com/specialistvlad/burstbeam/internal/registry"
	"github.com/specialistvlad/burstbeam/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. Results and
// logs are captured in separate buffers.
func SetupAppTest(t *testing.T, cfg *Config, modules ...registry.Module) (*App, *testutil.SafeBuffer, *testutil.SafeBuffer) {
	t.Helper()

	out := &testutil.SafeBuffer{}
	logs := &testutil.SafeBuffer{}
	cfg.LogLevel = "debug"
	testApp := NewApp(out, logs, cfg, modules...)

	t.Cleanup(func() {
		_ = testApp.Close()
		if os.Getenv("BBEAM_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})

	return testApp, out, logs
}
