package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/burstbeam/internal/app"
	"github.com/specialistvlad/burstbeam/internal/runerr"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Exit codes beyond the usage error.
const (
	ExitRunFailed   = 1
	ExitUsage       = 2
	ExitBadGraph    = 3
	ExitUnavailable = 4
)

// ExitCode maps an error returned by the application to a process exit code.
func ExitCode(err error) int {
	var exitErr *ExitError
	var unavailable *runerr.BackendUnavailableError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		return exitErr.Code
	case runerr.IsStructural(err):
		return ExitBadGraph
	case errors.As(err, &unavailable):
		return ExitUnavailable
	}
	return ExitRunFailed
}

// optionsFlag collects repeated key=value flags.
type optionsFlag map[string]string

func (o optionsFlag) String() string {
	parts := make([]string, 0, len(o))
	for k, v := range o {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (o optionsFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	o[k] = v
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("burstbeam", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
BurstBeam - runs dataflow pipelines declared in HCL.

Usage:
  burstbeam [options] [PIPELINE_PATH]

Arguments:
  PIPELINE_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	backendOpts := optionsFlag{}
	storeOpts := optionsFlag{}

	pipelineFlag := flagSet.String("pipeline", "", "Path to the pipeline file or directory.")
	pFlag := flagSet.String("p", "", "Path to the pipeline file or directory (shorthand).")
	backendFlag := flagSet.String("backend", "", "Execution backend: 'local' or 'socketio'. Default 'local'.")
	flagSet.Var(backendOpts, "backend-opt", "Backend option as key=value. Repeatable.")
	configFlag := flagSet.String("backend-config", "", "YAML file with backend and store settings. Flags override it.")
	storeFlag := flagSet.String("store", "", "Run store: 'memory' or 's3'. Default 'memory'.")
	flagSet.Var(storeOpts, "store-opt", "Store option as key=value. Repeatable.")
	resumeFlag := flagSet.String("resume", "", "Run ID whose recorded outputs are reused.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	logFileFlag := flagSet.String("log-file", "", "Write logs to this rotated file instead of stderr.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *pipelineFlag != "" {
		path = *pipelineFlag
	} else if *pFlag != "" {
		path = *pFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Pipeline path determined.", "path", path)

	if path == "" {
		slog.Debug("No pipeline path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	cfg := app.Config{
		PipelinePath:    path,
		BackendName:     *backendFlag,
		StoreName:       *storeFlag,
		ResumeRunID:     *resumeFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		LogFile:         *logFileFlag,
		HealthcheckPort: *healthPortFlag,
	}
	var fileBackend, fileStore map[string]string
	if *configFlag != "" {
		fc, err := app.LoadFileConfig(*configFlag)
		if err != nil {
			return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
		}
		if cfg.BackendName == "" {
			cfg.BackendName = fc.Backend.Name
		}
		if cfg.StoreName == "" {
			cfg.StoreName = fc.Store.Name
		}
		fileBackend, fileStore = fc.Backend.Options, fc.Store.Options
	}
	cfg.BackendOptions = app.Merge(fileBackend, backendOpts)
	cfg.StoreOptions = app.Merge(fileStore, storeOpts)
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "backend", config.BackendName, "store", config.StoreName)
	return config, false, nil
}
