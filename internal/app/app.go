package app

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/specialistvlad/burstbeam/internal/ctxlog"
	"github.com/specialistvlad/burstbeam/internal/hclpipeline"
	"github.com/specialistvlad/burstbeam/internal/registry"
	"github.com/specialistvlad/burstbeam/internal/scheduler"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	logCloser io.Closer
	registry  *registry.Registry
	loader    *hclpipeline.Loader
	config    *Config

	mu    sync.Mutex
	runID string
	sched *scheduler.DefaultScheduler
}

// NewApp is the constructor for the main application. Leaf outputs are
// written to outW and log records to logW. Without modules the core set is
// registered.
func NewApp(outW, logW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger, closer := newLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	ctxlog.FromContext(ctx).Debug("All Go modules registered.", "count", len(modules), "backends", reg.Backends(), "stores", reg.Stores())

	return &App{
		outW:      outW,
		logger:    logger,
		logCloser: closer,
		registry:  reg,
		loader:    hclpipeline.NewLoader(),
		config:    cfg,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Loader returns the pipeline loader, so callers can adjust its environment.
func (a *App) Loader() *hclpipeline.Loader {
	return a.loader
}

// Close releases the log file, if any.
func (a *App) Close() error {
	return a.logCloser.Close()
}

func (a *App) setRun(runID string, s *scheduler.DefaultScheduler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runID, a.sched = runID, s
}

func (a *App) currentRun() (string, *scheduler.DefaultScheduler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runID, a.sched
}
