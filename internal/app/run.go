package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/specialistvlad/burstbeam/internal/codec"
	"github.com/specialistvlad/burstbeam/internal/ctxlog"
	"github.com/specialistvlad/burstbeam/internal/graph"
	"github.com/specialistvlad/burstbeam/internal/nodestore"
	"github.com/specialistvlad/burstbeam/internal/scheduler"
	"github.com/specialistvlad/burstbeam/internal/session"
)

const shutdownTimeout = 10 * time.Second

// leafOutput is one line of the result output.
type leafOutput struct {
	Step   string          `json:"step"`
	Output json.RawMessage `json:"output"`
}

// Run loads the pipeline, executes it on the configured backend and writes
// the output of every leaf step to the app's output writer.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		stop, err := a.startHealthcheckServer(ctx, a.config.HealthcheckPort)
		if err != nil {
			return err
		}
		defer stop()
	}

	p, err := a.loader.Load(ctx, a.config.PipelinePath)
	if err != nil {
		return fmt.Errorf("failed to load pipeline: %w", err)
	}
	ix, err := graph.Build(ctx, p)
	if err != nil {
		return err
	}
	a.logger.Debug("Dependency index built.", "steps", ix.Len(), "roots", len(ix.Roots()), "views", len(ix.Views()))

	sess, err := session.Open(ctx, a.registry, ix, session.Options{
		BackendName:    a.config.BackendName,
		BackendOptions: a.config.BackendOptions,
		StoreName:      a.config.StoreName,
		StoreOptions:   a.config.StoreOptions,
		ResumeRunID:    a.config.ResumeRunID,
	})
	if err != nil {
		return err
	}
	a.setRun(sess.RunID(), sess.Scheduler())
	logger := a.logger.With("run_id", sess.RunID())

	logger.Info("🚀 Starting run.", "backend", a.config.BackendName, "store", a.config.StoreName)
	outcome, runErr := sess.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := sess.Close(shutdownCtx); err != nil {
		logger.Warn("Shutdown reported errors.", "error", err)
	}
	if runErr != nil {
		return runErr
	}

	switch outcome.Kind {
	case scheduler.Succeeded:
		logger.Info("🏁 Run succeeded.")
		return a.writeLeaves(ctx, ix, sess.Store())
	case scheduler.RunFailed:
		return fmt.Errorf("run failed: %w", outcome.Err)
	default:
		return fmt.Errorf("run aborted: %w", outcome.Err)
	}
}

func (a *App) writeLeaves(ctx context.Context, ix *graph.Index, store nodestore.Store) error {
	enc := json.NewEncoder(a.outW)
	for _, step := range ix.Leaves() {
		bag, _, err := store.GetOutput(ctx, step.Name())
		if err != nil {
			return fmt.Errorf("read output of %s: %w", step.Label(), err)
		}
		raw, err := codec.PlainJSON(bag)
		if err != nil {
			return fmt.Errorf("output of %s: %w", step.Label(), err)
		}
		if err := enc.Encode(leafOutput{Step: step.Label(), Output: raw}); err != nil {
			return err
		}
	}
	return nil
}
