// Package session wires the collaborators of a single run: its store, its
// execution backend and the scheduler driving them. Which backend executes
// the steps, in-process or remote, is decided by the registry.
package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/specialistvlad/burstbeam/internal/backend"
	"github.com/specialistvlad/burstbeam/internal/ctxlog"
	"github.com/specialistvlad/burstbeam/internal/graph"
	"github.com/specialistvlad/burstbeam/internal/nodestore"
	"github.com/specialistvlad/burstbeam/internal/registry"
	"github.com/specialistvlad/burstbeam/internal/scheduler"
	"github.com/zclconf/go-cty/cty"
)

// Options selects the backend and store of a session.
type Options struct {
	BackendName    string
	BackendOptions backend.Options
	StoreName      string
	StoreOptions   map[string]string
	// ResumeRunID reuses the outputs the store recorded under this run ID.
	// Empty starts a fresh run with a new ID.
	ResumeRunID string
}

// Session represents a single execution run and manages its lifecycle.
type Session struct {
	runID string
	store nodestore.Store
	sched *scheduler.DefaultScheduler
	be    backend.Backend
}

// Open connects the store and backend named in opts and prepares a
// scheduler for ix. Nothing is submitted until Run.
func Open(ctx context.Context, reg *registry.Registry, ix *graph.Index, opts Options) (*Session, error) {
	runID := opts.ResumeRunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := ctxlog.FromContext(ctx).With("run_id", runID)
	ctx = ctxlog.WithLogger(ctx, logger)

	store, err := reg.OpenStore(ctx, opts.StoreName, opts.StoreOptions, runID)
	if err != nil {
		return nil, err
	}
	var completed map[string][]cty.Value
	if opts.ResumeRunID != "" {
		if completed, err = recordedOutputs(ctx, ix, store); err != nil {
			return nil, err
		}
		logger.Info("Resuming run.", "recorded_steps", len(completed))
	}

	be, err := reg.Open(ctx, opts.BackendName, opts.BackendOptions)
	if err != nil {
		return nil, err
	}
	logger.Debug("Session opened.", "backend", opts.BackendName, "store", opts.StoreName)

	return &Session{
		runID: runID,
		store: store,
		be:    be,
		sched: scheduler.New(ix, be, scheduler.Options{
			Completed:   completed,
			Store:       store,
			BackendName: opts.BackendName,
		}),
	}, nil
}

// RunID identifies the run in the store.
func (s *Session) RunID() string { return s.runID }

// Store returns the store holding the run's outputs.
func (s *Session) Store() nodestore.Store { return s.store }

// Scheduler returns the scheduler of the run.
func (s *Session) Scheduler() *scheduler.DefaultScheduler { return s.sched }

// Run starts the scheduler and waits for the outcome. Cancelling ctx aborts
// the run; Run still returns the decided outcome.
func (s *Session) Run(ctx context.Context) (scheduler.Outcome, error) {
	ctx = ctxlog.WithLogger(ctx, ctxlog.FromContext(ctx).With("run_id", s.runID))
	if err := s.sched.Start(ctx); err != nil {
		return scheduler.Outcome{}, fmt.Errorf("failed to start run: %w", err)
	}
	return s.sched.AwaitCompletion(context.WithoutCancel(ctx)), nil
}

// Close stops the scheduler and shuts the backend down. It is safe to call
// before Run and more than once.
func (s *Session) Close(ctx context.Context) error {
	return s.sched.Shutdown(ctx)
}

// recordedOutputs returns the outputs the store already holds.
func recordedOutputs(ctx context.Context, ix *graph.Index, store nodestore.Store) (map[string][]cty.Value, error) {
	out := make(map[string][]cty.Value)
	for _, step := range ix.Steps() {
		bag, ok, err := store.GetOutput(ctx, step.Name())
		if err != nil {
			return nil, fmt.Errorf("read recorded output of %s: %w", step.Name(), err)
		}
		if ok {
			out[step.Name()] = bag
		}
	}
	return out, nil
}
