// Package local implements an in-process execution backend. Every task runs
// on its own goroutine, bounded by a worker limit, and failed evaluations
// are retried up to a configured number of attempts.
package local

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/burstbeam/internal/backend"
	"github.com/specialistvlad/burstbeam/internal/ctxlog"
	"github.com/specialistvlad/burstbeam/internal/transform"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/semaphore"
)

// Config tunes the local backend.
type Config struct {
	// Workers bounds how many tasks evaluate at once.
	Workers int
	// MaxAttempts is how often a failing task is evaluated before its
	// failure is reported. Values below 1 mean 1.
	MaxAttempts int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// ConfigFromOptions reads the workers, max_attempts and retry_delay options.
func ConfigFromOptions(opts backend.Options) (Config, error) {
	cfg := Config{Workers: runtime.NumCPU(), MaxAttempts: 1}
	if raw, ok := opts["workers"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("local backend: invalid workers %q", raw)
		}
		cfg.Workers = n
	}
	if raw, ok := opts["max_attempts"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("local backend: invalid max_attempts %q", raw)
		}
		cfg.MaxAttempts = n
	}
	if raw, ok := opts["retry_delay"]; ok {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("local backend: invalid retry_delay %q: %w", raw, err)
		}
		cfg.RetryDelay = d
	}
	return cfg, nil
}

// EvalFunc evaluates one task.
type EvalFunc func(ctx context.Context, call transform.Call) ([]cty.Value, error)

// Backend is the in-process backend.
type Backend struct {
	cfg  Config
	eval EvalFunc
	sem  *semaphore.Weighted

	results chan backend.Result
	done    chan struct{}

	// base is the parent of every task context; stop cancels it.
	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	running map[string]context.CancelFunc

	shutdownOnce sync.Once
}

var _ backend.Backend = (*Backend)(nil)

// New creates a local backend evaluating tasks with transform.Evaluate.
func New(ctx context.Context, cfg Config) *Backend {
	return NewWithEval(ctx, cfg, transform.Evaluate)
}

// NewWithEval creates a local backend with a custom evaluation function.
func NewWithEval(ctx context.Context, cfg Config, eval EvalFunc) *Backend {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	// Tasks inherit the logger but not the cancellation of ctx.
	base, stop := context.WithCancel(ctxlog.WithLogger(context.Background(), ctxlog.FromContext(ctx)))
	return &Backend{
		cfg:     cfg,
		eval:    eval,
		sem:     semaphore.NewWeighted(int64(cfg.Workers)),
		results: make(chan backend.Result),
		done:    make(chan struct{}),
		base:    base,
		stop:    stop,
		running: make(map[string]context.CancelFunc),
	}
}

// Submit starts task on a new goroutine.
func (b *Backend) Submit(ctx context.Context, task backend.Task) (backend.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return backend.Handle{}, backend.ErrClosed
	}

	h := backend.Handle{ID: uuid.NewString(), Step: task.Step}
	taskCtx, cancel := context.WithCancel(b.base)
	b.running[h.ID] = cancel
	b.wg.Add(1)
	go b.run(taskCtx, h, task)
	return h, nil
}

func (b *Backend) run(ctx context.Context, h backend.Handle, task backend.Task) {
	defer b.wg.Done()
	defer b.forget(h)

	logger := ctxlog.FromContext(ctx).With("backend", "local", "step", task.Step, "label", task.Label)
	ctx = ctxlog.WithLogger(ctx, logger)

	if err := b.sem.Acquire(ctx, 1); err != nil {
		b.deliver(backend.Result{Handle: h, Err: err})
		return
	}
	defer b.sem.Release(1)

	var (
		out []cty.Value
		err error
	)
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		logger.Debug("Evaluating task.", "attempt", attempt)
		out, err = b.eval(ctx, task.Call)
		if err == nil || ctx.Err() != nil {
			break
		}
		if attempt < b.cfg.MaxAttempts {
			logger.Warn("Task attempt failed, retrying.", "attempt", attempt, "error", err)
			select {
			case <-time.After(b.cfg.RetryDelay):
			case <-ctx.Done():
			}
		}
	}
	if err != nil {
		logger.Debug("Task failed.", "error", err)
		b.deliver(backend.Result{Handle: h, Err: err})
		return
	}
	b.deliver(backend.Result{Handle: h, Output: out})
}

// deliver sends r unless the backend is shutting down.
func (b *Backend) deliver(r backend.Result) {
	select {
	case b.results <- r:
	case <-b.done:
	}
}

func (b *Backend) forget(h backend.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.running[h.ID]; ok {
		cancel()
		delete(b.running, h.ID)
	}
}

// Results returns the result channel.
func (b *Backend) Results() <-chan backend.Result { return b.results }

// Cancel cancels the context of a running task.
func (b *Backend) Cancel(ctx context.Context, h backend.Handle) error {
	b.mu.Lock()
	cancel, ok := b.running[h.ID]
	b.mu.Unlock()
	if ok {
		ctxlog.FromContext(ctx).Debug("Cancelling local task.", "step", h.Step, "handle", h.ID)
		cancel()
	}
	return nil
}

// Shutdown cancels every task, waits for their goroutines and closes the
// result channel. Pending results are dropped.
func (b *Backend) Shutdown(ctx context.Context) error {
	var err error
	b.shutdownOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		close(b.done)
		b.stop()

		finished := make(chan struct{})
		go func() {
			b.wg.Wait()
			close(finished)
		}()
		select {
		case <-finished:
			close(b.results)
		case <-ctx.Done():
			err = fmt.Errorf("local backend: shutdown: %w", ctx.Err())
		}
	})
	return err
}
