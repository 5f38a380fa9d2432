package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/burstbeam/internal/backend"
	"github.com/specialistvlad/burstbeam/internal/ctxlog"
	"github.com/specialistvlad/burstbeam/internal/graph"
	"github.com/specialistvlad/burstbeam/internal/inmemorystore"
	"github.com/specialistvlad/burstbeam/internal/nodestore"
	"github.com/specialistvlad/burstbeam/internal/pipeline"
	"github.com/specialistvlad/burstbeam/internal/runerr"
	"github.com/specialistvlad/burstbeam/internal/sideinput"
	"github.com/specialistvlad/burstbeam/internal/transform"
	"github.com/zclconf/go-cty/cty"
)

// Options configures a DefaultScheduler.
type Options struct {
	// Completed holds the outputs of steps that already completed, keyed by
	// step name. They are not submitted again.
	Completed map[string][]cty.Value
	// Store receives step outputs and materialized views. Defaults to an
	// in-memory store.
	Store nodestore.Store
	// BackendName names the backend in errors.
	BackendName string
}

// DefaultScheduler is the event-loop implementation of Scheduler.
type DefaultScheduler struct {
	ix    *graph.Index
	be    backend.Backend
	opts  Options
	store nodestore.Store
	mat   *sideinput.Materializer

	events  chan event
	done    chan struct{} // closed once the outcome is decided
	stopped chan struct{} // closed when the loop exits

	lifecycle sync.Mutex
	started   bool
	shutdown  bool

	shutdownOnce sync.Once
	shutdownErr  error

	snapMu   sync.RWMutex
	snapshot map[string]State
	outcome  Outcome

	// Owned by the loop.
	run         *runState
	runCtx      context.Context
	cancelRun   context.CancelFunc
	viewReaders map[*pipeline.View][]*graph.Step
}

var _ Scheduler = (*DefaultScheduler)(nil)

type runState struct {
	states      map[*graph.Step]State
	outstanding map[*graph.Step]int
	handles     map[*graph.Step]backend.Handle
	byHandle    map[string]*graph.Step
	completed   int
	decided     bool
}

// New creates a scheduler for ix running steps on be.
func New(ix *graph.Index, be backend.Backend, opts Options) *DefaultScheduler {
	store := opts.Store
	if store == nil {
		store = inmemorystore.New()
	}
	s := &DefaultScheduler{
		ix:       ix,
		be:       be,
		opts:     opts,
		store:    store,
		mat:      sideinput.New(ix.Views(), store),
		events:   make(chan event),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		snapshot: make(map[string]State, ix.Len()),
	}
	s.viewReaders = make(map[*pipeline.View][]*graph.Step)
	for _, step := range ix.Steps() {
		for _, v := range distinctViews(step) {
			s.viewReaders[v] = append(s.viewReaders[v], step)
		}
	}
	return s
}

// Store returns the store holding step outputs.
func (s *DefaultScheduler) Store() nodestore.Store { return s.store }

// Index returns the index being executed.
func (s *DefaultScheduler) Index() *graph.Index { return s.ix }

// Start initializes the run and submits the first runnable steps. The run
// is aborted when ctx is cancelled.
func (s *DefaultScheduler) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.shutdown {
		return runerr.ErrShutdown
	}
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	for name := range s.opts.Completed {
		if _, ok := s.ix.Step(name); !ok {
			return fmt.Errorf("pre-completed step %q is not part of the pipeline", name)
		}
	}
	s.started = true

	logger := ctxlog.FromContext(ctx).With("component", "scheduler")
	s.runCtx, s.cancelRun = context.WithCancel(ctxlog.WithLogger(ctx, logger))
	logger.Info("Starting run.", "steps", s.ix.Len(), "roots", len(s.ix.Roots()), "views", len(s.ix.Views()))

	r := &runState{
		states:      make(map[*graph.Step]State, s.ix.Len()),
		outstanding: make(map[*graph.Step]int, s.ix.Len()),
		handles:     make(map[*graph.Step]backend.Handle),
		byHandle:    make(map[string]*graph.Step),
	}
	s.run = r
	for _, step := range s.ix.Steps() {
		r.outstanding[step] = len(distinctProducers(s.ix, step)) + len(distinctViews(step))
		s.setState(step, Pending)
	}

	// The loop is not running yet, so Start owns the run state here.
	var ready []*graph.Step
	for _, step := range s.ix.Steps() {
		out, ok := s.opts.Completed[step.Name()]
		if !ok {
			continue
		}
		logger.Debug("Step pre-completed.", "step", step.Name(), "label", step.Label())
		ready = append(ready, s.complete(step, out)...)
	}
	for _, step := range s.ix.Steps() {
		if r.states[step] == Pending && r.outstanding[step] == 0 && !containsStep(ready, step) {
			ready = append(ready, step)
		}
	}
	s.submitAll(ready)
	s.checkSucceeded()

	go s.forwardResults()
	go s.loop(ctx)
	return nil
}

// OnStepCompleted reports a successful step from outside the backend.
func (s *DefaultScheduler) OnStepCompleted(name string, output []cty.Value) {
	s.post(event{kind: evCompleted, step: name, output: output})
}

// OnStepFailed reports a failed step from outside the backend.
func (s *DefaultScheduler) OnStepFailed(name string, cause error) {
	s.post(event{kind: evFailed, step: name, err: cause})
}

// AwaitCompletion waits for the outcome of the run.
func (s *DefaultScheduler) AwaitCompletion(ctx context.Context) Outcome {
	select {
	case <-s.done:
		s.snapMu.RLock()
		defer s.snapMu.RUnlock()
		return s.outcome
	case <-ctx.Done():
		return Outcome{Kind: Undecided, Err: ctx.Err()}
	}
}

// Outcome returns the outcome if it has been decided.
func (s *DefaultScheduler) Outcome() (Outcome, bool) {
	select {
	case <-s.done:
		s.snapMu.RLock()
		defer s.snapMu.RUnlock()
		return s.outcome, true
	default:
		return Outcome{}, false
	}
}

// States returns a snapshot of all step states.
func (s *DefaultScheduler) States() map[string]State {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	out := make(map[string]State, len(s.snapshot))
	for k, v := range s.snapshot {
		out[k] = v
	}
	return out
}

// Shutdown aborts an unfinished run, stops the loop and shuts the backend
// down. Every call returns the result of the first.
func (s *DefaultScheduler) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.lifecycle.Lock()
		s.shutdown = true
		started := s.started
		s.lifecycle.Unlock()

		logger := ctxlog.FromContext(ctx)
		if started {
			select {
			case s.events <- event{kind: evShutdown}:
			case <-s.stopped:
			case <-ctx.Done():
			}
			select {
			case <-s.stopped:
			case <-ctx.Done():
				s.shutdownErr = fmt.Errorf("scheduler: waiting for loop: %w", ctx.Err())
			}
		} else {
			s.decide(Outcome{Kind: Aborted, Err: runerr.ErrShutdown})
		}

		if err := s.be.Shutdown(ctx); err != nil {
			logger.Warn("Backend shutdown failed.", "error", err)
			s.shutdownErr = errors.Join(s.shutdownErr, err)
		}
		logger.Debug("Scheduler shut down.")
	})
	return s.shutdownErr
}

// post delivers e to the loop unless it has stopped.
func (s *DefaultScheduler) post(e event) {
	select {
	case s.events <- e:
	case <-s.stopped:
	}
}

// forwardResults moves backend results onto the event channel.
func (s *DefaultScheduler) forwardResults() {
	for {
		select {
		case r, ok := <-s.be.Results():
			if !ok {
				return
			}
			s.post(event{kind: evResult, result: r})
		case <-s.stopped:
			return
		}
	}
}

func (s *DefaultScheduler) loop(ctx context.Context) {
	defer close(s.stopped)
	logger := ctxlog.FromContext(s.runCtx)

	cancelled := ctx.Done()
	for {
		select {
		case <-cancelled:
			cancelled = nil
			logger.Warn("Run context cancelled.", "error", ctx.Err())
			s.abort(Outcome{Kind: Aborted, Err: ctx.Err()})

		case e := <-s.events:
			switch e.kind {
			case evShutdown:
				s.abort(Outcome{Kind: Aborted, Err: runerr.ErrShutdown})
				s.cancelRun()
				return
			case evResult:
				s.onResult(e.result)
			case evCompleted:
				s.onExternal(e.step, e.output, nil)
			case evFailed:
				s.onExternal(e.step, nil, e.err)
			case evViews:
				s.onViews(e)
			}
		}
	}
}

func (s *DefaultScheduler) onResult(r backend.Result) {
	step, ok := s.run.byHandle[r.Handle.ID]
	if !ok {
		return
	}
	delete(s.run.byHandle, r.Handle.ID)
	s.finishStep(step, r.Output, r.Err)
}

func (s *DefaultScheduler) onExternal(name string, output []cty.Value, cause error) {
	step, ok := s.ix.Step(name)
	if !ok {
		ctxlog.FromContext(s.runCtx).Warn("Notification for unknown step ignored.", "step", name)
		return
	}
	if h, ok := s.run.handles[step]; ok {
		delete(s.run.byHandle, h.ID)
	}
	s.finishStep(step, output, cause)
}

// finishStep applies the single Running -> Completed|Failed transition.
func (s *DefaultScheduler) finishStep(step *graph.Step, output []cty.Value, cause error) {
	logger := ctxlog.FromContext(s.runCtx).With("step", step.Name(), "label", step.Label())
	if s.run.states[step] != Running {
		logger.Debug("Late notification ignored.", "state", s.run.states[step])
		return
	}
	delete(s.run.handles, step)

	if cause == nil {
		if err := s.store.SetOutput(s.runCtx, step.Name(), output); err != nil {
			cause = fmt.Errorf("record output: %w", err)
		}
	}
	if cause != nil {
		logger.Error("Step failed.", "error", cause)
		s.setState(step, Failed)
		s.abort(Outcome{Kind: RunFailed, Err: &runerr.StepExecutionError{Step: step.Name(), Label: step.Label(), Err: cause}})
		return
	}

	logger.Debug("Step completed.", "elements", len(output))
	s.submitAll(s.complete(step, output))
	s.checkSucceeded()
}

// complete marks step Completed, starts materializing the views of its
// output and returns the dependents that became ready.
func (s *DefaultScheduler) complete(step *graph.Step, output []cty.Value) []*graph.Step {
	r := s.run
	if r.states[step] == Pending {
		// Pre-completed outputs are recorded here; others were recorded
		// before the transition.
		if err := s.store.SetOutput(s.runCtx, step.Name(), output); err != nil {
			ctxlog.FromContext(s.runCtx).Warn("Recording pre-completed output failed.", "step", step.Name(), "error", err)
		}
	}
	s.setState(step, Completed)
	r.completed++

	var ready []*graph.Step
	for _, c := range s.ix.Consumers(step.Output()) {
		r.outstanding[c]--
		if r.outstanding[c] == 0 && r.states[c] == Pending {
			ready = append(ready, c)
		}
	}
	if views := s.ix.ViewsOf(step.Output()); len(views) > 0 {
		go s.materialize(step, views, output)
	}
	return ready
}

// materialize runs outside the loop and posts the outcome back to it.
func (s *DefaultScheduler) materialize(step *graph.Step, views []*pipeline.View, bag []cty.Value) {
	_, err := s.mat.MaterializeAll(s.runCtx, views, bag)
	s.post(event{kind: evViews, step: step.Name(), views: views, err: err})
}

func (s *DefaultScheduler) onViews(e event) {
	if e.err != nil {
		s.abort(Outcome{Kind: RunFailed, Err: e.err})
		return
	}
	var ready []*graph.Step
	for _, v := range e.views {
		ctxlog.FromContext(s.runCtx).Debug("Side input ready.", "view", v.Name(), "source", e.step)
		for _, reader := range s.viewReaders[v] {
			s.run.outstanding[reader]--
			if s.run.outstanding[reader] == 0 && s.run.states[reader] == Pending {
				ready = append(ready, reader)
			}
		}
	}
	s.submitAll(ready)
}

func (s *DefaultScheduler) submitAll(steps []*graph.Step) {
	for _, step := range steps {
		if s.run.decided {
			return
		}
		s.submit(step)
	}
}

func (s *DefaultScheduler) submit(step *graph.Step) {
	if s.run.states[step] != Pending {
		return
	}
	logger := ctxlog.FromContext(s.runCtx).With("step", step.Name(), "label", step.Label())
	s.setState(step, Runnable)

	task, err := s.task(step)
	if err != nil {
		s.setState(step, Failed)
		s.abort(Outcome{Kind: RunFailed, Err: &runerr.StepExecutionError{Step: step.Name(), Label: step.Label(), Err: err}})
		return
	}
	h, err := s.be.Submit(s.runCtx, task)
	if err != nil {
		logger.Error("Backend refused submission.", "error", err)
		s.abort(Outcome{Kind: Aborted, Err: &runerr.BackendUnavailableError{Backend: s.opts.BackendName, Err: err}})
		return
	}
	s.run.handles[step] = h
	s.run.byHandle[h.ID] = step
	s.setState(step, Running)
	logger.Debug("Step submitted.", "handle", h.ID)
}

// task assembles the inputs of step from the store and the materializer.
func (s *DefaultScheduler) task(step *graph.Step) (backend.Task, error) {
	t := backend.Task{
		Step: step.Name(),
		Call: transform.Call{
			Label:   step.Label(),
			Kind:    step.Transform().Kind(),
			Payload: step.Transform().Payload(),
			Inputs:  make([][]cty.Value, 0, len(step.Inputs())),
		},
	}
	for _, in := range step.Inputs() {
		if in.IsBegin() {
			t.Inputs = append(t.Inputs, nil)
			continue
		}
		producer, _ := s.ix.Producer(in)
		bag, ok, err := s.store.GetOutput(s.runCtx, producer.Name())
		if err != nil {
			return backend.Task{}, fmt.Errorf("load input %s: %w", producer.Name(), err)
		}
		if !ok {
			return backend.Task{}, fmt.Errorf("load input %s: no recorded output", producer.Name())
		}
		t.Inputs = append(t.Inputs, bag)
	}
	if views := step.SideInputs(); len(views) > 0 {
		t.SideInputs = make(map[string]cty.Value, len(views))
		for _, v := range views {
			val, ok := s.mat.Value(v)
			if !ok {
				return backend.Task{}, fmt.Errorf("side input %q is not materialized", v.Name())
			}
			t.SideInputs[v.Name()] = val
		}
	}
	return t, nil
}

func (s *DefaultScheduler) checkSucceeded() {
	if !s.run.decided && s.run.completed == s.ix.Len() {
		ctxlog.FromContext(s.runCtx).Info("Run succeeded.", "steps", s.ix.Len())
		s.run.decided = true
		s.decide(Outcome{Kind: Succeeded})
	}
}

// abort decides o, cancels running steps and moves every non-terminal step
// to Cancelled. Only the first call has an effect.
func (s *DefaultScheduler) abort(o Outcome) {
	if s.run.decided {
		return
	}
	s.run.decided = true
	logger := ctxlog.FromContext(s.runCtx)
	logger.Warn("Run ending early.", "outcome", o.Kind, "cause", o.Err)

	cancelCtx := context.WithoutCancel(s.runCtx)
	for _, step := range s.ix.Steps() {
		st := s.run.states[step]
		if st.Terminal() {
			continue
		}
		if h, ok := s.run.handles[step]; ok {
			if err := s.be.Cancel(cancelCtx, h); err != nil {
				logger.Warn("Cancelling step failed.", "step", step.Name(), "error", err)
			}
			delete(s.run.handles, step)
		}
		s.setState(step, Cancelled)
	}
	s.decide(o)
}

func (s *DefaultScheduler) decide(o Outcome) {
	s.snapMu.Lock()
	s.outcome = o
	s.snapMu.Unlock()
	close(s.done)
}

func (s *DefaultScheduler) setState(step *graph.Step, st State) {
	s.run.states[step] = st
	s.snapMu.Lock()
	s.snapshot[step.Name()] = st
	s.snapMu.Unlock()
}

func distinctProducers(ix *graph.Index, step *graph.Step) []*graph.Step {
	seen := make(map[*graph.Step]struct{})
	var out []*graph.Step
	for _, in := range step.Inputs() {
		if p, ok := ix.Producer(in); ok {
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}
	return out
}

func distinctViews(step *graph.Step) []*pipeline.View {
	seen := make(map[*pipeline.View]struct{})
	var out []*pipeline.View
	for _, v := range step.SideInputs() {
		if _, dup := seen[v]; !dup {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func containsStep(steps []*graph.Step, s *graph.Step) bool {
	for _, x := range steps {
		if x == s {
			return true
		}
	}
	return false
}
