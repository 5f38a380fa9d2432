package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/burstbeam/internal/backend"
	"github.com/zclconf/go-cty/cty"
)

// ManualBackend is a backend.Backend whose tasks only finish when a test
// says so. Every submission is recorded and announced on Submitted.
type ManualBackend struct {
	// OnSubmit, when set, runs synchronously inside Submit.
	OnSubmit func(task backend.Task)
	// SubmitErr, when set, decides whether a submission is refused.
	SubmitErr func(task backend.Task) error

	// Submitted receives every accepted task.
	Submitted chan backend.Task

	results chan backend.Result

	mu        sync.Mutex
	next      int
	handles   map[string]backend.Handle // step name -> latest handle
	tasks     []backend.Task
	cancelled []backend.Handle
	shutdowns int
	closed    bool
}

var _ backend.Backend = (*ManualBackend)(nil)

// NewManualBackend creates a ManualBackend able to queue up to capacity
// submissions on Submitted without a reader.
func NewManualBackend(capacity int) *ManualBackend {
	return &ManualBackend{
		Submitted: make(chan backend.Task, capacity),
		results:   make(chan backend.Result),
		handles:   make(map[string]backend.Handle),
	}
}

// Submit records task.
func (m *ManualBackend) Submit(ctx context.Context, task backend.Task) (backend.Handle, error) {
	if m.OnSubmit != nil {
		m.OnSubmit(task)
	}
	if m.SubmitErr != nil {
		if err := m.SubmitErr(task); err != nil {
			return backend.Handle{}, err
		}
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return backend.Handle{}, backend.ErrClosed
	}
	h := backend.Handle{ID: fmt.Sprintf("h%d", m.next), Step: task.Step}
	m.next++
	m.handles[task.Step] = h
	m.tasks = append(m.tasks, task)
	m.mu.Unlock()

	select {
	case m.Submitted <- task:
	default:
		panic("testutil: ManualBackend submission queue is full")
	}
	return h, nil
}

// Results returns the result channel.
func (m *ManualBackend) Results() <-chan backend.Result { return m.results }

// Cancel records h.
func (m *ManualBackend) Cancel(ctx context.Context, h backend.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, h)
	return nil
}

// Shutdown counts the call and closes the result channel once.
func (m *ManualBackend) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdowns++
	if !m.closed {
		m.closed = true
		close(m.results)
	}
	return nil
}

// Complete delivers a successful result for the latest submission of step.
// It blocks until the scheduler receives it.
func (m *ManualBackend) Complete(step string, output ...cty.Value) {
	m.deliver(step, backend.Result{Output: output})
}

// Fail delivers a failed result for the latest submission of step.
func (m *ManualBackend) Fail(step string, err error) {
	m.deliver(step, backend.Result{Err: err})
}

func (m *ManualBackend) deliver(step string, r backend.Result) {
	m.mu.Lock()
	h, ok := m.handles[step]
	m.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("testutil: step %s was never submitted", step))
	}
	r.Handle = h
	m.results <- r
}

// Tasks returns every accepted task in submission order.
func (m *ManualBackend) Tasks() []backend.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]backend.Task(nil), m.tasks...)
}

// Cancelled returns the handles passed to Cancel.
func (m *ManualBackend) Cancelled() []backend.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]backend.Handle(nil), m.cancelled...)
}

// Shutdowns returns how often Shutdown was called.
func (m *ManualBackend) Shutdowns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdowns
}
