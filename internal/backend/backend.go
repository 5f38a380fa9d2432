// Package backend defines the contract between the scheduler and the
// systems that execute steps.
//
// A backend accepts tasks without blocking, runs them however it likes, and
// reports every outcome on its Results channel. Backends are opened by name
// through registry.Registry with an opaque Options map; the scheduler never
// interprets the options.
package backend

import (
	"context"
	"errors"

	"github.com/specialistvlad/burstbeam/internal/transform"
	"github.com/zclconf/go-cty/cty"
)

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = errors.New("backend is shut down")

// Options configures a backend connection: address, credentials, resource
// limits. Keys are backend specific.
type Options map[string]string

// Task is one step submitted for execution.
type Task struct {
	// Step is the stable step name (s<N>).
	Step string
	transform.Call
}

// Handle identifies one submission.
type Handle struct {
	ID   string
	Step string
}

// Result is the outcome of one submission. Exactly one of Output and Err is
// meaningful.
type Result struct {
	Handle Handle
	Output []cty.Value
	Err    error
}

// Backend executes tasks.
type Backend interface {
	// Submit hands task to the backend and returns immediately. An error
	// means the task was not accepted and no Result will follow.
	Submit(ctx context.Context, task Task) (Handle, error)

	// Results delivers one Result per accepted submission. It is closed
	// once Shutdown has returned.
	Results() <-chan Result

	// Cancel asks the backend to stop a submission. A Result may still be
	// delivered for it.
	Cancel(ctx context.Context, h Handle) error

	// Shutdown stops all work and releases resources. It is idempotent.
	Shutdown(ctx context.Context) error
}
