package scheduler

import (
	"context"

	"github.com/zclconf/go-cty/cty"
)

// Scheduler runs the steps of one pipeline in dependency order.
type Scheduler interface {
	// Start marks every step Pending, makes the steps without outstanding
	// dependencies Runnable and submits them. It can be called once.
	Start(ctx context.Context) error

	// OnStepCompleted marks a running step Completed and releases its
	// dependents. Notifications for steps that are not running are ignored.
	OnStepCompleted(name string, output []cty.Value)

	// OnStepFailed marks a running step Failed and fails the run.
	OnStepFailed(name string, cause error)

	// AwaitCompletion blocks until the run has an outcome or ctx is done.
	AwaitCompletion(ctx context.Context) Outcome

	// Shutdown cancels in-flight work, stops the loop and shuts the backend
	// down. It is idempotent.
	Shutdown(ctx context.Context) error

	// States returns a snapshot of every step state, keyed by step name.
	States() map[string]State
}
