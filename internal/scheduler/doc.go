// Package scheduler drives the execution of an indexed pipeline.
//
// # How It Works
//
// One goroutine, the loop, owns every step state and every outstanding
// dependency counter. Everything that can change them arrives as a message on
// a single channel:
//   - backend results, forwarded from the backend's Results channel
//   - external OnStepCompleted and OnStepFailed calls
//   - side-input materialization results
//   - shutdown requests
//
// A step waits for each distinct producer of its data inputs and for each
// side-input view it references. A view in turn waits for the step producing
// its source. When a counter reaches zero the step becomes Runnable and is
// submitted to the backend right away.
//
// # Failure
//
// The first failure decides the run. Running steps are cancelled through the
// backend, every step that has not reached a terminal state moves to
// Cancelled, and AwaitCompletion returns. Later messages are ignored.
package scheduler
