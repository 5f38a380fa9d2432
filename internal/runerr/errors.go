package runerr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrShutdown is the cause reported when a run is shut down before it
// reached a terminal outcome.
var ErrShutdown = errors.New("scheduler shut down before completion")

// MalformedGraphError reports a step input (or side-input source) that has no
// known producer in the indexed pipeline.
type MalformedGraphError struct {
	// Step is the label of the step declaring the reference.
	Step string
	// Value is the name of the dangling collection.
	Value string
	// Reason describes the kind of reference, e.g. "input" or "side input".
	Reason string
}

// ReasonDuplicateSideInput marks a step declaring two side inputs with the same name.
const ReasonDuplicateSideInput = "duplicate side input"

func (e *MalformedGraphError) Error() string {
	if e.Reason == ReasonDuplicateSideInput {
		return fmt.Sprintf("malformed graph: step %q declares duplicate side input %q", e.Step, e.Value)
	}
	reason := e.Reason
	if reason == "" {
		reason = "input"
	}
	return fmt.Sprintf("malformed graph: step %q declares %s %q with no known producer", e.Step, reason, e.Value)
}

// CyclicGraphError reports a dependency cycle found while walking the graph.
type CyclicGraphError struct {
	// Path lists the step labels on the active walk, ending with the step
	// that was entered a second time.
	Path []string
}

func (e *CyclicGraphError) Error() string {
	if len(e.Path) == 0 {
		return "cyclic graph: cycle detected"
	}
	return fmt.Sprintf("cyclic graph: cycle detected involving %s", strings.Join(e.Path, " -> "))
}

// SideInputResolutionError reports a view that could not be materialized.
type SideInputResolutionError struct {
	View string
	Err  error
}

func (e *SideInputResolutionError) Error() string {
	return fmt.Sprintf("side input %q could not be resolved: %v", e.View, e.Err)
}

func (e *SideInputResolutionError) Unwrap() error { return e.Err }

// StepExecutionError is a backend-reported failure of a single step.
type StepExecutionError struct {
	// Step is the stable step name (s<N>).
	Step string
	// Label is the user-facing transform label.
	Label string
	Err   error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s (%s) failed: %v", e.Step, e.Label, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// BackendUnavailableError reports a connection or setup failure of an
// execution backend, or a submission the backend refused.
type BackendUnavailableError struct {
	Backend string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend %q unavailable: %v", e.Backend, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// IsStructural reports whether err is a graph error detected during indexing.
func IsStructural(err error) bool {
	var malformed *MalformedGraphError
	var cyclic *CyclicGraphError
	return errors.As(err, &malformed) || errors.As(err, &cyclic)
}
