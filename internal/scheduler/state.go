package scheduler

import "fmt"

// State is the execution state of one step.
type State int

const (
	Pending State = iota
	Runnable
	Running
	Completed
	Failed
	// Cancelled marks a step that never finished because the run ended first.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// OutcomeKind classifies how a run ended.
type OutcomeKind int

const (
	// Undecided is returned by AwaitCompletion when its context ends first.
	Undecided OutcomeKind = iota
	Succeeded
	// RunFailed means a step or a side input failed.
	RunFailed
	// Aborted means the run was cancelled, shut down, or the backend refused
	// a submission.
	Aborted
)

func (k OutcomeKind) String() string {
	switch k {
	case Undecided:
		return "undecided"
	case Succeeded:
		return "succeeded"
	case RunFailed:
		return "failed"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the run-level result. Err is the first cause for RunFailed and
// Aborted, and nil for Succeeded.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

func (o Outcome) String() string {
	if o.Err == nil {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s: %v", o.Kind, o.Err)
}
