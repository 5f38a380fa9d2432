// Package runerr defines the error taxonomy shared by the indexer, the
// side-input materializer, the scheduler and the execution backends.
//
// Structural errors (MalformedGraphError, CyclicGraphError) are raised while
// indexing, before any side effect. Runtime errors (SideInputResolutionError,
// StepExecutionError, BackendUnavailableError) surface through the run's
// terminal outcome. All wrapping types implement Unwrap so callers can use
// errors.Is and errors.As on the underlying cause.
package runerr
