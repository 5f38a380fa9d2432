// Package graph builds the immutable dependency index of a pipeline.
//
// # Why the Index Exists
//
// The scheduler needs to answer three questions quickly and without touching
// the pipeline model: which steps consume a value, which steps can start
// without any upstream data, and which side-input views must be materialized.
// Index answers all three. It is produced by a single walk over the pipeline
// and never changes afterwards, so it can be shared freely between goroutines.
//
// # Stable Names
//
// Every step gets a name of the form s<N>, assigned from a counter in
// visitation order. Producers are always visited before their consumers, so
// names are also a topological order of the graph. Names do not depend on
// execution order, which keeps re-runs and logs comparable.
//
// # Errors
//
// Index fails with *runerr.MalformedGraphError when a step references a value
// that no transform of the pipeline produces, and with *runerr.CyclicGraphError
// when the walk re-enters a step whose visit is still active.
package graph
