// Package sideinput materializes side-input views.
//
// A view is computed from the complete output bag of its source step. Each
// view is computed at most once per run: concurrent requests for the same
// view share one computation, and later requests return the cached value.
// Materialized values are also recorded in the run's nodestore.Store.
package sideinput
