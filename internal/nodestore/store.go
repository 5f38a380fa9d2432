// Package nodestore defines the interface for storing the data a run
// produces: the output bag of every completed step and the materialized
// value of every side-input view.
//
// # Why Node Store Exists
//
// The store separates produced data from execution state. The scheduler
// owns step states in its event loop; the data flowing between steps lives
// here so it can be kept in memory (internal/inmemorystore) or written to
// S3-compatible object storage (modules/s3) without the scheduler
// knowing which.
//
// # Lifecycle and Usage
//
// A store is:
//  1. **Created** once per run and scoped to it
//  2. **Written** by the scheduler when a step completes and by the
//     side-input materializer when a view is computed
//  3. **Read** when the scheduler assembles the inputs of a downstream task
//     and when the CLI reports leaf outputs
//
// Keys are stable step names (s<N>) and materializer view keys, both unique
// within a run.
package nodestore

import (
	"context"

	"github.com/zclconf/go-cty/cty"
)

// Store records step outputs and materialized views of one run.
//
// # Thread-Safety Requirements
//
// Implementations MUST be safe for concurrent use: materializer goroutines
// write views while the scheduler loop writes outputs.
type Store interface {
	// SetOutput records the output bag of a completed step.
	SetOutput(ctx context.Context, step string, bag []cty.Value) error

	// GetOutput returns the output bag of a step. The boolean is false when
	// the step has no recorded output.
	GetOutput(ctx context.Context, step string) ([]cty.Value, bool, error)

	// SetView records the materialized value of a view.
	SetView(ctx context.Context, key string, v cty.Value) error

	// GetView returns a materialized view value. The boolean is false when
	// the view has not been recorded.
	GetView(ctx context.Context, key string) (cty.Value, bool, error)
}
