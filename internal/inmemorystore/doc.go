// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// implementation of the nodestore.Store interface.
//
// # Concurrency Model
//
// Outputs and views live in two independent sync.Maps. Each key is written
// once per run and read many times afterwards, which is the access pattern
// sync.Map is optimized for.
//
// # When to Use
//
// This is the default store. It suits any run whose data fits in memory of
// the coordinating process; use the s3 store (modules/s3) to keep the produced data
// after the process exits.
package inmemorystore
