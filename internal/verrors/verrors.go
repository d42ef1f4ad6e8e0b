// Package verrors holds the sentinel error kinds shared by every core
// component: stores, clusters, the HNSW index, and the partition manager.
package verrors

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector's length does not
	// match the dimension a component expects.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidK names the k <= 0 search case. The search functions do
	// not return it: they return an empty result for k <= 0.
	ErrInvalidK = errors.New("k must be greater than 0")

	// ErrNotFound is returned for unknown vector, partition, or cluster ids.
	ErrNotFound = errors.New("not found")

	// ErrCapacityExhausted is returned when the active partition is full
	// and auto-creation of new partitions is disabled.
	ErrCapacityExhausted = errors.New("capacity exhausted")

	// ErrClosed is returned by any mutating call made after Close.
	ErrClosed = errors.New("database is closed")

	// ErrInvariantViolation covers unrecoverable structural problems:
	// an unsupported on-disk version, a partition id/dir mismatch, or
	// dimension drift inside a single cluster.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrInvalidVersion is a specific invariant violation raised when an
	// on-disk record carries a version other than the one this build
	// understands.
	ErrInvalidVersion = errors.New("unsupported on-disk version")

	// ErrInvalidID is returned when a partition id does not match the
	// required [A-Za-z0-9._-]+ syntax.
	ErrInvalidID = errors.New("invalid id")
)
