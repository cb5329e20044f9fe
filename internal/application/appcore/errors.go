package appcore

import "errors"

// Errors visible to Append callers. Everything downstream of a successful
// persist is fire-and-forget from the caller's perspective.
var (
	// ErrInvalidInput is returned when a draft event is missing required
	// fields; rejected before any storage access.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConcurrencyConflict is returned when version allocation lost the
	// race more times than the retry budget allows. The caller may retry
	// the whole append; a fresh version will be computed.
	ErrConcurrencyConflict = errors.New("concurrency conflict detected")

	// ErrStorageFailure is returned when the underlying storage is
	// unavailable or rejected the write for a reason other than a version
	// conflict. No partial state is left visible.
	ErrStorageFailure = errors.New("storage failure")

	// ErrAggregateNotFound is returned when no events exist for an aggregate.
	ErrAggregateNotFound = errors.New("aggregate not found")
)
