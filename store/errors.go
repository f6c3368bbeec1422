package store

import "errors"

var (
	// ErrNotFound is returned when a single-row lookup matches nothing.
	// Absence of a row is a normal outcome, not a store failure.
	ErrNotFound = errors.New("plume: row not found")

	// ErrMissingKey is returned when a predicate does not cover the table's
	// key columns and the operation cannot fall back to a filtered scan.
	ErrMissingKey = errors.New("plume: predicate does not cover table key")

	// ErrBadPageToken is returned when a continuation token cannot be decoded.
	ErrBadPageToken = errors.New("plume: malformed page token")

	// ErrBatchUnprocessed is returned when the store keeps rejecting part of
	// a batch after resubmission. The batch may be partially applied.
	ErrBatchUnprocessed = errors.New("plume: batch left unprocessed statements")
)
