package feed

import "errors"

var (
	// ErrNotFound is returned when an activity doesn't exist.
	ErrNotFound = errors.New("plume: activity not found")

	// ErrNewRecord is returned when updating or deleting an activity that
	// was never saved.
	ErrNewRecord = errors.New("plume: activity was never saved")

	// ErrUnknownKind is returned when a feed kind is not registered.
	ErrUnknownKind = errors.New("plume: feed kind not registered")

	// ErrBadCursor is returned when a feed cursor cannot be decoded.
	ErrBadCursor = errors.New("plume: malformed feed cursor")
)
