package service

import "errors"

var (
	// ErrConnectionNotAuthorized is returned when an operation requires an
	// authorized connection. Caller error, never retried.
	ErrConnectionNotAuthorized = errors.New("connection not authorized")

	// ErrConnectionConflict signals a completion attempt with a different
	// external connection id than the one already authorized. Surfaced, not
	// retried.
	ErrConnectionConflict = errors.New("connection conflict")

	// ErrDedupeViolation indicates a broken upsert key. A programming error;
	// logged loudly, never surfaced externally.
	ErrDedupeViolation = errors.New("dedupe violation")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks caller input that fails a domain invariant.
	ErrValidation = errors.New("validation failed")

	// ErrForbidden is returned when an entity exists but belongs to another
	// user.
	ErrForbidden = errors.New("forbidden")
)
