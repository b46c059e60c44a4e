package pregnancy

import "errors"

var (
	// ErrInvalidDate is returned for malformed or out-of-range anchor and
	// checkpoint dates.
	ErrInvalidDate = errors.New("invalid date")
	// ErrNotFound is returned when a transfer or checkpoint id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalidResult is returned when a result cannot be recorded.
	ErrInvalidResult = errors.New("invalid result")
	// ErrConflict is returned when a tracking was modified concurrently.
	ErrConflict = errors.New("tracking was modified concurrently")
	// ErrInvalidView is returned for an unknown calendar view name.
	ErrInvalidView = errors.New("invalid calendar view")
)
