package hop_core

import "errors"

var (
	// ErrInvalidPattern is returned when a pattern set or state holds a value
	// outside {-1,+1}, or the pattern set is empty.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrDimensionMismatch is returned when two vectors that must share a
	// length do not.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)
