package engines

import "github.com/pkg/errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrOutOfBounds is returned by memory views for accesses past the end of memory.
	ErrOutOfBounds = errors.New("out of bounds memory access")
	// ErrBadArgument is returned when call arguments do not match a guest function signature.
	ErrBadArgument = errors.New("bad argument")
)
