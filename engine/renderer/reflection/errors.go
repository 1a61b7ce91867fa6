package reflection

import (
	"errors"
	"fmt"
)

// ErrReflectionFailure is matched by every error returned from this package.
var ErrReflectionFailure = errors.New("reflection failure")

// Error describes bytecode that lacks, or carries malformed, reflection metadata.
type Error struct {
	Op     string
	Reason string
}

func newError(op, reason string) *Error {
	return &Error{Op: op, Reason: reason}
}

func (e *Error) Error() string {
	return fmt.Sprintf("reflection: %s: %s", e.Op, e.Reason)
}

func (e *Error) Unwrap() error {
	return ErrReflectionFailure
}
