package device

import (
	"errors"
	"fmt"
)

// ErrGpuObjectCreation is matched by every error a Device returns from a Create method.
var ErrGpuObjectCreation = errors.New("gpu object creation failure")

// Error describes a device object the device refused to create.
type Error struct {
	Kind  ObjectKind
	Label string
	Err   error
}

func newError(kind ObjectKind, label string, err error) *Error {
	return &Error{Kind: kind, Label: label, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("device: failed to create %s %q: %v", e.Kind, e.Label, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrGpuObjectCreation}
	}
	return []error{ErrGpuObjectCreation, e.Err}
}
