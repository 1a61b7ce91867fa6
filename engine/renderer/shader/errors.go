package shader

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceNotFound is matched by errors for missing or unreadable source and include files.
	ErrSourceNotFound = errors.New("shader source not found")

	// ErrCompileDiagnostic is matched by errors carrying compiler diagnostics.
	ErrCompileDiagnostic = errors.New("shader compile diagnostic")

	// ErrUnknownShader is returned for ids that are not in the identity table.
	ErrUnknownShader = errors.New("unknown shader")
)

// SourceNotFoundError reports a source or include file that could not be read.
type SourceNotFoundError struct {
	Path string
	// IncludedFrom is the file containing the failing #include, empty for the root source.
	IncludedFrom string
	Err          error
}

func (e *SourceNotFoundError) Error() string {
	if e.IncludedFrom != "" {
		return fmt.Sprintf("shader: %s (included from %s) not found: %v", e.Path, e.IncludedFrom, e.Err)
	}
	return fmt.Sprintf("shader: %s not found: %v", e.Path, e.Err)
}

func (e *SourceNotFoundError) Is(target error) bool {
	return target == ErrSourceNotFound
}

func (e *SourceNotFoundError) Unwrap() error {
	return e.Err
}

// CompileDiagnosticError carries the diagnostic text of a rejected compile.
type CompileDiagnosticError struct {
	ID         string
	Diagnostic string
}

func (e *CompileDiagnosticError) Error() string {
	return fmt.Sprintf("shader: %s failed to compile:\n%s", e.ID, e.Diagnostic)
}

func (e *CompileDiagnosticError) Unwrap() error {
	return ErrCompileDiagnostic
}

// CompileFailure associates a compile error with the shader id that produced it.
type CompileFailure struct {
	ID  string
	Err error
}

func (e *CompileFailure) Error() string {
	return fmt.Sprintf("shader %s: %v", e.ID, e.Err)
}

func (e *CompileFailure) Unwrap() error {
	return e.Err
}
