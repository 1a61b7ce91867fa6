package pipeline

import (
	"errors"
	"fmt"
)

// ErrShaderNotCompiled is returned when a descriptor references a shader with no live bytecode.
var ErrShaderNotCompiled = errors.New("shader has not been compiled")

// BuildError names the pipeline and, where known, the shader that caused a build to fail.
type BuildError struct {
	PSO    string
	Shader string
	Err    error
}

func (e *BuildError) Error() string {
	if e.Shader != "" {
		return fmt.Sprintf("pipeline %s (shader %s): %v", e.PSO, e.Shader, e.Err)
	}
	return fmt.Sprintf("pipeline %s: %v", e.PSO, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
