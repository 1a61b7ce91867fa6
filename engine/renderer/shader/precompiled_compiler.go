package shader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// precompiledCompiler is the implementation of the Compiler interface that loads
// offline-built blobs instead of compiling.
type precompiledCompiler struct {
	dir string
}

var _ Compiler = &precompiledCompiler{}

// NewPrecompiledCompiler creates a Compiler that reads <dir>/<id>.cso. The source file is
// still reported as a dependency so that editing it re-reads the blob.
//
// Parameters:
//   - dir: the directory holding compiled shader objects
//
// Returns:
//   - Compiler: the precompiled blob loader
func NewPrecompiledCompiler(dir string) Compiler {
	return &precompiledCompiler{dir: dir}
}

func (c *precompiledCompiler) Compile(ctx context.Context, in CompileInput) (*CompileOutput, error) {
	blobPath, err := filepath.Abs(filepath.Join(c.dir, in.ID+".cso"))
	if err != nil {
		return nil, &SourceNotFoundError{Path: in.ID + ".cso", Err: err}
	}
	data, err := os.ReadFile(blobPath)
	if err != nil {
		return nil, &SourceNotFoundError{Path: blobPath, Err: err}
	}
	if len(data) == 0 {
		return nil, &CompileDiagnosticError{ID: in.ID, Diagnostic: fmt.Sprintf("%s is empty", blobPath)}
	}

	deps := []string{filepath.Clean(blobPath)}
	if in.SourcePath != "" {
		if src, err := filepath.Abs(in.SourcePath); err == nil {
			deps = append(deps, filepath.Clean(src))
		}
	}
	return &CompileOutput{Bytecode: data, Dependencies: deps}, nil
}
