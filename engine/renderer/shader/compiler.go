package shader

import (
	"context"
)

// CompileFlags are the optimization and debug switches shared by every compile.
type CompileFlags struct {
	// Debug embeds debug information.
	Debug bool

	// DisableOptimization compiles with optimizations off.
	DisableOptimization bool

	// ExtraArgs are passed verbatim to backends that invoke an external tool.
	ExtraArgs []string
}

// CompileInput is everything a Compiler needs to compile one shader.
type CompileInput struct {
	// ID is the shader identity key, used for diagnostics and precompiled lookups.
	ID string

	// SourcePath is the absolute path of the source file.
	SourcePath string

	EntryPoint string
	Stage      Stage
	Model      ShaderModel
	Macros     []Macro

	// IncludeDirs are searched in order after the including file's directory.
	IncludeDirs []string

	Flags CompileFlags
}

// CompileOutput is the result of a successful compile.
type CompileOutput struct {
	// Bytecode is the compiled DXBC container.
	Bytecode []byte

	// Dependencies are the absolute paths of every file read while compiling, source first.
	Dependencies []string
}

// Compiler turns shader source into bytecode. Implementations must not touch shared state
// and must be safe to call concurrently for different inputs.
type Compiler interface {
	// Compile compiles one shader.
	//
	// Parameters:
	//   - ctx: cancels external compiler processes
	//   - in: the compile input
	//
	// Returns:
	//   - *CompileOutput: the bytecode and dependent files
	//   - error: a *SourceNotFoundError, a *CompileDiagnosticError, or a backend failure
	Compile(ctx context.Context, in CompileInput) (*CompileOutput, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(ctx context.Context, in CompileInput) (*CompileOutput, error)

func (f CompilerFunc) Compile(ctx context.Context, in CompileInput) (*CompileOutput, error) {
	return f(ctx, in)
}
