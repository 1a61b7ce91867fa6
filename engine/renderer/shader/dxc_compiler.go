package shader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mattn/go-shellwords"
)

// commandRunner executes an external tool and returns its stderr on failure.
type commandRunner func(ctx context.Context, name string, args []string) (stderr []byte, err error)

// dxcCompiler is the implementation of the Compiler interface that shells out to dxc.
type dxcCompiler struct {
	path      string
	extraArgs []string
	run       commandRunner
}

var _ Compiler = &dxcCompiler{}

// DXCCompilerBuilderOption is a functional option used to configure the dxc compiler.
type DXCCompilerBuilderOption func(*dxcCompiler) error

// WithDXCPath sets the dxc executable. Defaults to "dxc" resolved on PATH.
//
// Parameters:
//   - path: the executable path
//
// Returns:
//   - DXCCompilerBuilderOption: a function that sets the executable path
func WithDXCPath(path string) DXCCompilerBuilderOption {
	return func(c *dxcCompiler) error {
		c.path = path
		return nil
	}
}

// WithDXCArgs appends extra command-line arguments, split with shell quoting rules.
//
// Parameters:
//   - args: the argument string, e.g. `-HV 2021 -enable-16bit-types`
//
// Returns:
//   - DXCCompilerBuilderOption: a function that appends the parsed arguments
func WithDXCArgs(args string) DXCCompilerBuilderOption {
	return func(c *dxcCompiler) error {
		parsed, err := shellwords.Parse(args)
		if err != nil {
			return fmt.Errorf("shader: invalid dxc arguments %q: %w", args, err)
		}
		c.extraArgs = append(c.extraArgs, parsed...)
		return nil
	}
}

func withCommandRunner(run commandRunner) DXCCompilerBuilderOption {
	return func(c *dxcCompiler) error {
		c.run = run
		return nil
	}
}

// NewDXCCompiler creates a Compiler that invokes the DirectX Shader Compiler.
// Dependencies are gathered by scanning #include directives on every branch, so a
// header referenced only inside an inactive #ifdef is still reported.
//
// Parameters:
//   - opts: optional configuration
//
// Returns:
//   - Compiler: the dxc backed compiler
//   - error: an error if an option is invalid
func NewDXCCompiler(opts ...DXCCompilerBuilderOption) (Compiler, error) {
	c := &dxcCompiler{
		path: "dxc",
		run:  execRunner,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *dxcCompiler) Compile(ctx context.Context, in CompileInput) (*CompileOutput, error) {
	scanner := NewDependencyScanner(in.IncludeDirs)
	if _, err := scanner.Process(in.SourcePath); err != nil {
		return nil, err
	}

	out, err := os.CreateTemp("", "adria-*.cso")
	if err != nil {
		return nil, fmt.Errorf("shader: failed to create output file: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	stderr, err := c.run(ctx, c.path, c.arguments(in, outPath))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &CompileDiagnosticError{ID: in.ID, Diagnostic: string(bytes.TrimSpace(stderr))}
		}
		return nil, fmt.Errorf("shader: failed to run %s: %w", c.path, err)
	}

	bytecode, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("shader: failed to read dxc output for %s: %w", in.ID, err)
	}
	if len(bytecode) == 0 {
		return nil, &CompileDiagnosticError{ID: in.ID, Diagnostic: "dxc produced no output"}
	}
	return &CompileOutput{Bytecode: bytecode, Dependencies: scanner.Files()}, nil
}

// arguments builds the dxc command line. Order is stable so identical inputs produce
// identical invocations.
func (c *dxcCompiler) arguments(in CompileInput, outPath string) []string {
	args := []string{"-T", Profile(in.Stage, in.Model)}
	if in.Stage != StageLibrary {
		args = append(args, "-E", in.EntryPoint)
	}
	for _, m := range in.Macros {
		args = append(args, "-D", m.String())
	}
	for _, dir := range in.IncludeDirs {
		args = append(args, "-I", dir)
	}
	if in.Flags.Debug {
		args = append(args, "-Zi", "-Qembed_debug")
	}
	if in.Flags.DisableOptimization {
		args = append(args, "-Od")
	} else {
		args = append(args, "-O3")
	}
	args = append(args, c.extraArgs...)
	args = append(args, in.Flags.ExtraArgs...)
	args = append(args, "-Fo", outPath, filepath.Clean(in.SourcePath))
	return args
}

func execRunner(ctx context.Context, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}
