package shader

import (
	"log/slog"
	"time"
)

// CacheBuilderOption is a functional option used to configure a Cache during construction.
type CacheBuilderOption func(*cache)

// CompileObserver is notified after every compile attempt, on the goroutine that applies
// the result.
type CompileObserver func(id string, elapsed time.Duration, err error)

// WithLogger sets the structured logger. Defaults to slog.Default().
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - CacheBuilderOption: a function that sets the logger
func WithLogger(l *slog.Logger) CacheBuilderOption {
	return func(c *cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWorkers sets the maximum number of concurrent compiles.
// Values <= 0 are treated as the default (runtime.NumCPU()).
//
// Parameters:
//   - n: the worker count
//
// Returns:
//   - CacheBuilderOption: a function that sets the worker count
func WithWorkers(n int) CacheBuilderOption {
	return func(c *cache) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithShaderRoot sets the directory identity sources are relative to. The root is also
// searched for includes after any explicit include directories.
//
// Parameters:
//   - dir: the shader root directory
//
// Returns:
//   - CacheBuilderOption: a function that sets the shader root
func WithShaderRoot(dir string) CacheBuilderOption {
	return func(c *cache) {
		c.root = dir
	}
}

// WithIncludeDirs appends include search directories.
func WithIncludeDirs(dirs ...string) CacheBuilderOption {
	return func(c *cache) {
		c.includeDirs = append(c.includeDirs, dirs...)
	}
}

// WithFlags sets the compile flags used for every shader.
func WithFlags(f CompileFlags) CacheBuilderOption {
	return func(c *cache) {
		c.flags = f
	}
}

// WithCompileObserver registers a callback invoked for every applied compile result.
//
// Parameters:
//   - fn: the observer
//
// Returns:
//   - CacheBuilderOption: a function that adds the observer
func WithCompileObserver(fn CompileObserver) CacheBuilderOption {
	return func(c *cache) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}
