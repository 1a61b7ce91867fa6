package shader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/adria-go/common"
	"github.com/Carmen-Shannon/automation/tools/worker"
)

// State is the compile state of one shader id.
type State int

const (
	// StateUncompiled means no compile of the id has succeeded yet.
	StateUncompiled State = iota

	// StateCompiled means the live bytecode reflects the sources as of the last compile.
	StateCompiled

	// StateStale means a dependency changed and no recompile has succeeded since. The
	// previous bytecode stays live.
	StateStale
)

func (s State) String() string {
	switch s {
	case StateUncompiled:
		return "uncompiled"
	case StateCompiled:
		return "compiled"
	case StateStale:
		return "stale"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// CompiledShader is the live compile output for one id.
type CompiledShader struct {
	ID       string
	Bytecode []byte

	// Dependencies is the sorted set of absolute paths read by the compile, source included.
	Dependencies []string
}

// cache is the implementation of the Cache interface.
type cache struct {
	table       *Table
	compiler    Compiler
	logger      *slog.Logger
	root        string
	includeDirs []string
	flags       CompileFlags
	workers     int
	observers   []CompileObserver
	pool        worker.DynamicWorkerPool

	mu         sync.RWMutex
	shaders    map[string]CompiledShader
	states     map[string]State
	deps       map[string][]string
	dependents map[string]map[string]struct{}

	shaderRecompiled  common.Event[string]
	libraryRecompiled common.Event[string]

	doneMu      sync.Mutex
	completed   []compileResult
	generations map[string]uint64
	pending     atomic.Int64

	destroyOnce sync.Once
}

// Cache owns compiled bytecode and the file dependency graph for a fixed identity table.
// Map reads are safe from any goroutine; compiles that change the maps are applied on the
// calling goroutine, which is also where recompiled events are broadcast.
type Cache interface {
	// CompileAll compiles every identity on the worker pool, waits for all of them, then
	// applies the results in table order on the calling goroutine. Failures do not stop the
	// remaining compiles.
	//
	// Parameters:
	//   - ctx: cancels external compiler processes
	//
	// Returns:
	//   - error: nil, or an errors.Join of *CompileFailure values for every failed id
	CompileAll(ctx context.Context) error

	// RecompileShader synchronously recompiles one id. On success the bytecode and the
	// dependency set are replaced and the recompiled event fires. On failure the previous
	// bytecode stays live.
	//
	// Parameters:
	//   - ctx: cancels external compiler processes
	//   - id: the shader id
	//
	// Returns:
	//   - error: ErrUnknownShader, or a *CompileFailure
	RecompileShader(ctx context.Context, id string) error

	// OnFileChanged recompiles every id whose dependency set contains path, in table order.
	// Each recompile is independent; a failure is logged and does not stop the others.
	//
	// Parameters:
	//   - ctx: cancels external compiler processes
	//   - path: the changed file
	//
	// Returns:
	//   - []string: the ids that were recompiled, successfully or not
	OnFileChanged(ctx context.Context, path string) []string

	// Dependents returns the ids whose dependency set contains path, in table order.
	Dependents(path string) []string

	// GetShader returns the live compile output. It panics if id has never compiled.
	//
	// Parameters:
	//   - id: the shader id
	//
	// Returns:
	//   - CompiledShader: the live bytecode and dependencies
	GetShader(id string) CompiledShader

	// LookupShader returns the live compile output and whether id has ever compiled.
	LookupShader(id string) (CompiledShader, bool)

	// State returns the compile state of id. Unknown ids report StateUncompiled.
	State(id string) State

	// Files returns every file any shader depends on, sorted.
	Files() []string

	// Table returns the identity table the cache was built with.
	Table() *Table

	// ShaderRecompiled fires with the id after each successful compile of a non-library shader.
	ShaderRecompiled() *common.Event[string]

	// LibraryRecompiled fires with the id after each successful compile of a library shader.
	LibraryRecompiled() *common.Event[string]

	// SubmitRecompile queues an asynchronous recompile; see DrainCompleted.
	//
	// Parameters:
	//   - ctx: cancels the external compiler process
	//   - id: the shader id
	//
	// Returns:
	//   - error: ErrUnknownShader
	SubmitRecompile(ctx context.Context, id string) error

	// DrainCompleted applies every finished asynchronous compile on the calling goroutine
	// and fires the matching events. A result is dropped when a later compile of the same id
	// was started, so an older edit never replaces newer bytecode.
	//
	// Returns:
	//   - int: the number of results applied
	DrainCompleted() int

	// Pending returns the number of asynchronous compiles still running.
	Pending() int

	// Destroy stops the worker pool. The cache must not be used afterwards.
	Destroy()
}

var _ Cache = &cache{}

// NewCache creates a Cache over table that compiles with compiler.
//
// Parameters:
//   - table: the identity table
//   - compiler: the compiler backend
//   - opts: optional configuration
//
// Returns:
//   - Cache: the shader cache, with its worker pool started
func NewCache(table *Table, compiler Compiler, opts ...CacheBuilderOption) Cache {
	c := &cache{
		table:      table,
		compiler:   compiler,
		logger:     slog.Default(),
		workers:    runtime.NumCPU(),
		shaders:    make(map[string]CompiledShader, table.Len()),
		states:     make(map[string]State, table.Len()),
		deps:       make(map[string][]string, table.Len()),
		dependents: make(map[string]map[string]struct{}),

		generations: make(map[string]uint64, table.Len()),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pool = worker.NewDynamicWorkerPool(c.workers, max(table.Len(), 16), time.Second)
	return c
}

func (c *cache) CompileAll(ctx context.Context) error {
	idents := c.table.Identities()
	c.logger.Info("Compiling all shaders...", "count", len(idents), "workers", c.workers)
	start := time.Now()

	results := make([]compileResult, len(idents))
	var wg sync.WaitGroup
	for i, ident := range idents {
		wg.Add(1)
		c.stamp(ident.ID)
		c.submit(ctx, ident, func(r compileResult) {
			defer wg.Done()
			results[i] = r
		})
	}
	wg.Wait()

	var errs []error
	for _, r := range results {
		if err := c.apply(r); err != nil {
			errs = append(errs, err)
		}
	}
	c.logger.Info("Compiled all shaders", "count", len(idents), "failed", len(errs), "elapsed", time.Since(start))
	return errors.Join(errs...)
}

func (c *cache) RecompileShader(ctx context.Context, id string) error {
	ident, ok := c.table.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownShader, id)
	}
	c.markStale(id)
	c.stamp(id)
	return c.apply(c.compile(ctx, ident))
}

func (c *cache) OnFileChanged(ctx context.Context, path string) []string {
	ids := c.Dependents(path)
	if len(ids) == 0 {
		return nil
	}
	c.logger.Debug("shader dependency changed", "path", path, "shaders", ids)
	for _, id := range ids {
		c.markStale(id)
	}
	for _, id := range ids {
		_ = c.RecompileShader(ctx, id)
	}
	return ids
}

func (c *cache) Dependents(path string) []string {
	key := cleanPath(path)
	c.mu.RLock()
	set := c.dependents[key]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool {
		return c.table.order(ids[i]) < c.table.order(ids[j])
	})
	return ids
}

func (c *cache) GetShader(id string) CompiledShader {
	s, ok := c.LookupShader(id)
	if !ok {
		panic(fmt.Sprintf("shader: GetShader(%q) called before the shader compiled", id))
	}
	return s
}

func (c *cache) LookupShader(id string) (CompiledShader, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.shaders[id]
	return s, ok
}

func (c *cache) State(id string) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.states[id]
}

func (c *cache) Files() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return common.SortedKeys(c.dependents)
}

func (c *cache) Table() *Table {
	return c.table
}

func (c *cache) ShaderRecompiled() *common.Event[string] {
	return &c.shaderRecompiled
}

func (c *cache) LibraryRecompiled() *common.Event[string] {
	return &c.libraryRecompiled
}

func (c *cache) Destroy() {
	c.destroyOnce.Do(func() {
		c.pool.Stop()
	})
}

// compile runs the backend for ident. It touches no cache maps and is safe on any goroutine.
func (c *cache) compile(ctx context.Context, ident Identity) compileResult {
	start := time.Now()
	out, err := c.compiler.Compile(ctx, CompileInput{
		ID:          ident.ID,
		SourcePath:  c.sourcePath(ident),
		EntryPoint:  ident.EntryPoint,
		Stage:       ident.Stage,
		Model:       ident.Model,
		Macros:      ident.Macros,
		IncludeDirs: c.searchDirs(),
		Flags:       c.flags,
	})
	if err == nil && (out == nil || len(out.Bytecode) == 0) {
		err = &CompileDiagnosticError{ID: ident.ID, Diagnostic: "compiler returned no bytecode"}
	}
	return compileResult{id: ident.ID, out: out, err: err, elapsed: time.Since(start)}
}

// apply installs a compile result and fires the matching event. Must be called from the
// goroutine that owns event dispatch.
func (c *cache) apply(r compileResult) error {
	ident, _ := c.table.Lookup(r.id)
	for _, obs := range c.observers {
		obs(r.id, r.elapsed, r.err)
	}

	if r.err != nil {
		// a shader that never compiled still needs its files watched so a fix is picked up.
		c.mu.RLock()
		_, compiled := c.shaders[r.id]
		c.mu.RUnlock()
		if !compiled {
			deps := c.provisionalDependencies(ident)
			c.mu.Lock()
			c.setDependencies(r.id, deps)
			c.mu.Unlock()
		}

		var diag *CompileDiagnosticError
		if errors.As(r.err, &diag) {
			c.logger.Error("shader compile failed", "shader", r.id, "diagnostic", diag.Diagnostic)
		} else {
			c.logger.Error("shader compile failed", "shader", r.id, "error", r.err)
		}
		return &CompileFailure{ID: r.id, Err: r.err}
	}

	deps := normalizeDependencies(append(slices.Clone(r.out.Dependencies), c.sourcePath(ident)))
	c.mu.Lock()
	c.shaders[r.id] = CompiledShader{ID: r.id, Bytecode: r.out.Bytecode, Dependencies: deps}
	c.states[r.id] = StateCompiled
	c.setDependencies(r.id, deps)
	c.mu.Unlock()

	if ident.IsLibrary() {
		c.libraryRecompiled.Broadcast(r.id)
	} else {
		c.shaderRecompiled.Broadcast(r.id)
	}
	return nil
}

// searchDirs returns the include directories handed to the compiler: the configured ones,
// then the shader root.
func (c *cache) searchDirs() []string {
	dirs := slices.Clone(c.includeDirs)
	if c.root != "" {
		dirs = append(dirs, c.root)
	}
	return dirs
}

// provisionalDependencies scans ident's source for every reachable include, through both
// branches of every conditional. Files read before a scan error are kept.
func (c *cache) provisionalDependencies(ident Identity) []string {
	src := c.sourcePath(ident)
	scanner := NewDependencyScanner(c.searchDirs())
	if _, err := scanner.Process(src); err != nil {
		c.logger.Debug("dependency scan incomplete", "shader", ident.ID, "error", err)
	}
	return normalizeDependencies(append(scanner.Files(), src))
}

func (c *cache) markStale(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states[id] == StateCompiled {
		c.states[id] = StateStale
	}
}

// setDependencies replaces the dependency set of id and updates the reverse index.
// Callers hold c.mu.
func (c *cache) setDependencies(id string, deps []string) {
	for _, old := range c.deps[id] {
		if set, ok := c.dependents[old]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(c.dependents, old)
			}
		}
	}
	c.deps[id] = deps
	for _, p := range deps {
		set, ok := c.dependents[p]
		if !ok {
			set = make(map[string]struct{})
			c.dependents[p] = set
		}
		set[id] = struct{}{}
	}
}

func (c *cache) sourcePath(ident Identity) string {
	if filepath.IsAbs(ident.Source) || c.root == "" {
		return ident.Source
	}
	return filepath.Join(c.root, ident.Source)
}

func cleanPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func normalizeDependencies(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, cleanPath(p))
	}
	slices.Sort(out)
	return slices.Compact(out)
}
