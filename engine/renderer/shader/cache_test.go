package shader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sourceCompiler "compiles" by expanding the source. A line containing #error fails with
// a diagnostic. The bytecode is the entry point followed by the expanded text.
type sourceCompiler struct {
	mu    sync.Mutex
	calls map[string]int
}

func newSourceCompiler() *sourceCompiler {
	return &sourceCompiler{calls: make(map[string]int)}
}

func (s *sourceCompiler) Compile(ctx context.Context, in CompileInput) (*CompileOutput, error) {
	s.mu.Lock()
	s.calls[in.ID]++
	s.mu.Unlock()

	pp := NewPreProcessor(in.IncludeDirs, in.Macros)
	src, err := pp.Process(in.SourcePath)
	if err != nil {
		return nil, err
	}
	if strings.Contains(src, "#error") {
		return nil, &CompileDiagnosticError{ID: in.ID, Diagnostic: "error directive"}
	}
	return &CompileOutput{Bytecode: []byte(in.EntryPoint + ":" + src), Dependencies: pp.Files()}, nil
}

func (s *sourceCompiler) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

type cacheFixture struct {
	dir      string
	cache    Cache
	compiler *sourceCompiler
	events   []string
	libs     []string
}

func newCacheFixture(t *testing.T, files map[string]string, idents ...Identity) *cacheFixture {
	t.Helper()
	dir := writeFiles(t, t.TempDir(), files)
	table, err := NewTable(idents...)
	require.NoError(t, err)

	f := &cacheFixture{dir: dir, compiler: newSourceCompiler()}
	f.cache = NewCache(table, f.compiler, WithShaderRoot(dir), WithWorkers(4))
	t.Cleanup(f.cache.Destroy)
	f.cache.ShaderRecompiled().Subscribe(func(id string) { f.events = append(f.events, id) })
	f.cache.LibraryRecompiled().Subscribe(func(id string) { f.libs = append(f.libs, id) })
	return f
}

func (f *cacheFixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

func (f *cacheFixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.path(name), []byte(content), 0o644))
}

func TestCacheCompileAll(t *testing.T) {
	f := newCacheFixture(t, map[string]string{
		"P.hlsl":       "#include \"Common.hlsli\"\npixel\n",
		"V.hlsl":       "vertex\n",
		"Common.hlsli": "common\n",
		"RT.hlsl":      "rays\n",
	},
		Identity{ID: "VS_Main", Source: "V.hlsl", EntryPoint: "VSMain", Stage: StageVertex},
		Identity{ID: "PS_Main", Source: "P.hlsl", EntryPoint: "PSMain", Stage: StagePixel},
		Identity{ID: "Lib_RT", Source: "RT.hlsl", Stage: StageLibrary},
	)

	assert.Equal(t, StateUncompiled, f.cache.State("PS_Main"))
	require.NoError(t, f.cache.CompileAll(context.Background()))

	assert.Equal(t, []string{"VS_Main", "PS_Main"}, f.events, "events fire in table order")
	assert.Equal(t, []string{"Lib_RT"}, f.libs)

	ps := f.cache.GetShader("PS_Main")
	assert.Equal(t, "PSMain:common\npixel\n", string(ps.Bytecode))
	assert.Equal(t, []string{f.path("Common.hlsli"), f.path("P.hlsl")}, ps.Dependencies)
	assert.Equal(t, StateCompiled, f.cache.State("PS_Main"))

	assert.Equal(t, []string{f.path("Common.hlsli"), f.path("P.hlsl"), f.path("RT.hlsl"), f.path("V.hlsl")}, f.cache.Files())
	assert.Equal(t, []string{"PS_Main"}, f.cache.Dependents(f.path("Common.hlsli")))
}

func TestCacheRecompileIsIdempotent(t *testing.T) {
	f := newCacheFixture(t, map[string]string{
		"P.hlsl":       "#include \"Common.hlsli\"\n",
		"Common.hlsli": "common\n",
	}, Identity{ID: "PS_Main", Source: "P.hlsl", EntryPoint: "main", Stage: StagePixel})
	ctx := context.Background()

	require.NoError(t, f.cache.CompileAll(ctx))
	first := f.cache.GetShader("PS_Main")

	require.NoError(t, f.cache.RecompileShader(ctx, "PS_Main"))
	second := f.cache.GetShader("PS_Main")

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"PS_Main", "PS_Main"}, f.events, "each successful compile fires once")
}

func TestCacheDependencySetIsReplaced(t *testing.T) {
	f := newCacheFixture(t, map[string]string{
		"P.hlsl":  "#include \"A.hlsli\"\n",
		"A.hlsli": "a\n",
		"B.hlsli": "b\n",
	}, Identity{ID: "PS_Main", Source: "P.hlsl", EntryPoint: "main", Stage: StagePixel})
	ctx := context.Background()
	require.NoError(t, f.cache.CompileAll(ctx))
	assert.Equal(t, []string{"PS_Main"}, f.cache.Dependents(f.path("A.hlsli")))

	f.write(t, "P.hlsl", "#include \"B.hlsli\"\n")
	assert.Equal(t, []string{"PS_Main"}, f.cache.OnFileChanged(ctx, f.path("P.hlsl")))

	assert.Equal(t, []string{f.path("B.hlsli"), f.path("P.hlsl")}, f.cache.GetShader("PS_Main").Dependencies)
	assert.Empty(t, f.cache.Dependents(f.path("A.hlsli")))
	assert.Empty(t, f.cache.OnFileChanged(ctx, f.path("A.hlsli")), "old dependency no longer triggers")
	assert.Equal(t, []string{"PS_Main"}, f.cache.OnFileChanged(ctx, f.path("B.hlsli")))
}

func TestCacheOnFileChangedRecompilesOnlyDependents(t *testing.T) {
	f := newCacheFixture(t, map[string]string{
		"A.hlsl":       "#include \"Shared.hlsli\"\n",
		"B.hlsl":       "b\n",
		"C.hlsl":       "#include \"Shared.hlsli\"\n",
		"Shared.hlsli": "shared\n",
	},
		Identity{ID: "C", Source: "C.hlsl", EntryPoint: "main", Stage: StageCompute},
		Identity{ID: "A", Source: "A.hlsl", EntryPoint: "main", Stage: StagePixel},
		Identity{ID: "B", Source: "B.hlsl", EntryPoint: "main", Stage: StagePixel},
	)
	ctx := context.Background()
	require.NoError(t, f.cache.CompileAll(ctx))
	f.events = nil

	ids := f.cache.OnFileChanged(ctx, filepath.Join(f.dir, ".", "Shared.hlsli"))
	assert.Equal(t, []string{"C", "A"}, ids, "table order")
	assert.Equal(t, []string{"C", "A"}, f.events)
	assert.Equal(t, 1, f.compiler.count("B"))
	assert.Equal(t, 2, f.compiler.count("A"))

	assert.Nil(t, f.cache.OnFileChanged(ctx, f.path("Unrelated.hlsli")))
}

func TestCacheFailureIsolation(t *testing.T) {
	f := newCacheFixture(t, map[string]string{
		"Good.hlsl": "good\n",
		"Bad.hlsl":  "#error broken\n",
	},
		Identity{ID: "Bad", Source: "Bad.hlsl", EntryPoint: "main", Stage: StagePixel},
		Identity{ID: "Good", Source: "Good.hlsl", EntryPoint: "main", Stage: StagePixel},
		Identity{ID: "Missing", Source: "Missing.hlsl", EntryPoint: "main", Stage: StagePixel},
	)
	ctx := context.Background()

	err := f.cache.CompileAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompileDiagnostic)
	assert.ErrorIs(t, err, ErrSourceNotFound)

	var failure *CompileFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "Bad", failure.ID)

	assert.Equal(t, []string{"Good"}, f.events)
	assert.Equal(t, StateCompiled, f.cache.State("Good"))
	assert.Equal(t, StateUncompiled, f.cache.State("Bad"))
	_, ok := f.cache.LookupShader("Bad")
	assert.False(t, ok)
	assert.Panics(t, func() { f.cache.GetShader("Bad") })

	// fixing the source of a shader that never compiled picks it up.
	f.write(t, "Bad.hlsl", "fixed\n")
	assert.Equal(t, []string{"Bad"}, f.cache.OnFileChanged(ctx, f.path("Bad.hlsl")))
	assert.Equal(t, StateCompiled, f.cache.State("Bad"))
	assert.Equal(t, "main:fixed\n", string(f.cache.GetShader("Bad").Bytecode))
}

func TestCacheFirstFailureWatchesIncludes(t *testing.T) {
	f := newCacheFixture(t, map[string]string{
		"P.hlsl":       "#include \"Common.hlsli\"\npixel\n",
		"Common.hlsli": "#ifdef DEBUG\n#include \"Debug.hlsli\"\n#endif\n#error broken header\n",
		"Debug.hlsli":  "debug\n",
	}, Identity{ID: "PS_Main", Source: "P.hlsl", EntryPoint: "main", Stage: StagePixel})
	ctx := context.Background()

	require.Error(t, f.cache.CompileAll(ctx))
	assert.Equal(t, StateUncompiled, f.cache.State("PS_Main"))
	assert.Equal(t, []string{"PS_Main"}, f.cache.Dependents(f.path("Common.hlsli")))
	assert.Equal(t, []string{"PS_Main"}, f.cache.Dependents(f.path("Debug.hlsli")), "inactive branches are scanned too")

	f.write(t, "Common.hlsli", "common\n")
	assert.Equal(t, []string{"PS_Main"}, f.cache.OnFileChanged(ctx, f.path("Common.hlsli")))
	assert.Equal(t, StateCompiled, f.cache.State("PS_Main"))
	assert.Equal(t, "main:common\npixel\n", string(f.cache.GetShader("PS_Main").Bytecode))
	assert.Empty(t, f.cache.Dependents(f.path("Debug.hlsli")), "the exact set replaces the scan")
}

func TestCacheFailedRecompileKeepsPreviousBytecode(t *testing.T) {
	f := newCacheFixture(t, map[string]string{
		"P.hlsl": "v1\n",
	}, Identity{ID: "PS_Main", Source: "P.hlsl", EntryPoint: "main", Stage: StagePixel})
	ctx := context.Background()
	require.NoError(t, f.cache.CompileAll(ctx))

	f.write(t, "P.hlsl", "#error\n")
	assert.Equal(t, []string{"PS_Main"}, f.cache.OnFileChanged(ctx, f.path("P.hlsl")))
	assert.Equal(t, "main:v1\n", string(f.cache.GetShader("PS_Main").Bytecode))
	assert.Equal(t, StateStale, f.cache.State("PS_Main"))
	assert.Len(t, f.events, 1, "failed recompile fires no event")

	f.write(t, "P.hlsl", "v2\n")
	require.NoError(t, f.cache.RecompileShader(ctx, "PS_Main"))
	assert.Equal(t, "main:v2\n", string(f.cache.GetShader("PS_Main").Bytecode))
	assert.Equal(t, StateCompiled, f.cache.State("PS_Main"))
}

func TestCacheUnknownShader(t *testing.T) {
	f := newCacheFixture(t, map[string]string{"P.hlsl": "p\n"},
		Identity{ID: "PS_Main", Source: "P.hlsl", EntryPoint: "main", Stage: StagePixel})

	assert.ErrorIs(t, f.cache.RecompileShader(context.Background(), "Nope"), ErrUnknownShader)
	assert.ErrorIs(t, f.cache.SubmitRecompile(context.Background(), "Nope"), ErrUnknownShader)
	assert.Equal(t, StateUncompiled, f.cache.State("Nope"))
}

func TestCacheCompileObserver(t *testing.T) {
	dir := writeFiles(t, t.TempDir(), map[string]string{"P.hlsl": "p\n"})
	table, err := NewTable(
		Identity{ID: "PS_Main", Source: "P.hlsl", EntryPoint: "main", Stage: StagePixel},
		Identity{ID: "PS_Missing", Source: "Missing.hlsl", EntryPoint: "main", Stage: StagePixel},
	)
	require.NoError(t, err)

	var seen []string
	var failed int
	c := NewCache(table, newSourceCompiler(), WithShaderRoot(dir), WithCompileObserver(func(id string, elapsed time.Duration, err error) {
		seen = append(seen, id)
		if err != nil {
			failed++
		}
	}))
	defer c.Destroy()

	_ = c.CompileAll(context.Background())
	assert.Equal(t, []string{"PS_Main", "PS_Missing"}, seen)
	assert.Equal(t, 1, failed)
}

func TestCacheAsyncRecompileAppliesOnDrain(t *testing.T) {
	f := newCacheFixture(t, map[string]string{
		"P.hlsl": "v1\n",
	}, Identity{ID: "PS_Main", Source: "P.hlsl", EntryPoint: "main", Stage: StagePixel})
	ctx := context.Background()
	require.NoError(t, f.cache.CompileAll(ctx))
	f.events = nil

	f.write(t, "P.hlsl", "v2\n")
	require.NoError(t, f.cache.SubmitRecompile(ctx, "PS_Main"))
	assert.Equal(t, StateStale, f.cache.State("PS_Main"))

	require.Eventually(t, func() bool { return f.cache.Pending() == 0 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, "main:v1\n", string(f.cache.GetShader("PS_Main").Bytecode), "nothing applied before drain")
	assert.Empty(t, f.events)

	assert.Equal(t, 1, f.cache.DrainCompleted())
	assert.Equal(t, "main:v2\n", string(f.cache.GetShader("PS_Main").Bytecode))
	assert.Equal(t, []string{"PS_Main"}, f.events)
	assert.Equal(t, 0, f.cache.DrainCompleted())
}

func TestCacheConcurrentReadsDuringRecompile(t *testing.T) {
	f := newCacheFixture(t, map[string]string{"P.hlsl": "p\n"},
		Identity{ID: "PS_Main", Source: "P.hlsl", EntryPoint: "main", Stage: StagePixel})
	ctx := context.Background()
	require.NoError(t, f.cache.CompileAll(ctx))

	var stop atomic.Bool
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				s := f.cache.GetShader("PS_Main")
				if len(s.Bytecode) == 0 {
					t.Error("torn read")
					return
				}
			}
		}()
	}
	for range 20 {
		require.NoError(t, f.cache.RecompileShader(ctx, "PS_Main"))
	}
	stop.Store(true)
	wg.Wait()
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uncompiled", StateUncompiled.String())
	assert.Equal(t, "compiled", StateCompiled.String())
	assert.Equal(t, "stale", StateStale.String())
	assert.Equal(t, "State(9)", State(9).String())
}

// gatedCompiler returns the raw source as bytecode. Sources starting with "slow" block
// until release is closed, after reporting on started.
type gatedCompiler struct {
	started chan string
	release chan struct{}
}

func (g *gatedCompiler) Compile(ctx context.Context, in CompileInput) (*CompileOutput, error) {
	data, err := os.ReadFile(in.SourcePath)
	if err != nil {
		return nil, &SourceNotFoundError{Path: in.SourcePath, Err: err}
	}
	if strings.HasPrefix(string(data), "slow") {
		g.started <- string(data)
		<-g.release
	}
	return &CompileOutput{Bytecode: data}, nil
}

func TestCacheDrainDropsSupersededCompile(t *testing.T) {
	dir := writeFiles(t, t.TempDir(), map[string]string{"P.hlsl": "v1"})
	table, err := NewTable(Identity{ID: "PS_Main", Source: "P.hlsl", EntryPoint: "main", Stage: StagePixel})
	require.NoError(t, err)
	g := &gatedCompiler{started: make(chan string, 1), release: make(chan struct{})}
	c := NewCache(table, g, WithShaderRoot(dir), WithWorkers(2))
	defer c.Destroy()
	ctx := context.Background()
	require.NoError(t, c.CompileAll(ctx))

	var events int
	c.ShaderRecompiled().Subscribe(func(string) { events++ })

	write := func(content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "P.hlsl"), []byte(content), 0o644))
	}
	write("slow v2")
	require.NoError(t, c.SubmitRecompile(ctx, "PS_Main"))
	assert.Equal(t, "slow v2", <-g.started)

	write("v3")
	require.NoError(t, c.SubmitRecompile(ctx, "PS_Main"))
	require.Eventually(t, func() bool { return c.Pending() == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, c.DrainCompleted())
	assert.Equal(t, "v3", string(c.GetShader("PS_Main").Bytecode))

	close(g.release)
	require.Eventually(t, func() bool { return c.Pending() == 0 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.DrainCompleted(), "the older compile finished last and is dropped")
	assert.Equal(t, "v3", string(c.GetShader("PS_Main").Bytecode))
	assert.Equal(t, StateCompiled, c.State("PS_Main"))
	assert.Equal(t, 1, events)
}
