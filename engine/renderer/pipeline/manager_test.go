package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/adria-go/engine/renderer/device"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/reflection"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scopeIdentities model P{A,B} and Q{B,C}: A and C are vertex shaders, B is a shared pixel shader.
var scopeIdentities = []shader.Identity{
	{ID: "A", Source: "A.hlsl", EntryPoint: "main", Stage: shader.StageVertex},
	{ID: "B", Source: "B.hlsl", EntryPoint: "main", Stage: shader.StagePixel},
	{ID: "C", Source: "C.hlsl", EntryPoint: "main", Stage: shader.StageVertex},
}

var scopeFiles = map[string]string{
	"A.hlsl": "a\n",
	"B.hlsl": "b\n",
	"C.hlsl": "c\n",
}

func newScopeManager(t *testing.T, f *fixture, opts ...ManagerBuilderOption) Manager {
	t.Helper()
	m := NewManager(f.cache, f.device, opts...)
	t.Cleanup(m.Destroy)
	require.NoError(t, m.Register("P", NewGraphicsDescriptor("A", "B")))
	require.NoError(t, m.Register("Q", NewGraphicsDescriptor("C", "B")))
	return m
}

func TestManagerRegister(t *testing.T) {
	f := newFixture(t, scopeFiles, scopeIdentities)
	m := NewManager(f.cache, f.device)

	require.NoError(t, m.Register("P", NewGraphicsDescriptor("A", "B")))
	assert.Error(t, m.Register("P", NewGraphicsDescriptor("A", "B")))
	assert.Error(t, m.Register("", NewGraphicsDescriptor("A", "B")))
	assert.Error(t, m.Register("X", NewGraphicsDescriptor("", "B")))

	desc := NewGraphicsDescriptor("C", "B")
	require.NoError(t, m.Register("Q", desc))
	desc.Graphics.VS = "A"
	stored, ok := m.Descriptor("Q")
	require.True(t, ok)
	assert.Equal(t, "C", stored.Graphics.VS, "the manager keeps its own copy")

	assert.Equal(t, []string{"P", "Q"}, m.IDs())
	assert.Equal(t, StateUnbuilt, m.State("P"))
	assert.Nil(t, m.Get("P"))
	assert.Panics(t, func() { m.MustGet("P") })

	require.NoError(t, m.Initialize(context.Background()))
	assert.Error(t, m.Register("R", NewGraphicsDescriptor("A", "B")))
	assert.Error(t, m.Initialize(context.Background()))
	m.Destroy()
}

func TestManagerInitialize(t *testing.T) {
	f := newFixture(t, scopeFiles, scopeIdentities)
	var observed atomic.Int32
	m := newScopeManager(t, f, WithBuildObserver(func(id string, elapsed time.Duration, err error) {
		observed.Add(1)
	}))

	require.NoError(t, m.Initialize(context.Background()))
	for _, id := range []string{"P", "Q"} {
		assert.Equal(t, StateBuilt, m.State(id))
		assert.NotNil(t, m.MustGet(id))
		assert.NotNil(t, m.RootSignature(id))
	}
	assert.Equal(t, 4, f.device.LiveObjects())
	assert.Equal(t, int32(2), observed.Load())

	rec, ok := m.Dependencies("Q")
	require.True(t, ok)
	assert.Equal(t, []string{"C", "B"}, rec.Shaders)

	stats := m.Stats()
	assert.Equal(t, 2, stats.Registered)
	assert.Equal(t, 2, stats.Builds)
	assert.Equal(t, 2, stats.Live)
}

func TestManagerRebuildScope(t *testing.T) {
	tests := []struct {
		shader string
		want   []string
	}{
		{"A", []string{"P"}},
		{"B", []string{"P", "Q"}},
		{"C", []string{"Q"}},
	}
	for _, tt := range tests {
		t.Run(tt.shader, func(t *testing.T) {
			f := newFixture(t, scopeFiles, scopeIdentities)
			m := newScopeManager(t, f)
			require.NoError(t, m.Initialize(context.Background()))

			before := map[string]*device.PipelineState{"P": m.Get("P"), "Q": m.Get("Q")}
			var rebuilt []string
			m.PipelineRebuilt().Subscribe(func(id string) { rebuilt = append(rebuilt, id) })

			require.NoError(t, f.cache.RecompileShader(context.Background(), tt.shader))
			assert.Equal(t, tt.want, rebuilt)

			for id, old := range before {
				if contains(tt.want, id) {
					assert.NotSame(t, old, m.Get(id), "%s should be swapped", id)
				} else {
					assert.Same(t, old, m.Get(id), "%s should be untouched", id)
				}
				assert.Equal(t, StateBuilt, m.State(id))
			}
			assert.Equal(t, 4, f.device.LiveObjects(), "old objects are released")
			assert.Equal(t, len(tt.want), m.Stats().Rebuilds)
		})
	}
}

func TestManagerFailedRebuildKeepsLiveObject(t *testing.T) {
	var fail atomic.Bool
	f := newFixture(t, scopeFiles, scopeIdentities, device.WithCreateHook(func(kind device.ObjectKind, label string) error {
		if fail.Load() && label == "Q" {
			return errors.New("device lost")
		}
		return nil
	}))
	m := newScopeManager(t, f)
	require.NoError(t, m.Initialize(context.Background()))
	p, q := m.Get("P"), m.Get("Q")

	fail.Store(true)
	assert.Equal(t, []string{"P"}, m.Rebuild("B"))
	assert.NotSame(t, p, m.Get("P"))
	assert.Same(t, q, m.Get("Q"))
	assert.Equal(t, StateBuilt, m.State("Q"))
	assert.Equal(t, 1, m.Stats().FailedRebuilds)
	assert.Equal(t, 4, f.device.LiveObjects())

	// A source change that breaks reflection compiles but cannot be rebuilt.
	fail.Store(false)
	f.write(t, "C.hlsl", "c NO_ROOT_SIGNATURE\n")
	changed := f.cache.OnFileChanged(context.Background(), f.path("C.hlsl"))
	assert.Equal(t, []string{"C"}, changed)
	assert.Same(t, q, m.Get("Q"))
	assert.Equal(t, 2, m.Stats().FailedRebuilds)

	// A source change that fails to compile never reaches the manager.
	f.write(t, "B.hlsl", "b SYNTAX_ERROR\n")
	f.cache.OnFileChanged(context.Background(), f.path("B.hlsl"))
	assert.Equal(t, shader.StateStale, f.cache.State("B"))
	assert.Equal(t, 2, m.Stats().FailedRebuilds)
	assert.Same(t, q, m.Get("Q"))

	f.write(t, "C.hlsl", "c fixed\n")
	f.write(t, "B.hlsl", "b fixed\n")
	f.cache.OnFileChanged(context.Background(), f.path("C.hlsl"))
	assert.NotSame(t, q, m.Get("Q"))
	assert.Equal(t, 4, f.device.LiveObjects())
}

func TestManagerInitializeFailsOnCompileError(t *testing.T) {
	files := map[string]string{
		"A.hlsl": "a\n",
		"B.hlsl": "b SYNTAX_ERROR\n",
		"C.hlsl": "c\n",
	}
	f := newFixture(t, files, scopeIdentities)
	m := newScopeManager(t, f)

	err := m.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShaderNotCompiled)
	assert.ErrorIs(t, err, shader.ErrCompileDiagnostic)
	var failure *shader.CompileFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "B", failure.ID)
	assert.Contains(t, err.Error(), "initial build of P")
	assert.Contains(t, err.Error(), "shader B")
	assert.Contains(t, err.Error(), "unexpected token")

	assert.Zero(t, f.device.LiveObjects())
	assert.Nil(t, m.Get("P"))
	assert.Zero(t, f.cache.ShaderRecompiled().Len())
}

func TestManagerInitializeFailsOnReflectionAndDeviceErrors(t *testing.T) {
	t.Run("reflection", func(t *testing.T) {
		files := map[string]string{"A.hlsl": "a\n", "B.hlsl": "b\n", "C.hlsl": "c\n"}
		files["B.hlsl"] = "b NO_ROOT_SIGNATURE\n"
		f := newFixture(t, files, scopeIdentities)
		err := newScopeManager(t, f).Initialize(context.Background())
		assert.ErrorIs(t, err, reflection.ErrReflectionFailure)
	})

	t.Run("device", func(t *testing.T) {
		f := newFixture(t, scopeFiles, scopeIdentities, device.WithCreateHook(func(kind device.ObjectKind, label string) error {
			if label == "Q" {
				return errors.New("out of memory")
			}
			return nil
		}))
		err := newScopeManager(t, f).Initialize(context.Background())
		assert.ErrorIs(t, err, device.ErrGpuObjectCreation)
		assert.Contains(t, err.Error(), "initial build of Q")
		assert.Zero(t, f.device.LiveObjects(), "P is released when Q fails")
	})
}

func TestManagerRootSignatureByID(t *testing.T) {
	f := newFixture(t, scopeFiles, scopeIdentities)
	m := NewManager(f.cache, f.device)
	t.Cleanup(m.Destroy)
	require.NoError(t, m.Register("P", NewGraphicsDescriptor("A", "B", WithRootSignatureID("RS_Shared"))))
	require.NoError(t, m.Register("Q", NewGraphicsDescriptor("C", "B", WithRootSignatureID("RS_Shared"))))
	require.NoError(t, m.Initialize(context.Background()))

	rs := m.RootSignature("RS_Shared")
	require.NotNil(t, rs)
	assert.Same(t, m.Get("P").RootSignature, rs)
	assert.Equal(t, "RS_Shared", rs.Label())
	assert.Nil(t, m.RootSignature("RS_Unknown"))
}

func TestManagerEndToEndIncludeChange(t *testing.T) {
	files := map[string]string{
		"P.hlsl":       "#include \"Common.hlsli\"\npixel\n",
		"V.hlsl":       "vertex\n",
		"Common.hlsli": "float4 tint;\n",
	}
	idents := []shader.Identity{
		{ID: "VS_Main", Source: "V.hlsl", EntryPoint: "VSMain", Stage: shader.StageVertex},
		{ID: "PS_Main", Source: "P.hlsl", EntryPoint: "PSMain", Stage: shader.StagePixel},
	}
	f := newFixture(t, files, idents)
	m := NewManager(f.cache, f.device)
	t.Cleanup(m.Destroy)
	require.NoError(t, m.Register("PSO_Main", NewGraphicsDescriptor("VS_Main", "PS_Main")))
	require.NoError(t, m.Initialize(context.Background()))

	old := m.MustGet("PSO_Main")
	oldPS := old.Graphics.PS.Bytecode

	f.write(t, "Common.hlsli", "float4 tint;\nfloat exposure;\n")
	triggered := f.cache.OnFileChanged(context.Background(), f.path("Common.hlsli"))
	assert.Equal(t, []string{"PS_Main"}, triggered)

	current := m.MustGet("PSO_Main")
	require.NotSame(t, old, current)
	assert.NotEqual(t, oldPS, current.Graphics.PS.Bytecode)
	refl, err := reflection.Reflect(current.Graphics.PS.Bytecode)
	require.NoError(t, err)
	dxil, ok := refl.Container.Part(reflection.FourCCDXIL)
	require.True(t, ok)
	assert.Contains(t, string(dxil), "exposure")
	assert.Equal(t, old.Graphics.VS.Bytecode, current.Graphics.VS.Bytecode)
	assert.Equal(t, 2, f.device.LiveObjects())
}

func TestManagerDestroy(t *testing.T) {
	f := newFixture(t, scopeFiles, scopeIdentities)
	m := newScopeManager(t, f)
	require.NoError(t, m.Initialize(context.Background()))
	require.Equal(t, 1, f.cache.ShaderRecompiled().Len())

	m.Destroy()
	assert.Zero(t, f.device.LiveObjects())
	assert.Zero(t, f.cache.ShaderRecompiled().Len())
	assert.Nil(t, m.Get("P"))
	assert.Equal(t, StateUnbuilt, m.State("P"))

	require.NoError(t, f.cache.RecompileShader(context.Background(), "B"))
	assert.Nil(t, m.Get("P"))
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
