package shader

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/adria-go/engine/renderer/reflection"
	"github.com/gogpu/naga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scaleWGSL = `
struct Params {
    scale: f32,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> src: array<f32>;
@group(0) @binding(2) var<storage, read_write> dst: array<f32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    dst[id.x] = src[id.x] * params.scale;
}
`

func TestRootSignatureFromBindings(t *testing.T) {
	source := scaleWGSL + `
@group(1) @binding(0) var albedo: texture_2d<f32>;
@group(1) @binding(1) var linear_sampler: sampler;
`
	ast, err := naga.Parse(source)
	require.NoError(t, err)
	module, err := naga.LowerWithSource(ast, source)
	require.NoError(t, err)

	desc := rootSignatureFromBindings(module, StageCompute)
	assert.Equal(t, reflection.RootSignatureVersion1_1, desc.Version)
	assert.Zero(t, desc.Flags)
	require.Len(t, desc.Parameters, 2)

	resources := desc.Parameters[0]
	assert.Equal(t, reflection.RootParameterDescriptorTable, resources.Type)
	assert.Equal(t, reflection.ShaderVisibilityAll, resources.Visibility)
	require.Len(t, resources.Ranges, 4)
	want := []struct {
		typ      reflection.DescriptorRangeType
		register uint32
		space    uint32
	}{
		{reflection.DescriptorRangeCBV, 0, 0},
		{reflection.DescriptorRangeSRV, 1, 0},
		{reflection.DescriptorRangeUAV, 2, 0},
		{reflection.DescriptorRangeSRV, 0, 1},
	}
	for i, w := range want {
		r := resources.Ranges[i]
		assert.Equal(t, w.typ, r.Type, "range %d", i)
		assert.Equal(t, w.register, r.BaseShaderRegister, "range %d", i)
		assert.Equal(t, w.space, r.RegisterSpace, "range %d", i)
		assert.Equal(t, uint32(1), r.NumDescriptors)
		assert.Equal(t, uint32(descriptorRangeOffsetAppend), r.OffsetInDescriptorsFromTableStart)
	}

	samplers := desc.Parameters[1]
	require.Len(t, samplers.Ranges, 1)
	assert.Equal(t, reflection.DescriptorRangeSampler, samplers.Ranges[0].Type)
	assert.Equal(t, uint32(1), samplers.Ranges[0].BaseShaderRegister)
	assert.Equal(t, uint32(1), samplers.Ranges[0].RegisterSpace)

	vs := rootSignatureFromBindings(module, StageVertex)
	assert.Equal(t, uint32(rootFlagAllowInputLayout), vs.Flags)
	ps := rootSignatureFromBindings(module, StagePixel)
	assert.Equal(t, vs.Encode(), ps.Encode())
}

const tintWGSL = `
struct Tint {
    color: vec4<f32>,
}

@group(0) @binding(0) var<uniform> tint: Tint;

@vertex
fn vs_main(@location(0) position: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(position, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return tint.color;
}
`

func TestNagaCompilerGraphicsStagesShareRootSignature(t *testing.T) {
	dir := writeFiles(t, t.TempDir(), map[string]string{"Tint.wgsl": tintWGSL})
	c := NewNagaCompiler()
	ctx := context.Background()

	blobs := make(map[Stage][]byte)
	for stage, entry := range map[Stage]string{StageVertex: "vs_main", StagePixel: "fs_main"} {
		out, err := c.Compile(ctx, CompileInput{
			ID:         "Tint_" + entry,
			SourcePath: filepath.Join(dir, "Tint.wgsl"),
			EntryPoint: entry,
			Stage:      stage,
			Model:      DefaultShaderModel,
		})
		require.NoError(t, err, "stage %s", stage)
		reflected, err := reflection.Reflect(out.Bytecode)
		require.NoError(t, err)
		blob, desc, err := reflected.RequireRootSignature()
		require.NoError(t, err)
		assert.Equal(t, uint32(rootFlagAllowInputLayout), desc.Flags&rootFlagAllowInputLayout, "stage %s", stage)
		blobs[stage] = blob
	}
	assert.Equal(t, blobs[StageVertex], blobs[StagePixel])
}

func TestNagaCompilerEmbedsRootSignatureAndSPIRV(t *testing.T) {
	dir := writeFiles(t, t.TempDir(), map[string]string{"Scale.wgsl": scaleWGSL})
	c := NewNagaCompiler()

	out, err := c.Compile(context.Background(), CompileInput{
		ID:         "CS_Scale",
		SourcePath: filepath.Join(dir, "Scale.wgsl"),
		EntryPoint: "main",
		Stage:      StageCompute,
		Model:      DefaultShaderModel,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "Scale.wgsl")}, out.Dependencies)

	reflected, err := reflection.Reflect(out.Bytecode)
	require.NoError(t, err)
	_, desc, err := reflected.RequireRootSignature()
	require.NoError(t, err)
	require.Len(t, desc.Parameters, 1)
	assert.Len(t, desc.Parameters[0].Ranges, 3)

	words, ok := reflected.SPIRV()
	require.True(t, ok)
	require.NotEmpty(t, words)
	assert.Equal(t, uint32(0x07230203), words[0], "SPIR-V magic")

	_, ok = reflected.Container.Part(reflection.FourCCDXIL)
	assert.True(t, ok)
}

func TestNagaCompilerErrors(t *testing.T) {
	dir := writeFiles(t, t.TempDir(), map[string]string{
		"Scale.wgsl":  scaleWGSL,
		"Broken.wgsl": "fn main( {",
	})
	c := NewNagaCompiler()
	ctx := context.Background()

	_, err := c.Compile(ctx, CompileInput{ID: "GS", SourcePath: filepath.Join(dir, "Scale.wgsl"), EntryPoint: "main", Stage: StageGeometry})
	assert.ErrorIs(t, err, ErrCompileDiagnostic)

	_, err = c.Compile(ctx, CompileInput{ID: "VS", SourcePath: filepath.Join(dir, "Scale.wgsl"), EntryPoint: "main", Stage: StageVertex})
	assert.ErrorIs(t, err, ErrCompileDiagnostic)
	assert.ErrorContains(t, err, `no vertex entry point named "main"`)

	_, err = c.Compile(ctx, CompileInput{ID: "Broken", SourcePath: filepath.Join(dir, "Broken.wgsl"), EntryPoint: "main", Stage: StageCompute})
	assert.ErrorIs(t, err, ErrCompileDiagnostic)

	_, err = c.Compile(ctx, CompileInput{ID: "Missing", SourcePath: filepath.Join(dir, "Missing.wgsl"), EntryPoint: "main", Stage: StageCompute})
	assert.ErrorIs(t, err, ErrSourceNotFound)
}
