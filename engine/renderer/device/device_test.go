package device

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/adria-go/engine/renderer/dxgi"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/reflection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRootSignatureBlob() []byte {
	desc := &reflection.RootSignatureDesc{
		Version: reflection.RootSignatureVersion1_1,
		Flags:   0x1,
		Parameters: []reflection.RootParameter{
			{Type: reflection.RootParameterCBV, Visibility: reflection.ShaderVisibilityAll, Descriptor: reflection.RootDescriptor{ShaderRegister: 0}},
			{Type: reflection.RootParameterConstants, Visibility: reflection.ShaderVisibilityPixel, Constants: reflection.RootConstants{ShaderRegister: 5, Num32BitValues: 4}},
			{Type: reflection.RootParameterDescriptorTable, Visibility: reflection.ShaderVisibilityPixel, Ranges: []reflection.DescriptorRange{
				{Type: reflection.DescriptorRangeSRV, NumDescriptors: 2, BaseShaderRegister: 1},
				{Type: reflection.DescriptorRangeUAV, NumDescriptors: 1, BaseShaderRegister: 0, RegisterSpace: 1},
			}},
		},
		StaticSamplers: []reflection.StaticSampler{
			{Filter: 0x15, ShaderRegister: 3, ShaderVisibility: reflection.ShaderVisibilityPixel},
		},
	}
	return desc.Encode()
}

// testContainer builds a shader container with an optional SPIR-V part.
func testContainer(withSPIRV bool) []byte {
	c := &reflection.Container{}
	c.SetPart(reflection.FourCCDXIL, []byte{1, 2, 3, 4})
	c.SetPart(reflection.FourCCRTS0, testRootSignatureBlob())
	if withSPIRV {
		c.SetPart(reflection.FourCCSPRV, []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0})
	}
	return c.Bytes()
}

func testGraphicsDesc(rs *RootSignature, withSPIRV bool) *GraphicsPipelineDesc {
	return &GraphicsPipelineDesc{
		Label:         "PSO_Test",
		RootSignature: rs,
		VS:            ShaderBytecode{ID: "VS_Test", Bytecode: testContainer(withSPIRV), EntryPoint: "vs_main"},
		PS:            ShaderBytecode{ID: "PS_Test", Bytecode: testContainer(withSPIRV), EntryPoint: "fs_main"},
		InputLayout: []reflection.InputElement{
			{SemanticName: "TEXCOORD", SemanticIndex: 0, Format: dxgi.FormatR32G32B32Float},
			{SemanticName: "TEXCOORD", SemanticIndex: 1, Format: dxgi.FormatR32G32Float, AlignedByteOffset: 12},
		},
		RenderTargets: []RenderTarget{{Format: dxgi.FormatR8G8B8A8Unorm, Blend: DefaultBlendDesc()}},
		DepthStencil:  DefaultDepthStencilDesc(),
		DepthFormat:   dxgi.FormatD32Float,
		Rasterizer:    DefaultRasterizerDesc(),
		Topology:      TopologyTriangleList,
		SampleCount:   1,
	}
}

func TestNullDeviceRootSignature(t *testing.T) {
	d := NewNullDevice()
	rs, err := d.CreateRootSignature("RS_Test", testRootSignatureBlob())
	require.NoError(t, err)
	assert.Equal(t, "RS_Test", rs.Label())
	assert.Equal(t, KindRootSignature, rs.Kind())
	assert.Len(t, rs.Desc.Parameters, 3)
	assert.Equal(t, 1, d.LiveObjects())

	_, err = d.CreateRootSignature("RS_Bad", []byte{1, 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGpuObjectCreation)
	assert.ErrorIs(t, err, reflection.ErrReflectionFailure)

	var devErr *Error
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, "RS_Bad", devErr.Label)
	assert.Equal(t, 1, d.LiveObjects())
}

func TestNullDeviceGraphicsPipelineValidation(t *testing.T) {
	d := NewNullDevice()
	rs, err := d.CreateRootSignature("RS", testRootSignatureBlob())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*GraphicsPipelineDesc)
	}{
		{"no root signature", func(g *GraphicsPipelineDesc) { g.RootSignature = nil }},
		{"no vertex shader", func(g *GraphicsPipelineDesc) { g.VS = ShaderBytecode{} }},
		{"depth render target", func(g *GraphicsPipelineDesc) { g.RenderTargets[0].Format = dxgi.FormatD32Float }},
		{"color depth format", func(g *GraphicsPipelineDesc) { g.DepthFormat = dxgi.FormatR8G8B8A8Unorm }},
		{"sample count", func(g *GraphicsPipelineDesc) { g.SampleCount = 3 }},
		{"too many targets", func(g *GraphicsPipelineDesc) {
			g.RenderTargets = make([]RenderTarget, maxRenderTargets+1)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := testGraphicsDesc(rs, false)
			tt.mutate(desc)
			_, err := d.CreateGraphicsPipeline(desc)
			assert.ErrorIs(t, err, ErrGpuObjectCreation)
		})
	}

	pso, err := d.CreateGraphicsPipeline(testGraphicsDesc(rs, false))
	require.NoError(t, err)
	assert.Equal(t, KindGraphicsPipeline, pso.Kind())
	assert.Same(t, rs, pso.RootSignature)
	require.NotNil(t, pso.Graphics)
	assert.Nil(t, pso.Compute)
	assert.Equal(t, "vs_main", pso.Graphics.VS.EntryPoint)
}

func TestNullDeviceComputePipelineAndTexture(t *testing.T) {
	d := NewNullDevice()
	rs, err := d.CreateRootSignature("RS", testRootSignatureBlob())
	require.NoError(t, err)

	_, err = d.CreateComputePipeline(&ComputePipelineDesc{Label: "CS", RootSignature: rs})
	assert.ErrorIs(t, err, ErrGpuObjectCreation)

	pso, err := d.CreateComputePipeline(&ComputePipelineDesc{Label: "CS", RootSignature: rs, CS: ShaderBytecode{ID: "CS", Bytecode: []byte{1}}})
	require.NoError(t, err)
	assert.Equal(t, KindComputePipeline, pso.Kind())
	require.NotNil(t, pso.Compute)

	_, err = d.CreateTexture(&TextureDesc{Label: "tex", Width: 2, Height: 2, Format: dxgi.FormatR8G8B8A8Unorm, Pixels: make([]byte, 15)})
	assert.ErrorIs(t, err, ErrGpuObjectCreation)

	tex, err := d.CreateTexture(&TextureDesc{Label: "tex", Width: 2, Height: 2, Format: dxgi.FormatR8G8B8A8Unorm, Pixels: make([]byte, 16)})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), tex.Width)
}

func TestNullDeviceReleaseAndSerials(t *testing.T) {
	d := NewNullDevice()
	a, err := d.CreateRootSignature("A", testRootSignatureBlob())
	require.NoError(t, err)
	b, err := d.CreateRootSignature("B", testRootSignatureBlob())
	require.NoError(t, err)
	assert.Greater(t, b.Serial(), a.Serial())
	assert.Equal(t, 2, d.LiveObjects())

	d.Release(a)
	d.Release(a)
	d.Release(nil)
	var typedNil *PipelineState
	d.Release(typedNil)
	assert.Equal(t, 1, d.LiveObjects())
}

func TestCreateHookVetoesCreation(t *testing.T) {
	injected := errors.New("device removed")
	d := NewNullDevice(WithCreateHook(func(kind ObjectKind, label string) error {
		if kind == KindGraphicsPipeline && label == "PSO_Test" {
			return injected
		}
		return nil
	}))
	rs, err := d.CreateRootSignature("RS", testRootSignatureBlob())
	require.NoError(t, err)

	_, err = d.CreateGraphicsPipeline(testGraphicsDesc(rs, false))
	assert.ErrorIs(t, err, injected)
	assert.ErrorIs(t, err, ErrGpuObjectCreation)
	assert.Contains(t, err.Error(), "graphics pipeline")
	assert.Equal(t, 1, d.LiveObjects())
}

func TestStateEnumsUnmarshalText(t *testing.T) {
	var b Blend
	require.NoError(t, b.UnmarshalText([]byte("INV_SRC_ALPHA")))
	assert.Equal(t, BlendInvSrcAlpha, b)
	assert.Equal(t, "inv_src_alpha", b.String())

	var c ComparisonFunc
	require.NoError(t, c.UnmarshalText([]byte("less_equal")))
	assert.Equal(t, ComparisonLessEqual, c)

	var top Topology
	assert.Error(t, top.UnmarshalText([]byte("quads")))
	assert.Equal(t, "device.Topology(42)", Topology(42).String())
}

func TestDefaultStatesAreFresh(t *testing.T) {
	a := DefaultDepthStencilDesc()
	a.DepthFunc = ComparisonGreater
	assert.Equal(t, ComparisonLess, DefaultDepthStencilDesc().DepthFunc)
	assert.Equal(t, ColorWriteAll, DefaultBlendDesc().WriteMask)
	assert.True(t, DefaultRasterizerDesc().DepthClip)
}
