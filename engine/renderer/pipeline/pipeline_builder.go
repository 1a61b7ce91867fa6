package pipeline

import (
	"github.com/Carmen-Shannon/adria-go/engine/renderer/device"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/dxgi"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/reflection"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/shader"
)

// DescriptorBuilderOption is a functional option used to configure a Descriptor during construction.
// Options that only apply to graphics pipelines are ignored for compute descriptors.
type DescriptorBuilderOption func(*Descriptor)

func graphicsOption(fn func(g *GraphicsDesc)) DescriptorBuilderOption {
	return func(d *Descriptor) {
		if d.Graphics != nil {
			fn(d.Graphics)
		}
	}
}

// WithGeometryShader sets the geometry shader for this pipeline.
//
// Parameters:
//   - id: the geometry shader id
//
// Returns:
//   - DescriptorBuilderOption: a function that sets the geometry shader
func WithGeometryShader(id string) DescriptorBuilderOption {
	return graphicsOption(func(g *GraphicsDesc) {
		g.GS = id
	})
}

// WithTessellationShaders sets the hull and domain shaders for this pipeline.
//
// Parameters:
//   - hs: the hull shader id
//   - ds: the domain shader id
//
// Returns:
//   - DescriptorBuilderOption: a function that sets the tessellation shaders
func WithTessellationShaders(hs, ds string) DescriptorBuilderOption {
	return graphicsOption(func(g *GraphicsDesc) {
		g.HS, g.DS = hs, ds
	})
}

// WithInputLayout overrides the input layout reflected from the vertex shader.
//
// Parameters:
//   - layout: the explicit input layout
//
// Returns:
//   - DescriptorBuilderOption: a function that sets the input layout
func WithInputLayout(layout ...reflection.InputElement) DescriptorBuilderOption {
	return graphicsOption(func(g *GraphicsDesc) {
		g.InputLayout = append([]reflection.InputElement{}, layout...)
	})
}

// WithRenderTargets replaces the render targets. Every target starts with the default blend state.
//
// Parameters:
//   - formats: one format per color target
//
// Returns:
//   - DescriptorBuilderOption: a function that sets the render targets
func WithRenderTargets(formats ...dxgi.Format) DescriptorBuilderOption {
	return graphicsOption(func(g *GraphicsDesc) {
		g.RenderTargets = make([]device.RenderTarget, 0, len(formats))
		for _, f := range formats {
			g.RenderTargets = append(g.RenderTargets, device.RenderTarget{Format: f, Blend: device.DefaultBlendDesc()})
		}
	})
}

// WithBlend sets the blend state of every render target.
//
// Parameters:
//   - blend: the blend state
//
// Returns:
//   - DescriptorBuilderOption: a function that sets the blend state
func WithBlend(blend device.BlendDesc) DescriptorBuilderOption {
	return graphicsOption(func(g *GraphicsDesc) {
		for i := range g.RenderTargets {
			g.RenderTargets[i].Blend = blend
		}
	})
}

// WithDepthTestEnabled sets whether depth testing is enabled for this pipeline.
//
// Parameters:
//   - enabled: whether depth testing should be enabled
//
// Returns:
//   - DescriptorBuilderOption: a function that sets the depth test state
func WithDepthTestEnabled(enabled bool) DescriptorBuilderOption {
	return graphicsOption(func(g *GraphicsDesc) {
		g.DepthStencil.DepthEnable = enabled
	})
}

// WithDepthWriteEnabled sets whether depth writing is enabled for this pipeline.
//
// Parameters:
//   - enabled: whether depth writing should be enabled
//
// Returns:
//   - DescriptorBuilderOption: a function that sets the depth write state
func WithDepthWriteEnabled(enabled bool) DescriptorBuilderOption {
	return graphicsOption(func(g *GraphicsDesc) {
		g.DepthStencil.DepthWrite = enabled
	})
}

// WithDepthFunc sets the depth comparison.
func WithDepthFunc(fn device.ComparisonFunc) DescriptorBuilderOption {
	return graphicsOption(func(g *GraphicsDesc) {
		g.DepthStencil.DepthFunc = fn
	})
}

// WithDepthFormat sets the depth target format. FormatUnknown removes the depth target.
func WithDepthFormat(f dxgi.Format) DescriptorBuilderOption {
	return graphicsOption(func(g *GraphicsDesc) {
		g.DepthFormat = f
		if f == dxgi.FormatUnknown {
			g.DepthStencil.DepthEnable = false
		}
	})
}

// WithDepthBias sets the depth bias parameters for this pipeline.
//
// Parameters:
//   - bias: the constant depth bias to apply
//   - slopeScale: the slope scale depth bias to apply
//
// Returns:
//   - DescriptorBuilderOption: a function that sets the depth bias parameters
func WithDepthBias(bias int32, slopeScale float32) DescriptorBuilderOption {
	return graphicsOption(func(g *GraphicsDesc) {
		g.Rasterizer.DepthBias = bias
		g.Rasterizer.SlopeScaledDepthBias = slopeScale
	})
}

// WithCullMode sets the cull mode for this pipeline.
func WithCullMode(mode device.CullMode) DescriptorBuilderOption {
	return graphicsOption(func(g *GraphicsDesc) {
		g.Rasterizer.Cull = mode
	})
}

// WithFrontCounterClockwise sets whether counter-clockwise triangles are front facing.
func WithFrontCounterClockwise(ccw bool) DescriptorBuilderOption {
	return graphicsOption(func(g *GraphicsDesc) {
		g.Rasterizer.FrontCounterClockwise = ccw
	})
}

// WithTopology sets the primitive topology for this pipeline.
func WithTopology(topology device.Topology) DescriptorBuilderOption {
	return graphicsOption(func(g *GraphicsDesc) {
		g.Topology = topology
	})
}

// WithSampleCount sets the multisample count.
func WithSampleCount(count uint32) DescriptorBuilderOption {
	return graphicsOption(func(g *GraphicsDesc) {
		g.SampleCount = count
	})
}

// WithRootSignatureID names the root signature for lookups through Manager.RootSignature.
//
// Parameters:
//   - id: the root signature id
//
// Returns:
//   - DescriptorBuilderOption: a function that sets the root signature id
func WithRootSignatureID(id string) DescriptorBuilderOption {
	return func(d *Descriptor) {
		d.RootSignatureID = id
	}
}

// WithRootSignatureStage selects the stage whose bytecode carries the root signature.
//
// Parameters:
//   - stage: the stage
//
// Returns:
//   - DescriptorBuilderOption: a function that sets the root signature stage
func WithRootSignatureStage(stage shader.Stage) DescriptorBuilderOption {
	return func(d *Descriptor) {
		d.RootSignatureStage = &stage
	}
}
