package pipeline

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/adria-go/common"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/device"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/dxgi"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/reflection"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/shader"
)

// Kind identifies whether a descriptor describes a graphics or a compute pipeline.
type Kind int

const (
	// KindGraphics is a pipeline with vertex, pixel and optional geometry/tessellation stages.
	KindGraphics Kind = iota

	// KindCompute is a pipeline with a single compute stage.
	KindCompute
)

func (k Kind) String() string {
	switch k {
	case KindGraphics:
		return "graphics"
	case KindCompute:
		return "compute"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// GraphicsDesc is the API-agnostic description of a graphics pipeline. Stages refer to
// shader identity ids; an empty id leaves the stage unused.
type GraphicsDesc struct {
	VS string
	PS string
	GS string
	HS string
	DS string

	// InputLayout overrides the layout reflected from the vertex shader when non-nil.
	InputLayout []reflection.InputElement

	RenderTargets []device.RenderTarget
	DepthStencil  device.DepthStencilDesc
	DepthFormat   dxgi.Format
	Rasterizer    device.RasterizerDesc
	Topology      device.Topology
	SampleCount   uint32
}

// ComputeDesc is the description of a compute pipeline.
type ComputeDesc struct {
	CS string
}

// Descriptor is a tagged union over the pipeline kinds. Exactly one of Graphics and
// Compute is set, matching Kind. Descriptors are stored by the Manager and replayed on
// every rebuild.
type Descriptor struct {
	Kind     Kind
	Graphics *GraphicsDesc
	Compute  *ComputeDesc

	// RootSignatureID names the root signature in lookups. Defaults to the pipeline id.
	RootSignatureID string

	// RootSignatureStage selects the stage whose bytecode carries the root signature.
	// Nil means pixel for graphics and compute for compute pipelines.
	RootSignatureStage *shader.Stage
}

// DefaultGraphicsDesc returns a fresh graphics description with one R8G8B8A8_UNORM target,
// a D32_FLOAT less-than depth test and back-face culling.
//
// Returns:
//   - GraphicsDesc: the default description
func DefaultGraphicsDesc() GraphicsDesc {
	return GraphicsDesc{
		RenderTargets: []device.RenderTarget{{Format: dxgi.FormatR8G8B8A8Unorm, Blend: device.DefaultBlendDesc()}},
		DepthStencil:  device.DefaultDepthStencilDesc(),
		DepthFormat:   dxgi.FormatD32Float,
		Rasterizer:    device.DefaultRasterizerDesc(),
		Topology:      device.TopologyTriangleList,
		SampleCount:   1,
	}
}

// NewGraphicsDescriptor is the entry point to describe a graphics pipeline. The description
// starts from DefaultGraphicsDesc and is then modified by the options.
//
// Parameters:
//   - vs: the vertex shader id
//   - ps: the pixel shader id, empty for depth-only pipelines
//   - opts: a variadic list of DescriptorBuilderOption functions
//
// Returns:
//   - Descriptor: the graphics descriptor
func NewGraphicsDescriptor(vs, ps string, opts ...DescriptorBuilderOption) Descriptor {
	g := DefaultGraphicsDesc()
	g.VS, g.PS = vs, ps
	d := Descriptor{Kind: KindGraphics, Graphics: &g}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// NewComputeDescriptor is the entry point to describe a compute pipeline.
//
// Parameters:
//   - cs: the compute shader id
//   - opts: a variadic list of DescriptorBuilderOption functions
//
// Returns:
//   - Descriptor: the compute descriptor
func NewComputeDescriptor(cs string, opts ...DescriptorBuilderOption) Descriptor {
	d := Descriptor{Kind: KindCompute, Compute: &ComputeDesc{CS: cs}}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Validate checks that the union is consistent and that the mandatory stages are set.
func (d Descriptor) Validate() error {
	switch d.Kind {
	case KindGraphics:
		if d.Graphics == nil || d.Compute != nil {
			return errors.New("graphics descriptor must set Graphics only")
		}
		if d.Graphics.VS == "" {
			return errors.New("graphics descriptor has no vertex shader")
		}
	case KindCompute:
		if d.Compute == nil || d.Graphics != nil {
			return errors.New("compute descriptor must set Compute only")
		}
		if d.Compute.CS == "" {
			return errors.New("compute descriptor has no compute shader")
		}
	default:
		return fmt.Errorf("unknown pipeline kind %d", d.Kind)
	}
	return nil
}

// ShaderIDs returns the referenced shader ids, de-duplicated, in stage order
// VS, PS, GS, HS, DS (or CS).
func (d Descriptor) ShaderIDs() []string {
	var stages []string
	switch {
	case d.Graphics != nil:
		stages = []string{d.Graphics.VS, d.Graphics.PS, d.Graphics.GS, d.Graphics.HS, d.Graphics.DS}
	case d.Compute != nil:
		stages = []string{d.Compute.CS}
	}
	var ids []string
	for _, id := range stages {
		if id != "" {
			ids = common.AppendUnique(ids, id)
		}
	}
	return ids
}

// StageShader returns the shader id bound to stage, or "" if the stage is unused.
func (d Descriptor) StageShader(stage shader.Stage) string {
	if d.Compute != nil {
		if stage == shader.StageCompute {
			return d.Compute.CS
		}
		return ""
	}
	if d.Graphics == nil {
		return ""
	}
	switch stage {
	case shader.StageVertex:
		return d.Graphics.VS
	case shader.StagePixel:
		return d.Graphics.PS
	case shader.StageGeometry:
		return d.Graphics.GS
	case shader.StageHull:
		return d.Graphics.HS
	case shader.StageDomain:
		return d.Graphics.DS
	}
	return ""
}

// rootSignatureStage resolves the stage the root signature is read from.
// Graphics pipelines default to the pixel stage, or the vertex stage when there is no pixel shader.
func (d Descriptor) rootSignatureStage() shader.Stage {
	if d.RootSignatureStage != nil {
		return *d.RootSignatureStage
	}
	if d.Kind == KindCompute {
		return shader.StageCompute
	}
	if d.Graphics.PS == "" {
		return shader.StageVertex
	}
	return shader.StagePixel
}

// stages returns the used stages in the same order as ShaderIDs.
func (d Descriptor) stages() []shader.Stage {
	if d.Kind == KindCompute {
		return []shader.Stage{shader.StageCompute}
	}
	all := []shader.Stage{shader.StageVertex, shader.StagePixel, shader.StageGeometry, shader.StageHull, shader.StageDomain}
	out := all[:0]
	for _, s := range all {
		if d.StageShader(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// clone deep-copies the descriptor so a stored copy cannot be changed by the caller.
func (d Descriptor) clone() Descriptor {
	out := d
	if d.Graphics != nil {
		g := *d.Graphics
		if d.Graphics.InputLayout != nil {
			g.InputLayout = append([]reflection.InputElement(nil), d.Graphics.InputLayout...)
		}
		g.RenderTargets = append([]device.RenderTarget(nil), d.Graphics.RenderTargets...)
		out.Graphics = &g
	}
	if d.Compute != nil {
		c := *d.Compute
		out.Compute = &c
	}
	if d.RootSignatureStage != nil {
		s := *d.RootSignatureStage
		out.RootSignatureStage = &s
	}
	return out
}
