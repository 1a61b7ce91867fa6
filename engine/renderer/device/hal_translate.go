package device

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Carmen-Shannon/adria-go/engine/renderer/dxgi"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/reflection"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

var textureFormats = map[dxgi.Format]gputypes.TextureFormat{
	dxgi.FormatR32G32B32A32Float: gputypes.TextureFormatRGBA32Float,
	dxgi.FormatR32G32B32A32Uint:  gputypes.TextureFormatRGBA32Uint,
	dxgi.FormatR32G32B32A32Sint:  gputypes.TextureFormatRGBA32Sint,
	dxgi.FormatR16G16B16A16Float: gputypes.TextureFormatRGBA16Float,
	dxgi.FormatR16G16B16A16Unorm: gputypes.TextureFormatRGBA16Unorm,
	dxgi.FormatR32G32Float:       gputypes.TextureFormatRG32Float,
	dxgi.FormatR32G32Uint:        gputypes.TextureFormatRG32Uint,
	dxgi.FormatR32G32Sint:        gputypes.TextureFormatRG32Sint,
	dxgi.FormatD32FloatS8X24Uint: gputypes.TextureFormatDepth32FloatStencil8,
	dxgi.FormatR10G10B10A2Unorm:  gputypes.TextureFormatRGB10A2Unorm,
	dxgi.FormatR11G11B10Float:    gputypes.TextureFormatRG11B10Ufloat,
	dxgi.FormatR8G8B8A8Unorm:     gputypes.TextureFormatRGBA8Unorm,
	dxgi.FormatR8G8B8A8UnormSRGB: gputypes.TextureFormatRGBA8UnormSrgb,
	dxgi.FormatR16G16Float:       gputypes.TextureFormatRG16Float,
	dxgi.FormatD32Float:          gputypes.TextureFormatDepth32Float,
	dxgi.FormatR32Float:          gputypes.TextureFormatR32Float,
	dxgi.FormatR32Uint:           gputypes.TextureFormatR32Uint,
	dxgi.FormatR32Sint:           gputypes.TextureFormatR32Sint,
	dxgi.FormatD24UnormS8Uint:    gputypes.TextureFormatDepth24PlusStencil8,
	dxgi.FormatR8G8Unorm:         gputypes.TextureFormatRG8Unorm,
	dxgi.FormatR16Float:          gputypes.TextureFormatR16Float,
	dxgi.FormatD16Unorm:          gputypes.TextureFormatDepth16Unorm,
	dxgi.FormatR8Unorm:           gputypes.TextureFormatR8Unorm,
	dxgi.FormatB8G8R8A8Unorm:     gputypes.TextureFormatBGRA8Unorm,
	dxgi.FormatB8G8R8A8UnormSRGB: gputypes.TextureFormatBGRA8UnormSrgb,
}

var vertexFormats = map[dxgi.Format]gputypes.VertexFormat{
	dxgi.FormatR32G32B32A32Float: gputypes.VertexFormatFloat32x4,
	dxgi.FormatR32G32B32A32Uint:  gputypes.VertexFormatUint32x4,
	dxgi.FormatR32G32B32A32Sint:  gputypes.VertexFormatSint32x4,
	dxgi.FormatR32G32B32Float:    gputypes.VertexFormatFloat32x3,
	dxgi.FormatR32G32B32Uint:     gputypes.VertexFormatUint32x3,
	dxgi.FormatR32G32B32Sint:     gputypes.VertexFormatSint32x3,
	dxgi.FormatR16G16B16A16Float: gputypes.VertexFormatFloat16x4,
	dxgi.FormatR16G16B16A16Unorm: gputypes.VertexFormatUnorm16x4,
	dxgi.FormatR32G32Float:       gputypes.VertexFormatFloat32x2,
	dxgi.FormatR32G32Uint:        gputypes.VertexFormatUint32x2,
	dxgi.FormatR32G32Sint:        gputypes.VertexFormatSint32x2,
	dxgi.FormatR10G10B10A2Unorm:  gputypes.VertexFormatUnorm1010102,
	dxgi.FormatR8G8B8A8Unorm:     gputypes.VertexFormatUnorm8x4,
	dxgi.FormatR16G16Float:       gputypes.VertexFormatFloat16x2,
	dxgi.FormatR32Float:          gputypes.VertexFormatFloat32,
	dxgi.FormatR32Uint:           gputypes.VertexFormatUint32,
	dxgi.FormatR32Sint:           gputypes.VertexFormatSint32,
	dxgi.FormatR8G8Unorm:         gputypes.VertexFormatUnorm8x2,
}

func textureFormat(f dxgi.Format) (gputypes.TextureFormat, error) {
	if tf, ok := textureFormats[f]; ok {
		return tf, nil
	}
	return gputypes.TextureFormatUndefined, fmt.Errorf("format %s has no texture equivalent", f)
}

func vertexFormat(f dxgi.Format) (gputypes.VertexFormat, error) {
	if vf, ok := vertexFormats[f]; ok {
		return vf, nil
	}
	return gputypes.VertexFormatUndefined, fmt.Errorf("format %s has no vertex attribute equivalent", f)
}

func shaderStages(v reflection.ShaderVisibility) (gputypes.ShaderStages, error) {
	switch v {
	case reflection.ShaderVisibilityAll:
		return gputypes.ShaderStagesAll, nil
	case reflection.ShaderVisibilityVertex:
		return gputypes.ShaderStageVertex, nil
	case reflection.ShaderVisibilityPixel:
		return gputypes.ShaderStageFragment, nil
	}
	return gputypes.ShaderStageNone, fmt.Errorf("shader visibility %d has no equivalent stage", v)
}

// bindingLayout is the per-space output of translating a root signature.
type bindingLayout struct {
	groups        []map[uint32]gputypes.BindGroupLayoutEntry
	pushConstants []hal.PushConstantRange
}

// add merges an entry into its group. The same binding may appear for several stages as
// long as it describes the same resource; visibilities are OR'ed together.
func (l *bindingLayout) add(space uint32, entry gputypes.BindGroupLayoutEntry) error {
	for uint32(len(l.groups)) <= space {
		l.groups = append(l.groups, make(map[uint32]gputypes.BindGroupLayoutEntry))
	}
	group := l.groups[space]
	existing, ok := group[entry.Binding]
	if !ok {
		group[entry.Binding] = entry
		return nil
	}
	if !sameResource(existing, entry) {
		return fmt.Errorf("space %d binding %d is declared with two different resource types", space, entry.Binding)
	}
	existing.Visibility |= entry.Visibility
	group[entry.Binding] = existing
	return nil
}

func sameResource(a, b gputypes.BindGroupLayoutEntry) bool {
	switch {
	case a.Buffer != nil && b.Buffer != nil:
		return *a.Buffer == *b.Buffer
	case a.Sampler != nil && b.Sampler != nil:
		return *a.Sampler == *b.Sampler
	case a.Texture != nil && b.Texture != nil:
		return *a.Texture == *b.Texture
	case a.StorageTexture != nil && b.StorageTexture != nil:
		return *a.StorageTexture == *b.StorageTexture
	}
	return false
}

// entries returns the entries of one group sorted by binding.
func (l *bindingLayout) entries(space int) []gputypes.BindGroupLayoutEntry {
	out := make([]gputypes.BindGroupLayoutEntry, 0, len(l.groups[space]))
	for _, e := range l.groups[space] {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b gputypes.BindGroupLayoutEntry) int {
		return int(a.Binding) - int(b.Binding)
	})
	return out
}

func rangeEntry(t reflection.DescriptorRangeType, binding uint32, stages gputypes.ShaderStages) (gputypes.BindGroupLayoutEntry, error) {
	e := gputypes.BindGroupLayoutEntry{Binding: binding, Visibility: stages}
	switch t {
	case reflection.DescriptorRangeSRV:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case reflection.DescriptorRangeUAV:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
	case reflection.DescriptorRangeCBV:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	case reflection.DescriptorRangeSampler:
		e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	default:
		return e, fmt.Errorf("unknown descriptor range type %d", t)
	}
	return e, nil
}

// translateRootSignature maps a root signature onto bind group layouts, one group per
// register space, with the register as the binding number. Root constants become push
// constant ranges laid out back to back.
func translateRootSignature(desc *reflection.RootSignatureDesc) (*bindingLayout, error) {
	l := &bindingLayout{}
	var pushOffset uint32
	for i, p := range desc.Parameters {
		stages, err := shaderStages(p.Visibility)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		switch p.Type {
		case reflection.RootParameterDescriptorTable:
			for _, r := range p.Ranges {
				if r.NumDescriptors == ^uint32(0) {
					return nil, fmt.Errorf("parameter %d: unbounded descriptor ranges are not supported", i)
				}
				for n := uint32(0); n < r.NumDescriptors; n++ {
					e, err := rangeEntry(r.Type, r.BaseShaderRegister+n, stages)
					if err != nil {
						return nil, fmt.Errorf("parameter %d: %w", i, err)
					}
					if err := l.add(r.RegisterSpace, e); err != nil {
						return nil, err
					}
				}
			}
		case reflection.RootParameterConstants:
			size := p.Constants.Num32BitValues * 4
			l.pushConstants = append(l.pushConstants, hal.PushConstantRange{
				Stages: stages,
				Range:  hal.Range{Start: pushOffset, End: pushOffset + size},
			})
			pushOffset += size
		case reflection.RootParameterCBV, reflection.RootParameterSRV, reflection.RootParameterUAV:
			kind := map[reflection.RootParameterType]gputypes.BufferBindingType{
				reflection.RootParameterCBV: gputypes.BufferBindingTypeUniform,
				reflection.RootParameterSRV: gputypes.BufferBindingTypeReadOnlyStorage,
				reflection.RootParameterUAV: gputypes.BufferBindingTypeStorage,
			}[p.Type]
			e := gputypes.BindGroupLayoutEntry{
				Binding:    p.Descriptor.ShaderRegister,
				Visibility: stages,
				Buffer:     &gputypes.BufferBindingLayout{Type: kind},
			}
			if err := l.add(p.Descriptor.RegisterSpace, e); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("parameter %d: unknown type %s", i, p.Type)
		}
	}
	for i, s := range desc.StaticSamplers {
		stages, err := shaderStages(s.ShaderVisibility)
		if err != nil {
			return nil, fmt.Errorf("static sampler %d: %w", i, err)
		}
		e := gputypes.BindGroupLayoutEntry{
			Binding:    s.ShaderRegister,
			Visibility: stages,
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		}
		if err := l.add(s.RegisterSpace, e); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// vertexBuffers groups the input layout by slot. Attributes named TEXCOORD<n> bind to
// location n, which is how WGSL @location inputs appear in the signature; any other
// semantic takes its position in the layout.
func vertexBuffers(layout []reflection.InputElement) ([]gputypes.VertexBufferLayout, error) {
	var buffers []gputypes.VertexBufferLayout
	for i, el := range layout {
		format, err := vertexFormat(el.Format)
		if err != nil {
			return nil, fmt.Errorf("input %s%d: %w", el.SemanticName, el.SemanticIndex, err)
		}
		for uint32(len(buffers)) <= el.InputSlot {
			buffers = append(buffers, gputypes.VertexBufferLayout{StepMode: gputypes.VertexStepModeVertex})
		}
		location := uint32(i)
		if strings.EqualFold(el.SemanticName, "TEXCOORD") {
			location = el.SemanticIndex
		}
		buf := &buffers[el.InputSlot]
		buf.Attributes = append(buf.Attributes, gputypes.VertexAttribute{
			Format:         format,
			Offset:         uint64(el.AlignedByteOffset),
			ShaderLocation: location,
		})
		if end := uint64(el.AlignedByteOffset) + uint64(el.Format.Size()); end > buf.ArrayStride {
			buf.ArrayStride = end
		}
	}
	return buffers, nil
}

var blendFactors = map[Blend]gputypes.BlendFactor{
	BlendZero:           gputypes.BlendFactorZero,
	BlendOne:            gputypes.BlendFactorOne,
	BlendSrcColor:       gputypes.BlendFactorSrc,
	BlendInvSrcColor:    gputypes.BlendFactorOneMinusSrc,
	BlendSrcAlpha:       gputypes.BlendFactorSrcAlpha,
	BlendInvSrcAlpha:    gputypes.BlendFactorOneMinusSrcAlpha,
	BlendDestColor:      gputypes.BlendFactorDst,
	BlendInvDestColor:   gputypes.BlendFactorOneMinusDst,
	BlendDestAlpha:      gputypes.BlendFactorDstAlpha,
	BlendInvDestAlpha:   gputypes.BlendFactorOneMinusDstAlpha,
	BlendSrcAlphaSat:    gputypes.BlendFactorSrcAlphaSaturated,
	BlendFactor:         gputypes.BlendFactorConstant,
	BlendInvBlendFactor: gputypes.BlendFactorOneMinusConstant,
}

var blendOps = map[BlendOp]gputypes.BlendOperation{
	BlendOpAdd:         gputypes.BlendOperationAdd,
	BlendOpSubtract:    gputypes.BlendOperationSubtract,
	BlendOpRevSubtract: gputypes.BlendOperationReverseSubtract,
	BlendOpMin:         gputypes.BlendOperationMin,
	BlendOpMax:         gputypes.BlendOperationMax,
}

var compareFunctions = map[ComparisonFunc]gputypes.CompareFunction{
	ComparisonNever:        gputypes.CompareFunctionNever,
	ComparisonLess:         gputypes.CompareFunctionLess,
	ComparisonEqual:        gputypes.CompareFunctionEqual,
	ComparisonLessEqual:    gputypes.CompareFunctionLessEqual,
	ComparisonGreater:      gputypes.CompareFunctionGreater,
	ComparisonNotEqual:     gputypes.CompareFunctionNotEqual,
	ComparisonGreaterEqual: gputypes.CompareFunctionGreaterEqual,
	ComparisonAlways:       gputypes.CompareFunctionAlways,
}

var stencilOperations = map[StencilOp]hal.StencilOperation{
	StencilOpKeep:    hal.StencilOperationKeep,
	StencilOpZero:    hal.StencilOperationZero,
	StencilOpReplace: hal.StencilOperationReplace,
	StencilOpIncrSat: hal.StencilOperationIncrementClamp,
	StencilOpDecrSat: hal.StencilOperationDecrementClamp,
	StencilOpInvert:  hal.StencilOperationInvert,
	StencilOpIncr:    hal.StencilOperationIncrementWrap,
	StencilOpDecr:    hal.StencilOperationDecrementWrap,
}

var topologies = map[Topology]gputypes.PrimitiveTopology{
	TopologyTriangleList:  gputypes.PrimitiveTopologyTriangleList,
	TopologyTriangleStrip: gputypes.PrimitiveTopologyTriangleStrip,
	TopologyLineList:      gputypes.PrimitiveTopologyLineList,
	TopologyLineStrip:     gputypes.PrimitiveTopologyLineStrip,
	TopologyPointList:     gputypes.PrimitiveTopologyPointList,
}

var cullModes = map[CullMode]gputypes.CullMode{
	CullNone:  gputypes.CullModeNone,
	CullFront: gputypes.CullModeFront,
	CullBack:  gputypes.CullModeBack,
}

func colorTarget(rt RenderTarget) (gputypes.ColorTargetState, error) {
	format, err := textureFormat(rt.Format)
	if err != nil {
		return gputypes.ColorTargetState{}, err
	}
	state := gputypes.ColorTargetState{
		Format:    format,
		WriteMask: gputypes.ColorWriteMask(rt.Blend.WriteMask & ColorWriteAll),
	}
	if rt.Blend.Enable {
		state.Blend = &gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: blendFactors[rt.Blend.SrcColor],
				DstFactor: blendFactors[rt.Blend.DstColor],
				Operation: blendOps[rt.Blend.ColorOp],
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: blendFactors[rt.Blend.SrcAlpha],
				DstFactor: blendFactors[rt.Blend.DstAlpha],
				Operation: blendOps[rt.Blend.AlphaOp],
			},
		}
	}
	return state, nil
}

func stencilFace(s StencilOpDesc) hal.StencilFaceState {
	return hal.StencilFaceState{
		Compare:     compareFunctions[s.Func],
		FailOp:      stencilOperations[s.FailOp],
		DepthFailOp: stencilOperations[s.DepthFailOp],
		PassOp:      stencilOperations[s.PassOp],
	}
}

// depthStencilState returns nil when the pipeline has no depth target.
func depthStencilState(desc *GraphicsPipelineDesc) (*hal.DepthStencilState, error) {
	if desc.DepthFormat == dxgi.FormatUnknown {
		return nil, nil
	}
	format, err := textureFormat(desc.DepthFormat)
	if err != nil {
		return nil, err
	}
	ds := desc.DepthStencil
	state := &hal.DepthStencilState{
		Format:              format,
		DepthWriteEnabled:   ds.DepthEnable && ds.DepthWrite,
		DepthCompare:        gputypes.CompareFunctionAlways,
		DepthBias:           desc.Rasterizer.DepthBias,
		DepthBiasSlopeScale: desc.Rasterizer.SlopeScaledDepthBias,
		DepthBiasClamp:      desc.Rasterizer.DepthBiasClamp,
		StencilFront:        hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
		StencilBack:         hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
	}
	if ds.DepthEnable {
		state.DepthCompare = compareFunctions[ds.DepthFunc]
	}
	if ds.StencilEnable {
		state.StencilFront = stencilFace(ds.Front)
		state.StencilBack = stencilFace(ds.Back)
		state.StencilReadMask = uint32(ds.StencilReadMask)
		state.StencilWriteMask = uint32(ds.StencilWriteMask)
	}
	return state, nil
}

func primitiveState(desc *GraphicsPipelineDesc) gputypes.PrimitiveState {
	front := gputypes.FrontFaceCW
	if desc.Rasterizer.FrontCounterClockwise {
		front = gputypes.FrontFaceCCW
	}
	return gputypes.PrimitiveState{
		Topology:       topologies[desc.Topology],
		FrontFace:      front,
		CullMode:       cullModes[desc.Rasterizer.Cull],
		UnclippedDepth: !desc.Rasterizer.DepthClip,
	}
}

func multisampleState(count uint32) gputypes.MultisampleState {
	state := gputypes.DefaultMultisampleState()
	if count > 1 {
		state.Count = count
	}
	return state
}
