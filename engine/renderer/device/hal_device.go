package device

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/adria-go/engine/renderer/reflection"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// halDevice implements Device on a gogpu HAL device. Shader stages are created from the
// SPIR-V carried in each container's SPRV part, so only bytecode produced by the naga
// compiler can be used with it.
type halDevice struct {
	options
	objects *registry

	device hal.Device
	queue  hal.Queue
}

// halRootSignature holds the layouts a root signature translates to.
type halRootSignature struct {
	groups []hal.BindGroupLayout
	layout hal.PipelineLayout
}

type halPipeline struct {
	modules []hal.ShaderModule
	render  hal.RenderPipeline
	compute hal.ComputePipeline
}

var _ Device = &halDevice{}

// NewHALDevice creates a Device backed by a gogpu HAL device.
//
// Parameters:
//   - device: the open HAL device
//   - queue: the device's queue, used for texture uploads
//   - opts: optional configuration
//
// Returns:
//   - Device: the HAL-backed device
func NewHALDevice(device hal.Device, queue hal.Queue, opts ...DeviceBuilderOption) Device {
	d := &halDevice{options: defaultOptions(), objects: newRegistry(), device: device, queue: queue}
	for _, opt := range opts {
		opt(&d.options)
	}
	return d
}

func (d *halDevice) Name() string {
	return "hal"
}

func (d *halDevice) CreateRootSignature(label string, blob []byte) (*RootSignature, error) {
	if err := d.check(KindRootSignature, label); err != nil {
		return nil, newError(KindRootSignature, label, err)
	}
	desc, err := reflection.ParseRootSignature(blob)
	if err != nil {
		return nil, newError(KindRootSignature, label, err)
	}
	bindings, err := translateRootSignature(desc)
	if err != nil {
		return nil, newError(KindRootSignature, label, err)
	}

	native := &halRootSignature{groups: make([]hal.BindGroupLayout, 0, len(bindings.groups))}
	for g := range bindings.groups {
		layout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s group %d", label, g),
			Entries: bindings.entries(g),
		})
		if err != nil {
			d.destroyRootSignature(native)
			return nil, newError(KindRootSignature, label, fmt.Errorf("failed to create bind group layout for group %d: %w", g, err))
		}
		native.groups = append(native.groups, layout)
	}

	native.layout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:              label,
		BindGroupLayouts:   native.groups,
		PushConstantRanges: bindings.pushConstants,
	})
	if err != nil {
		d.destroyRootSignature(native)
		return nil, newError(KindRootSignature, label, err)
	}

	rs := &RootSignature{Blob: append([]byte(nil), blob...), Desc: desc}
	d.objects.track(rs, KindRootSignature, label, native)
	return rs, nil
}

// shaderModule creates a module from the SPIR-V part of a compiled container.
func (d *halDevice) shaderModule(stage ShaderBytecode) (hal.ShaderModule, error) {
	refl, err := reflection.Reflect(stage.Bytecode)
	if err != nil {
		return nil, err
	}
	words, ok := refl.SPIRV()
	if !ok {
		return nil, fmt.Errorf("shader %s has no SPIR-V part", stage.ID)
	}
	return d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  stage.ID,
		Source: hal.ShaderSource{SPIRV: words},
	})
}

func pipelineLayoutOf(rs *RootSignature) (hal.PipelineLayout, error) {
	native, ok := rs.native.(*halRootSignature)
	if !ok {
		return nil, errors.New("root signature was not created by this device")
	}
	return native.layout, nil
}

func (d *halDevice) CreateGraphicsPipeline(desc *GraphicsPipelineDesc) (*PipelineState, error) {
	label := labelOf(desc)
	if err := validateGraphics(desc); err != nil {
		return nil, newError(KindGraphicsPipeline, label, err)
	}
	if !desc.GS.Empty() || !desc.HS.Empty() || !desc.DS.Empty() {
		return nil, newError(KindGraphicsPipeline, label, errors.New("geometry and tessellation stages are not supported"))
	}
	if desc.Rasterizer.Fill != FillSolid {
		return nil, newError(KindGraphicsPipeline, label, errors.New("only solid fill is supported"))
	}
	if err := d.check(KindGraphicsPipeline, label); err != nil {
		return nil, newError(KindGraphicsPipeline, label, err)
	}
	layout, err := pipelineLayoutOf(desc.RootSignature)
	if err != nil {
		return nil, newError(KindGraphicsPipeline, label, err)
	}

	native := &halPipeline{}
	fail := func(err error) (*PipelineState, error) {
		d.destroyPipeline(native)
		return nil, newError(KindGraphicsPipeline, label, err)
	}

	vs, err := d.shaderModule(desc.VS)
	if err != nil {
		return fail(err)
	}
	native.modules = append(native.modules, vs)

	buffers, err := vertexBuffers(desc.InputLayout)
	if err != nil {
		return fail(err)
	}
	depthStencil, err := depthStencilState(desc)
	if err != nil {
		return fail(err)
	}

	var fragment *hal.FragmentState
	if !desc.PS.Empty() {
		ps, err := d.shaderModule(desc.PS)
		if err != nil {
			return fail(err)
		}
		native.modules = append(native.modules, ps)
		targets := make([]gputypes.ColorTargetState, 0, len(desc.RenderTargets))
		for i, rt := range desc.RenderTargets {
			target, err := colorTarget(rt)
			if err != nil {
				return fail(fmt.Errorf("render target %d: %w", i, err))
			}
			targets = append(targets, target)
		}
		fragment = &hal.FragmentState{
			Module:     ps,
			EntryPoint: desc.PS.EntryPoint,
			Targets:    targets,
		}
	}

	native.render, err = d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     vs,
			EntryPoint: desc.VS.EntryPoint,
			Buffers:    buffers,
		},
		Primitive:    primitiveState(desc),
		DepthStencil: depthStencil,
		Multisample:  multisampleState(desc.SampleCount),
		Fragment:     fragment,
	})
	if err != nil {
		return fail(err)
	}

	copied := *desc
	pso := &PipelineState{RootSignature: desc.RootSignature, Graphics: &copied}
	d.objects.track(pso, KindGraphicsPipeline, label, native)
	return pso, nil
}

func (d *halDevice) CreateComputePipeline(desc *ComputePipelineDesc) (*PipelineState, error) {
	label := ""
	if desc != nil {
		label = desc.Label
	}
	if err := validateCompute(desc); err != nil {
		return nil, newError(KindComputePipeline, label, err)
	}
	if err := d.check(KindComputePipeline, label); err != nil {
		return nil, newError(KindComputePipeline, label, err)
	}
	layout, err := pipelineLayoutOf(desc.RootSignature)
	if err != nil {
		return nil, newError(KindComputePipeline, label, err)
	}

	cs, err := d.shaderModule(desc.CS)
	if err != nil {
		return nil, newError(KindComputePipeline, label, err)
	}
	native := &halPipeline{modules: []hal.ShaderModule{cs}}

	native.compute, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  label,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     cs,
			EntryPoint: desc.CS.EntryPoint,
		},
	})
	if err != nil {
		d.destroyPipeline(native)
		return nil, newError(KindComputePipeline, label, err)
	}

	copied := *desc
	pso := &PipelineState{RootSignature: desc.RootSignature, Compute: &copied}
	d.objects.track(pso, KindComputePipeline, label, native)
	return pso, nil
}

func (d *halDevice) CreateTexture(desc *TextureDesc) (*Texture, error) {
	label := ""
	if desc != nil {
		label = desc.Label
	}
	if err := validateTexture(desc); err != nil {
		return nil, newError(KindTexture, label, err)
	}
	if err := d.check(KindTexture, label); err != nil {
		return nil, newError(KindTexture, label, err)
	}
	format, err := textureFormat(desc.Format)
	if err != nil {
		return nil, newError(KindTexture, label, err)
	}

	size := hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, newError(KindTexture, label, err)
	}

	if desc.Pixels != nil {
		err = d.queue.WriteTexture(
			&hal.ImageCopyTexture{
				Texture:  tex,
				MipLevel: 0,
				Origin:   hal.Origin3D{},
				Aspect:   gputypes.TextureAspectAll,
			},
			desc.Pixels,
			&hal.ImageDataLayout{
				Offset:       0,
				BytesPerRow:  desc.Width * desc.Format.Size(),
				RowsPerImage: desc.Height,
			},
			&size,
		)
		if err != nil {
			d.device.DestroyTexture(tex)
			return nil, newError(KindTexture, label, fmt.Errorf("upload failed: %w", err))
		}
	}

	out := &Texture{Width: desc.Width, Height: desc.Height, Format: desc.Format}
	d.objects.track(out, KindTexture, label, tex)
	return out, nil
}

func (d *halDevice) Release(obj Object) {
	if isNil(obj) || !d.objects.untrack(obj) {
		return
	}
	switch native := obj.header().native.(type) {
	case *halRootSignature:
		d.destroyRootSignature(native)
	case *halPipeline:
		d.destroyPipeline(native)
	case hal.Texture:
		d.device.DestroyTexture(native)
	}
	d.logger.Debug("released device object", "device", d.Name(), "kind", obj.Kind().String(), "label", obj.Label())
}

func (d *halDevice) LiveObjects() int {
	return d.objects.count()
}

func (d *halDevice) destroyRootSignature(rs *halRootSignature) {
	if rs.layout != nil {
		d.device.DestroyPipelineLayout(rs.layout)
	}
	for _, g := range rs.groups {
		d.device.DestroyBindGroupLayout(g)
	}
}

func (d *halDevice) destroyPipeline(p *halPipeline) {
	if p.render != nil {
		d.device.DestroyRenderPipeline(p.render)
	}
	if p.compute != nil {
		d.device.DestroyComputePipeline(p.compute)
	}
	for _, m := range p.modules {
		d.device.DestroyShaderModule(m)
	}
}
