package device

import (
	"fmt"

	"github.com/Carmen-Shannon/adria-go/engine/renderer/reflection"
)

// nullDevice validates descriptions and tracks objects without touching a GPU.
type nullDevice struct {
	options
	objects *registry
}

var _ Device = &nullDevice{}

// NewNullDevice creates a headless Device. It performs the validation a driver would
// (root signature blobs must decode, pipelines need a vertex or compute shader, formats
// must be usable) and counts live objects, which makes it suitable for tools and tests.
//
// Parameters:
//   - opts: optional configuration
//
// Returns:
//   - Device: the null device
func NewNullDevice(opts ...DeviceBuilderOption) Device {
	d := &nullDevice{options: defaultOptions(), objects: newRegistry()}
	for _, opt := range opts {
		opt(&d.options)
	}
	return d
}

func (d *nullDevice) Name() string {
	return "null"
}

func (d *nullDevice) CreateRootSignature(label string, blob []byte) (*RootSignature, error) {
	if err := d.check(KindRootSignature, label); err != nil {
		return nil, newError(KindRootSignature, label, err)
	}
	desc, err := reflection.ParseRootSignature(blob)
	if err != nil {
		return nil, newError(KindRootSignature, label, err)
	}
	rs := &RootSignature{Blob: append([]byte(nil), blob...), Desc: desc}
	d.objects.track(rs, KindRootSignature, label, nil)
	return rs, nil
}

func (d *nullDevice) CreateGraphicsPipeline(desc *GraphicsPipelineDesc) (*PipelineState, error) {
	label := labelOf(desc)
	if err := validateGraphics(desc); err != nil {
		return nil, newError(KindGraphicsPipeline, label, err)
	}
	if err := d.check(KindGraphicsPipeline, label); err != nil {
		return nil, newError(KindGraphicsPipeline, label, err)
	}
	copied := *desc
	pso := &PipelineState{RootSignature: desc.RootSignature, Graphics: &copied}
	d.objects.track(pso, KindGraphicsPipeline, label, nil)
	return pso, nil
}

func (d *nullDevice) CreateComputePipeline(desc *ComputePipelineDesc) (*PipelineState, error) {
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
	copied := *desc
	pso := &PipelineState{RootSignature: desc.RootSignature, Compute: &copied}
	d.objects.track(pso, KindComputePipeline, label, nil)
	return pso, nil
}

func (d *nullDevice) CreateTexture(desc *TextureDesc) (*Texture, error) {
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
	tex := &Texture{Width: desc.Width, Height: desc.Height, Format: desc.Format}
	d.objects.track(tex, KindTexture, label, nil)
	return tex, nil
}

func (d *nullDevice) Release(obj Object) {
	if isNil(obj) {
		return
	}
	if d.objects.untrack(obj) {
		d.logger.Debug("released device object", "device", d.Name(), "kind", obj.Kind().String(), "label", obj.Label())
	}
}

func (d *nullDevice) LiveObjects() int {
	return d.objects.count()
}

func labelOf(desc *GraphicsPipelineDesc) string {
	if desc == nil {
		return ""
	}
	if desc.Label != "" {
		return desc.Label
	}
	return fmt.Sprintf("pipeline(vs=%s)", desc.VS.ID)
}
