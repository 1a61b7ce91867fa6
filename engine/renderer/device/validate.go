package device

import (
	"errors"
	"fmt"
	"sync"
)

// validateGraphics checks the parts of a graphics description every device requires.
func validateGraphics(desc *GraphicsPipelineDesc) error {
	if desc == nil {
		return errors.New("nil descriptor")
	}
	if desc.RootSignature == nil {
		return errors.New("no root signature")
	}
	if desc.VS.Empty() {
		return errors.New("no vertex shader bytecode")
	}
	if len(desc.RenderTargets) > maxRenderTargets {
		return fmt.Errorf("%d render targets exceed the limit of %d", len(desc.RenderTargets), maxRenderTargets)
	}
	for i, rt := range desc.RenderTargets {
		if rt.Format.Size() == 0 || rt.Format.IsDepth() {
			return fmt.Errorf("render target %d has unusable format %s", i, rt.Format)
		}
	}
	if desc.DepthStencil.DepthEnable && !desc.DepthFormat.IsDepth() {
		return fmt.Errorf("depth test enabled with non-depth format %s", desc.DepthFormat)
	}
	switch desc.SampleCount {
	case 0, 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("unsupported sample count %d", desc.SampleCount)
	}
	return nil
}

// validateCompute checks the parts of a compute description every device requires.
func validateCompute(desc *ComputePipelineDesc) error {
	if desc == nil {
		return errors.New("nil descriptor")
	}
	if desc.RootSignature == nil {
		return errors.New("no root signature")
	}
	if desc.CS.Empty() {
		return errors.New("no compute shader bytecode")
	}
	return nil
}

func validateTexture(desc *TextureDesc) error {
	if desc == nil {
		return errors.New("nil descriptor")
	}
	if desc.Width == 0 || desc.Height == 0 {
		return fmt.Errorf("invalid size %dx%d", desc.Width, desc.Height)
	}
	size := desc.Format.Size()
	if size == 0 {
		return fmt.Errorf("unsupported format %s", desc.Format)
	}
	if desc.Pixels != nil && uint64(len(desc.Pixels)) != uint64(desc.Width)*uint64(desc.Height)*uint64(size) {
		return fmt.Errorf("pixel data is %d bytes, want %d", len(desc.Pixels), desc.Width*desc.Height*size)
	}
	return nil
}

// registry hands out serials and tracks live objects.
type registry struct {
	mu     sync.Mutex
	serial uint64
	live   map[uint64]Object
}

func newRegistry() *registry {
	return &registry{live: make(map[uint64]Object)}
}

func (r *registry) track(obj Object, kind ObjectKind, label string, native any) {
	h := obj.header()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serial++
	*h = objectHeader{serial: r.serial, label: label, kind: kind, native: native}
	r.live[h.serial] = obj
}

// untrack removes obj and reports whether it was live.
func (r *registry) untrack(obj Object) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	serial := obj.header().serial
	if _, ok := r.live[serial]; !ok {
		return false
	}
	delete(r.live, serial)
	return true
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// isNil reports whether obj is nil or a typed nil pointer.
func isNil(obj Object) bool {
	switch o := obj.(type) {
	case nil:
		return true
	case *RootSignature:
		return o == nil
	case *PipelineState:
		return o == nil
	case *Texture:
		return o == nil
	}
	return false
}
