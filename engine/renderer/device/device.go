// Package device is the GPU device abstraction the shader pipeline creates its objects
// through. Descriptors are API-agnostic and are translated by each device at the moment
// of creation.
package device

import (
	"github.com/Carmen-Shannon/adria-go/engine/renderer/dxgi"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/reflection"
)

// ObjectKind identifies the type of a device object.
type ObjectKind int

const (
	KindRootSignature ObjectKind = iota
	KindGraphicsPipeline
	KindComputePipeline
	KindTexture
)

func (k ObjectKind) String() string {
	switch k {
	case KindRootSignature:
		return "root signature"
	case KindGraphicsPipeline:
		return "graphics pipeline"
	case KindComputePipeline:
		return "compute pipeline"
	case KindTexture:
		return "texture"
	}
	return "unknown object"
}

// Object is any object created by a Device.
type Object interface {
	// Serial is unique per device and increases with every created object.
	Serial() uint64
	Label() string
	Kind() ObjectKind
	header() *objectHeader
}

type objectHeader struct {
	serial uint64
	label  string
	kind   ObjectKind
	native any
}

func (h *objectHeader) Serial() uint64        { return h.serial }
func (h *objectHeader) Label() string         { return h.label }
func (h *objectHeader) Kind() ObjectKind      { return h.kind }
func (h *objectHeader) header() *objectHeader { return h }

// RootSignature is a created root signature.
type RootSignature struct {
	objectHeader

	// Blob is the serialized root signature the object was created from.
	Blob []byte
	Desc *reflection.RootSignatureDesc
}

// PipelineState is a created graphics or compute pipeline. Exactly one of Graphics and
// Compute is set, matching Kind.
type PipelineState struct {
	objectHeader

	RootSignature *RootSignature
	Graphics      *GraphicsPipelineDesc
	Compute       *ComputePipelineDesc
}

// Texture is a created 2D texture.
type Texture struct {
	objectHeader

	Width  uint32
	Height uint32
	Format dxgi.Format
}

// ShaderBytecode is the compiled code for one pipeline stage.
type ShaderBytecode struct {
	// ID is the shader identity key, used as a label.
	ID         string
	Bytecode   []byte
	EntryPoint string
}

// Empty reports whether the stage is unused.
func (s ShaderBytecode) Empty() bool {
	return len(s.Bytecode) == 0
}

// RenderTarget is the format and blend state of one color target.
type RenderTarget struct {
	Format dxgi.Format
	Blend  BlendDesc
}

// GraphicsPipelineDesc describes a graphics pipeline.
type GraphicsPipelineDesc struct {
	Label         string
	RootSignature *RootSignature

	VS ShaderBytecode
	PS ShaderBytecode
	GS ShaderBytecode
	HS ShaderBytecode
	DS ShaderBytecode

	InputLayout   []reflection.InputElement
	RenderTargets []RenderTarget
	DepthStencil  DepthStencilDesc
	DepthFormat   dxgi.Format
	Rasterizer    RasterizerDesc
	Topology      Topology
	SampleCount   uint32
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label         string
	RootSignature *RootSignature
	CS            ShaderBytecode
}

// TextureDesc describes a 2D texture and its initial contents. Pixels may be nil.
type TextureDesc struct {
	Label  string
	Width  uint32
	Height uint32
	Format dxgi.Format
	Pixels []byte
}

// maxRenderTargets is the number of simultaneous color targets a pipeline can write.
const maxRenderTargets = 8

// Device creates and releases GPU objects. Implementations are safe for concurrent use.
type Device interface {
	// Name returns a short name for logs.
	Name() string

	// CreateRootSignature creates a root signature from a serialized RTS0 blob.
	//
	// Parameters:
	//   - label: a debug name
	//   - blob: the serialized root signature
	//
	// Returns:
	//   - *RootSignature: the created object
	//   - error: a *Error if the blob is rejected
	CreateRootSignature(label string, blob []byte) (*RootSignature, error)

	// CreateGraphicsPipeline creates a graphics pipeline.
	//
	// Parameters:
	//   - desc: the pipeline description
	//
	// Returns:
	//   - *PipelineState: the created object
	//   - error: a *Error if the description is rejected
	CreateGraphicsPipeline(desc *GraphicsPipelineDesc) (*PipelineState, error)

	// CreateComputePipeline creates a compute pipeline.
	//
	// Parameters:
	//   - desc: the pipeline description
	//
	// Returns:
	//   - *PipelineState: the created object
	//   - error: a *Error if the description is rejected
	CreateComputePipeline(desc *ComputePipelineDesc) (*PipelineState, error)

	// CreateTexture creates a texture and uploads its pixels, if any.
	//
	// Parameters:
	//   - desc: the texture description
	//
	// Returns:
	//   - *Texture: the created object
	//   - error: a *Error if the texture cannot be created or uploaded
	CreateTexture(desc *TextureDesc) (*Texture, error)

	// Release destroys an object. Releasing nil, or an object twice, is a no-op.
	Release(obj Object)

	// LiveObjects returns the number of created objects not yet released.
	LiveObjects() int
}
