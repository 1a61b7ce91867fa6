package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/adria-go/engine/renderer/device"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/reflection"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/shader"
)

// ShaderSource resolves shader ids to their live bytecode.
type ShaderSource interface {
	LookupShader(id string) (shader.CompiledShader, bool)
	Table() *shader.Table
}

// DependencyRecord lists the shader ids a pipeline was built from, de-duplicated and in
// stage order.
type DependencyRecord struct {
	PSO     string
	Shaders []string
}

// Contains reports whether the record references shaderID.
func (r DependencyRecord) Contains(shaderID string) bool {
	for _, id := range r.Shaders {
		if id == shaderID {
			return true
		}
	}
	return false
}

// Builder turns compiled bytecode and a Descriptor into device objects.
type Builder interface {
	// BuildRootSignature reads the RTS0 part of bytecode and creates the root signature.
	//
	// Parameters:
	//   - id: the label given to the device object
	//   - bytecode: a compiled shader container
	//
	// Returns:
	//   - *device.RootSignature: the created root signature
	//   - error: a reflection error or a device error
	BuildRootSignature(id string, bytecode []byte) (*device.RootSignature, error)

	// BuildPSO resolves every stage of desc to current bytecode, creates the root signature
	// and the pipeline, and stores the DependencyRecord for id. The record is stored as soon
	// as every referenced id is known, even if the build itself fails later.
	//
	// Parameters:
	//   - id: the pipeline id
	//   - desc: the pipeline descriptor
	//
	// Returns:
	//   - *device.PipelineState: the pipeline, whose RootSignature field is the new root signature
	//   - error: a *BuildError
	BuildPSO(id string, desc Descriptor) (*device.PipelineState, error)

	// Dependencies returns the record stored for id.
	Dependencies(id string) (DependencyRecord, bool)
}

// BuilderOption is a functional option used to configure a Builder during construction.
type BuilderOption func(*builder)

// WithBuilderLogger sets the structured logger. Defaults to slog.Default().
func WithBuilderLogger(l *slog.Logger) BuilderOption {
	return func(b *builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithRootSignatureConsistencyCheck requires every stage that embeds a root signature to
// carry the same blob as the stage the root signature is read from.
//
// Parameters:
//   - enabled: whether to compare the blobs
//
// Returns:
//   - BuilderOption: a function that enables the check
func WithRootSignatureConsistencyCheck(enabled bool) BuilderOption {
	return func(b *builder) {
		b.consistency = enabled
	}
}

type builder struct {
	device      device.Device
	shaders     ShaderSource
	logger      *slog.Logger
	consistency bool

	mu      sync.RWMutex
	records map[string]DependencyRecord
}

var _ Builder = &builder{}

// NewBuilder creates a Builder that reads bytecode from shaders and creates objects on dev.
//
// Parameters:
//   - dev: the device
//   - shaders: the bytecode source, usually a shader.Cache
//   - opts: optional configuration
//
// Returns:
//   - Builder: the builder
func NewBuilder(dev device.Device, shaders ShaderSource, opts ...BuilderOption) Builder {
	b := &builder{
		device:  dev,
		shaders: shaders,
		logger:  slog.Default(),
		records: make(map[string]DependencyRecord),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *builder) BuildRootSignature(id string, bytecode []byte) (*device.RootSignature, error) {
	refl, err := reflection.Reflect(bytecode)
	if err != nil {
		return nil, err
	}
	blob, _, err := refl.RequireRootSignature()
	if err != nil {
		return nil, err
	}
	return b.device.CreateRootSignature(id, blob)
}

func (b *builder) Dependencies(id string) (DependencyRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.records[id]
	if !ok {
		return DependencyRecord{}, false
	}
	r.Shaders = append([]string(nil), r.Shaders...)
	return r, true
}

// resolvedStage is one stage's bytecode together with its reflection, parsed at most once.
type resolvedStage struct {
	bytecode device.ShaderBytecode
	refl     *reflection.Shader
}

func (b *builder) BuildPSO(id string, desc Descriptor) (*device.PipelineState, error) {
	if err := desc.Validate(); err != nil {
		return nil, &BuildError{PSO: id, Err: err}
	}

	table := b.shaders.Table()
	ids := desc.ShaderIDs()
	for _, sid := range ids {
		if !table.Has(sid) {
			return nil, &BuildError{PSO: id, Shader: sid, Err: shader.ErrUnknownShader}
		}
	}
	b.record(id, ids)

	stages := make(map[shader.Stage]*resolvedStage, len(ids))
	for _, stage := range desc.stages() {
		sid := desc.StageShader(stage)
		compiled, ok := b.shaders.LookupShader(sid)
		if !ok {
			return nil, &BuildError{PSO: id, Shader: sid, Err: ErrShaderNotCompiled}
		}
		ident, _ := table.Lookup(sid)
		stages[stage] = &resolvedStage{bytecode: device.ShaderBytecode{
			ID:         sid,
			Bytecode:   compiled.Bytecode,
			EntryPoint: ident.EntryPoint,
		}}
	}

	rsStage := desc.rootSignatureStage()
	source, ok := stages[rsStage]
	if !ok {
		return nil, &BuildError{PSO: id, Err: fmt.Errorf("root signature stage %s has no shader", rsStage)}
	}
	if err := b.reflect(source); err != nil {
		return nil, &BuildError{PSO: id, Shader: source.bytecode.ID, Err: err}
	}
	blob, _, err := source.refl.RequireRootSignature()
	if err != nil {
		return nil, &BuildError{PSO: id, Shader: source.bytecode.ID, Err: err}
	}
	if b.consistency {
		if err := b.checkConsistency(desc, rsStage, blob, stages); err != nil {
			return nil, &BuildError{PSO: id, Err: err}
		}
	}

	rsID := desc.RootSignatureID
	if rsID == "" {
		rsID = id
	}
	rs, err := b.device.CreateRootSignature(rsID, blob)
	if err != nil {
		return nil, &BuildError{PSO: id, Shader: source.bytecode.ID, Err: err}
	}

	var pso *device.PipelineState
	switch desc.Kind {
	case KindCompute:
		pso, err = b.device.CreateComputePipeline(&device.ComputePipelineDesc{
			Label:         id,
			RootSignature: rs,
			CS:            stages[shader.StageCompute].bytecode,
		})
	default:
		var gd *device.GraphicsPipelineDesc
		gd, err = b.graphicsDesc(id, desc.Graphics, rs, stages)
		if err == nil {
			pso, err = b.device.CreateGraphicsPipeline(gd)
		}
	}
	if err != nil {
		b.device.Release(rs)
		var buildErr *BuildError
		if errors.As(err, &buildErr) {
			return nil, buildErr
		}
		return nil, &BuildError{PSO: id, Err: err}
	}
	return pso, nil
}

// record stores the dependency record for id once; later builds reuse the first record.
func (b *builder) record(id string, ids []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.records[id]; ok {
		return
	}
	b.records[id] = DependencyRecord{PSO: id, Shaders: append([]string(nil), ids...)}
}

func (b *builder) reflect(s *resolvedStage) error {
	if s.refl != nil {
		return nil
	}
	refl, err := reflection.Reflect(s.bytecode.Bytecode)
	if err != nil {
		return err
	}
	s.refl = refl
	return nil
}

func (b *builder) checkConsistency(desc Descriptor, rsStage shader.Stage, blob []byte, stages map[shader.Stage]*resolvedStage) error {
	for _, stage := range desc.stages() {
		if stage == rsStage {
			continue
		}
		s := stages[stage]
		if err := b.reflect(s); err != nil {
			return fmt.Errorf("shader %s: %w", s.bytecode.ID, err)
		}
		if s.refl.RootSignatureBlob != nil && !bytes.Equal(s.refl.RootSignatureBlob, blob) {
			return fmt.Errorf("%w: root signature of %s stage (%s) differs from %s stage",
				reflection.ErrReflectionFailure, stage, s.bytecode.ID, rsStage)
		}
	}
	return nil
}

func (b *builder) graphicsDesc(id string, g *GraphicsDesc, rs *device.RootSignature, stages map[shader.Stage]*resolvedStage) (*device.GraphicsPipelineDesc, error) {
	out := &device.GraphicsPipelineDesc{
		Label:         id,
		RootSignature: rs,
		RenderTargets: append([]device.RenderTarget(nil), g.RenderTargets...),
		DepthStencil:  g.DepthStencil,
		DepthFormat:   g.DepthFormat,
		Rasterizer:    g.Rasterizer,
		Topology:      g.Topology,
		SampleCount:   g.SampleCount,
	}
	slots := map[shader.Stage]*device.ShaderBytecode{
		shader.StageVertex:   &out.VS,
		shader.StagePixel:    &out.PS,
		shader.StageGeometry: &out.GS,
		shader.StageHull:     &out.HS,
		shader.StageDomain:   &out.DS,
	}
	for stage, slot := range slots {
		if s, ok := stages[stage]; ok {
			*slot = s.bytecode
		}
	}

	if g.InputLayout != nil {
		out.InputLayout = append([]reflection.InputElement(nil), g.InputLayout...)
		return out, nil
	}
	vs := stages[shader.StageVertex]
	if err := b.reflect(vs); err != nil {
		return nil, &BuildError{PSO: id, Shader: vs.bytecode.ID, Err: err}
	}
	if vs.refl.Inputs == nil {
		b.logger.Debug("vertex shader has no input signature", "pso", id, "shader", vs.bytecode.ID)
		return out, nil
	}
	layout, err := vs.refl.InputLayout()
	if err != nil {
		return nil, &BuildError{PSO: id, Shader: vs.bytecode.ID, Err: err}
	}
	out.InputLayout = layout
	return out, nil
}
