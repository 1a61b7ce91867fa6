package shader

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Carmen-Shannon/adria-go/engine/renderer/reflection"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/dxil"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
)

// rootFlagAllowInputLayout is D3D12_ROOT_SIGNATURE_FLAG_ALLOW_INPUT_ASSEMBLER_INPUT_LAYOUT.
const rootFlagAllowInputLayout = 0x1

// descriptorRangeOffsetAppend is D3D12_DESCRIPTOR_RANGE_OFFSET_APPEND.
const descriptorRangeOffsetAppend = 0xFFFFFFFF

// nagaCompiler is the implementation of the Compiler interface for WGSL sources.
type nagaCompiler struct{}

var _ Compiler = &nagaCompiler{}

// NewNagaCompiler creates a Compiler that translates WGSL to DXIL in process.
//
// Sources are pre-processed first, so #include and #ifdef on the identity's macros
// work the same as for HLSL. The returned container carries an RTS0 root signature
// derived from the module's @group/@binding declarations and a private SPRV part with
// the SPIR-V of the same entry point for non-D3D devices.
//
// Returns:
//   - Compiler: the WGSL compiler
func NewNagaCompiler() Compiler {
	return &nagaCompiler{}
}

func (c *nagaCompiler) Compile(ctx context.Context, in CompileInput) (*CompileOutput, error) {
	stage, err := nagaStage(in.Stage)
	if err != nil {
		return nil, &CompileDiagnosticError{ID: in.ID, Diagnostic: err.Error()}
	}

	pp := NewPreProcessor(in.IncludeDirs, in.Macros)
	source, err := pp.Process(in.SourcePath)
	if err != nil {
		return nil, err
	}
	deps := pp.Files()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	module, err := c.lower(in.ID, source)
	if err != nil {
		return nil, err
	}

	idx := slices.IndexFunc(module.EntryPoints, func(ep ir.EntryPoint) bool {
		return ep.Name == in.EntryPoint && ep.Stage == stage
	})
	if idx < 0 {
		return nil, &CompileDiagnosticError{ID: in.ID, Diagnostic: fmt.Sprintf("no %s entry point named %q", in.Stage, in.EntryPoint)}
	}
	single := *module
	single.EntryPoints = []ir.EntryPoint{module.EntryPoints[idx]}

	opts := dxil.DefaultOptions()
	opts.ShaderModel = dxil.ShaderModel{Major: uint32(in.Model.Major), Minor: uint32(in.Model.Minor)}
	blob, err := dxil.Compile(&single, opts)
	if err != nil {
		return nil, &CompileDiagnosticError{ID: in.ID, Diagnostic: err.Error()}
	}
	spv, err := naga.GenerateSPIRV(&single, spirv.Options{Version: spirv.Version1_3, Debug: in.Flags.Debug})
	if err != nil {
		return nil, &CompileDiagnosticError{ID: in.ID, Diagnostic: err.Error()}
	}

	container, err := reflection.ParseContainer(blob)
	if err != nil {
		return nil, fmt.Errorf("shader: %s: dxil backend produced an unreadable container: %w", in.ID, err)
	}
	container.SetPart(reflection.FourCCRTS0, rootSignatureFromBindings(&single, in.Stage).Encode())
	container.SetPart(reflection.FourCCSPRV, spv)

	return &CompileOutput{Bytecode: container.Bytes(), Dependencies: deps}, nil
}

func (c *nagaCompiler) lower(id, source string) (*ir.Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, &CompileDiagnosticError{ID: id, Diagnostic: err.Error()}
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, &CompileDiagnosticError{ID: id, Diagnostic: err.Error()}
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, &CompileDiagnosticError{ID: id, Diagnostic: err.Error()}
	}
	if len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, v := range verrs {
			msgs[i] = v.Error()
		}
		return nil, &CompileDiagnosticError{ID: id, Diagnostic: strings.Join(msgs, "\n")}
	}
	return module, nil
}

func nagaStage(s Stage) (ir.ShaderStage, error) {
	switch s {
	case StageVertex:
		return ir.StageVertex, nil
	case StagePixel:
		return ir.StageFragment, nil
	case StageCompute:
		return ir.StageCompute, nil
	}
	return 0, fmt.Errorf("stage %s is not supported for WGSL sources", s)
}

// rootSignatureFromBindings lays out one descriptor table for all CBV/SRV/UAV bindings and
// one for samplers, with register = @binding and space = @group.
func rootSignatureFromBindings(module *ir.Module, stage Stage) *reflection.RootSignatureDesc {
	var resources, samplers []reflection.DescriptorRange
	for _, gv := range module.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		r := reflection.DescriptorRange{
			NumDescriptors:                    1,
			BaseShaderRegister:                gv.Binding.Binding,
			RegisterSpace:                     gv.Binding.Group,
			OffsetInDescriptorsFromTableStart: descriptorRangeOffsetAppend,
		}
		switch gv.Space {
		case ir.SpaceUniform:
			r.Type = reflection.DescriptorRangeCBV
		case ir.SpaceStorage:
			r.Type = reflection.DescriptorRangeUAV
			if gv.Access == ir.StorageRead {
				r.Type = reflection.DescriptorRangeSRV
			}
		case ir.SpaceHandle:
			if int(gv.Type) >= len(module.Types) {
				continue
			}
			switch t := module.Types[gv.Type].Inner.(type) {
			case ir.SamplerType:
				r.Type = reflection.DescriptorRangeSampler
			case ir.ImageType:
				r.Type = reflection.DescriptorRangeSRV
				if t.Class == ir.ImageClassStorage {
					r.Type = reflection.DescriptorRangeUAV
				}
			default:
				r.Type = reflection.DescriptorRangeSRV
			}
		default:
			continue
		}
		if r.Type == reflection.DescriptorRangeSampler {
			samplers = append(samplers, r)
		} else {
			resources = append(resources, r)
		}
	}

	desc := &reflection.RootSignatureDesc{Version: reflection.RootSignatureVersion1_1}
	for _, ranges := range [][]reflection.DescriptorRange{resources, samplers} {
		if len(ranges) == 0 {
			continue
		}
		desc.Parameters = append(desc.Parameters, reflection.RootParameter{
			Type:       reflection.RootParameterDescriptorTable,
			Visibility: reflection.ShaderVisibilityAll,
			Ranges:     ranges,
		})
	}
	// graphics stages of one pipeline must carry identical root signatures.
	if stage != StageCompute {
		desc.Flags |= rootFlagAllowInputLayout
	}
	return desc
}
