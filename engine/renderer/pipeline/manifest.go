package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Carmen-Shannon/adria-go/engine/renderer/device"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/dxgi"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/shader"
	"github.com/pelletier/go-toml/v2"
)

// Entry is one pipeline loaded from a manifest.
type Entry struct {
	ID         string
	Descriptor Descriptor
}

type manifestFile struct {
	Pipelines []manifestPSO `toml:"pso"`
}

type manifestPSO struct {
	ID   string `toml:"id"`
	Kind string `toml:"kind"`
	VS   string `toml:"vs"`
	PS   string `toml:"ps"`
	GS   string `toml:"gs"`
	HS   string `toml:"hs"`
	DS   string `toml:"ds"`
	CS   string `toml:"cs"`

	RootSignature      string `toml:"root_signature"`
	RootSignatureStage string `toml:"root_signature_stage"`

	RenderTargets []string         `toml:"render_targets"`
	DepthFormat   *string          `toml:"depth_format"`
	Topology      *device.Topology `toml:"topology"`
	SampleCount   *uint32          `toml:"sample_count"`
	Blend         string           `toml:"blend"`

	DepthEnable          *bool                  `toml:"depth_enable"`
	DepthWrite           *bool                  `toml:"depth_write"`
	DepthFunc            *device.ComparisonFunc `toml:"depth_func"`
	Cull                 *device.CullMode       `toml:"cull"`
	Fill                 *device.FillMode       `toml:"fill"`
	FrontCCW             *bool                  `toml:"front_ccw"`
	DepthBias            *int32                 `toml:"depth_bias"`
	SlopeScaledDepthBias *float32               `toml:"slope_scaled_depth_bias"`
}

// BlendPreset returns a named blend state: "opaque", "alpha", "additive" or "premultiplied".
//
// Parameters:
//   - name: the preset name, case-insensitive
//
// Returns:
//   - device.BlendDesc: the blend state
//   - error: an error if the name is unknown
func BlendPreset(name string) (device.BlendDesc, error) {
	b := device.DefaultBlendDesc()
	switch strings.ToLower(name) {
	case "", "opaque":
	case "alpha":
		b.Enable = true
		b.SrcColor, b.DstColor = device.BlendSrcAlpha, device.BlendInvSrcAlpha
		b.SrcAlpha, b.DstAlpha = device.BlendOne, device.BlendInvSrcAlpha
	case "additive":
		b.Enable = true
		b.SrcColor, b.DstColor = device.BlendOne, device.BlendOne
		b.SrcAlpha, b.DstAlpha = device.BlendOne, device.BlendOne
	case "premultiplied":
		b.Enable = true
		b.SrcColor, b.DstColor = device.BlendOne, device.BlendInvSrcAlpha
		b.SrcAlpha, b.DstAlpha = device.BlendOne, device.BlendInvSrcAlpha
	default:
		return b, fmt.Errorf("unknown blend preset %q", name)
	}
	return b, nil
}

// ParseManifest decodes a TOML list of [[pso]] tables:
//
//	[[pso]]
//	id = "PSO_Main"
//	vs = "VS_Main"
//	ps = "PS_Main"
//	render_targets = ["R16G16B16A16_FLOAT"]
//	depth_format = "D32_FLOAT"
//	blend = "alpha"
//	cull = "none"
//
//	[[pso]]
//	id = "PSO_Blur"
//	kind = "compute"
//	cs = "CS_Blur"
//
// Graphics entries start from DefaultGraphicsDesc; only the keys present override it.
//
// Parameters:
//   - data: the manifest contents
//
// Returns:
//   - []Entry: the pipelines in manifest order
//   - error: a decode or validation error
func ParseManifest(data []byte) ([]Entry, error) {
	var mf manifestFile
	if err := toml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("pipeline: failed to decode manifest: %w", err)
	}

	entries := make([]Entry, 0, len(mf.Pipelines))
	seen := make(map[string]struct{}, len(mf.Pipelines))
	for i, p := range mf.Pipelines {
		if p.ID == "" {
			return nil, fmt.Errorf("pipeline: manifest entry %d has no id", i)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("pipeline: manifest entry %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = struct{}{}

		desc, err := p.descriptor()
		if err != nil {
			return nil, fmt.Errorf("pipeline: manifest entry %d (%s): %w", i, p.ID, err)
		}
		if err := desc.Validate(); err != nil {
			return nil, fmt.Errorf("pipeline: manifest entry %d (%s): %w", i, p.ID, err)
		}
		entries = append(entries, Entry{ID: p.ID, Descriptor: desc})
	}
	return entries, nil
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to read manifest %q: %w", path, err)
	}
	return ParseManifest(data)
}

func (p manifestPSO) descriptor() (Descriptor, error) {
	var opts []DescriptorBuilderOption
	if p.RootSignature != "" {
		opts = append(opts, WithRootSignatureID(p.RootSignature))
	}
	if p.RootSignatureStage != "" {
		stage, err := shader.ParseStage(p.RootSignatureStage)
		if err != nil {
			return Descriptor{}, err
		}
		opts = append(opts, WithRootSignatureStage(stage))
	}

	switch strings.ToLower(p.Kind) {
	case "compute":
		if p.VS != "" || p.PS != "" || p.GS != "" || p.HS != "" || p.DS != "" {
			return Descriptor{}, errors.New("compute pipeline sets graphics stages")
		}
		return NewComputeDescriptor(p.CS, opts...), nil
	case "", "graphics":
		if p.CS != "" {
			return Descriptor{}, errors.New("graphics pipeline sets a compute shader")
		}
	default:
		return Descriptor{}, fmt.Errorf("unknown pipeline kind %q", p.Kind)
	}

	graphicsOpts, err := p.graphicsOptions()
	if err != nil {
		return Descriptor{}, err
	}
	return NewGraphicsDescriptor(p.VS, p.PS, append(opts, graphicsOpts...)...), nil
}

func (p manifestPSO) graphicsOptions() ([]DescriptorBuilderOption, error) {
	var opts []DescriptorBuilderOption
	if p.GS != "" {
		opts = append(opts, WithGeometryShader(p.GS))
	}
	if p.HS != "" || p.DS != "" {
		opts = append(opts, WithTessellationShaders(p.HS, p.DS))
	}
	if p.RenderTargets != nil {
		formats := make([]dxgi.Format, 0, len(p.RenderTargets))
		for _, name := range p.RenderTargets {
			f, err := dxgi.ParseFormat(name)
			if err != nil {
				return nil, err
			}
			formats = append(formats, f)
		}
		opts = append(opts, WithRenderTargets(formats...))
	}
	blend, err := BlendPreset(p.Blend)
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithBlend(blend))

	if p.DepthFormat != nil {
		f := dxgi.FormatUnknown
		if *p.DepthFormat != "" && !strings.EqualFold(*p.DepthFormat, "none") {
			if f, err = dxgi.ParseFormat(*p.DepthFormat); err != nil {
				return nil, err
			}
		}
		opts = append(opts, WithDepthFormat(f))
	}
	if p.DepthEnable != nil {
		opts = append(opts, WithDepthTestEnabled(*p.DepthEnable))
	}
	if p.DepthWrite != nil {
		opts = append(opts, WithDepthWriteEnabled(*p.DepthWrite))
	}
	if p.DepthFunc != nil {
		opts = append(opts, WithDepthFunc(*p.DepthFunc))
	}
	if p.Topology != nil {
		opts = append(opts, WithTopology(*p.Topology))
	}
	if p.SampleCount != nil {
		opts = append(opts, WithSampleCount(*p.SampleCount))
	}
	if p.Cull != nil {
		opts = append(opts, WithCullMode(*p.Cull))
	}
	if p.FrontCCW != nil {
		opts = append(opts, WithFrontCounterClockwise(*p.FrontCCW))
	}
	if p.DepthBias != nil || p.SlopeScaledDepthBias != nil {
		var bias int32
		var slope float32
		if p.DepthBias != nil {
			bias = *p.DepthBias
		}
		if p.SlopeScaledDepthBias != nil {
			slope = *p.SlopeScaledDepthBias
		}
		opts = append(opts, WithDepthBias(bias, slope))
	}
	if p.Fill != nil {
		fill := *p.Fill
		opts = append(opts, graphicsOption(func(g *GraphicsDesc) {
			g.Rasterizer.Fill = fill
		}))
	}
	return opts, nil
}
