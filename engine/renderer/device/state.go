package device

import (
	"fmt"
	"strings"
)

// Blend is a blend factor.
type Blend int

const (
	BlendZero Blend = iota
	BlendOne
	BlendSrcColor
	BlendInvSrcColor
	BlendSrcAlpha
	BlendInvSrcAlpha
	BlendDestColor
	BlendInvDestColor
	BlendDestAlpha
	BlendInvDestAlpha
	BlendSrcAlphaSat
	BlendFactor
	BlendInvBlendFactor
)

var blendNames = map[Blend]string{
	BlendZero:           "zero",
	BlendOne:            "one",
	BlendSrcColor:       "src_color",
	BlendInvSrcColor:    "inv_src_color",
	BlendSrcAlpha:       "src_alpha",
	BlendInvSrcAlpha:    "inv_src_alpha",
	BlendDestColor:      "dest_color",
	BlendInvDestColor:   "inv_dest_color",
	BlendDestAlpha:      "dest_alpha",
	BlendInvDestAlpha:   "inv_dest_alpha",
	BlendSrcAlphaSat:    "src_alpha_sat",
	BlendFactor:         "blend_factor",
	BlendInvBlendFactor: "inv_blend_factor",
}

func (b Blend) String() string { return enumName(blendNames, b) }

func (b *Blend) UnmarshalText(text []byte) error { return parseEnum(blendNames, "blend", text, b) }

// BlendOp combines the weighted source and destination.
type BlendOp int

const (
	BlendOpAdd BlendOp = iota
	BlendOpSubtract
	BlendOpRevSubtract
	BlendOpMin
	BlendOpMax
)

var blendOpNames = map[BlendOp]string{
	BlendOpAdd:         "add",
	BlendOpSubtract:    "subtract",
	BlendOpRevSubtract: "rev_subtract",
	BlendOpMin:         "min",
	BlendOpMax:         "max",
}

func (o BlendOp) String() string { return enumName(blendOpNames, o) }

func (o *BlendOp) UnmarshalText(text []byte) error {
	return parseEnum(blendOpNames, "blend op", text, o)
}

// Color write mask bits.
const (
	ColorWriteRed uint8 = 1 << iota
	ColorWriteGreen
	ColorWriteBlue
	ColorWriteAlpha

	ColorWriteAll = ColorWriteRed | ColorWriteGreen | ColorWriteBlue | ColorWriteAlpha
)

// BlendDesc is the blend state of one render target.
type BlendDesc struct {
	Enable    bool    `toml:"enable"`
	SrcColor  Blend   `toml:"src_color"`
	DstColor  Blend   `toml:"dst_color"`
	ColorOp   BlendOp `toml:"color_op"`
	SrcAlpha  Blend   `toml:"src_alpha"`
	DstAlpha  Blend   `toml:"dst_alpha"`
	AlphaOp   BlendOp `toml:"alpha_op"`
	WriteMask uint8   `toml:"write_mask"`
}

// DefaultBlendDesc returns opaque blending that writes every channel.
func DefaultBlendDesc() BlendDesc {
	return BlendDesc{
		SrcColor:  BlendOne,
		DstColor:  BlendZero,
		ColorOp:   BlendOpAdd,
		SrcAlpha:  BlendOne,
		DstAlpha:  BlendZero,
		AlphaOp:   BlendOpAdd,
		WriteMask: ColorWriteAll,
	}
}

// ComparisonFunc is a depth or stencil test.
type ComparisonFunc int

const (
	ComparisonNever ComparisonFunc = iota
	ComparisonLess
	ComparisonEqual
	ComparisonLessEqual
	ComparisonGreater
	ComparisonNotEqual
	ComparisonGreaterEqual
	ComparisonAlways
)

var comparisonNames = map[ComparisonFunc]string{
	ComparisonNever:        "never",
	ComparisonLess:         "less",
	ComparisonEqual:        "equal",
	ComparisonLessEqual:    "less_equal",
	ComparisonGreater:      "greater",
	ComparisonNotEqual:     "not_equal",
	ComparisonGreaterEqual: "greater_equal",
	ComparisonAlways:       "always",
}

func (c ComparisonFunc) String() string { return enumName(comparisonNames, c) }

func (c *ComparisonFunc) UnmarshalText(text []byte) error {
	return parseEnum(comparisonNames, "comparison", text, c)
}

// StencilOp is the stencil buffer update for one test outcome.
type StencilOp int

const (
	StencilOpKeep StencilOp = iota
	StencilOpZero
	StencilOpReplace
	StencilOpIncrSat
	StencilOpDecrSat
	StencilOpInvert
	StencilOpIncr
	StencilOpDecr
)

var stencilOpNames = map[StencilOp]string{
	StencilOpKeep:    "keep",
	StencilOpZero:    "zero",
	StencilOpReplace: "replace",
	StencilOpIncrSat: "incr_sat",
	StencilOpDecrSat: "decr_sat",
	StencilOpInvert:  "invert",
	StencilOpIncr:    "incr",
	StencilOpDecr:    "decr",
}

func (o StencilOp) String() string { return enumName(stencilOpNames, o) }

func (o *StencilOp) UnmarshalText(text []byte) error {
	return parseEnum(stencilOpNames, "stencil op", text, o)
}

// StencilOpDesc is the stencil behaviour for one face.
type StencilOpDesc struct {
	FailOp      StencilOp      `toml:"fail_op"`
	DepthFailOp StencilOp      `toml:"depth_fail_op"`
	PassOp      StencilOp      `toml:"pass_op"`
	Func        ComparisonFunc `toml:"func"`
}

// DepthStencilDesc is the depth/stencil test state.
type DepthStencilDesc struct {
	DepthEnable      bool           `toml:"depth_enable"`
	DepthWrite       bool           `toml:"depth_write"`
	DepthFunc        ComparisonFunc `toml:"depth_func"`
	StencilEnable    bool           `toml:"stencil_enable"`
	StencilReadMask  uint8          `toml:"stencil_read_mask"`
	StencilWriteMask uint8          `toml:"stencil_write_mask"`
	Front            StencilOpDesc  `toml:"front"`
	Back             StencilOpDesc  `toml:"back"`
}

// DefaultDepthStencilDesc returns a less-than depth test with writes on and stencil off.
func DefaultDepthStencilDesc() DepthStencilDesc {
	face := StencilOpDesc{
		FailOp:      StencilOpKeep,
		DepthFailOp: StencilOpKeep,
		PassOp:      StencilOpKeep,
		Func:        ComparisonAlways,
	}
	return DepthStencilDesc{
		DepthEnable:      true,
		DepthWrite:       true,
		DepthFunc:        ComparisonLess,
		StencilReadMask:  0xFF,
		StencilWriteMask: 0xFF,
		Front:            face,
		Back:             face,
	}
}

// FillMode selects solid or wireframe rasterization.
type FillMode int

const (
	FillSolid FillMode = iota
	FillWireframe
)

var fillModeNames = map[FillMode]string{
	FillSolid:     "solid",
	FillWireframe: "wireframe",
}

func (f FillMode) String() string { return enumName(fillModeNames, f) }

func (f *FillMode) UnmarshalText(text []byte) error {
	return parseEnum(fillModeNames, "fill mode", text, f)
}

// CullMode selects which triangle faces are discarded.
type CullMode int

const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

var cullModeNames = map[CullMode]string{
	CullNone:  "none",
	CullFront: "front",
	CullBack:  "back",
}

func (c CullMode) String() string { return enumName(cullModeNames, c) }

func (c *CullMode) UnmarshalText(text []byte) error {
	return parseEnum(cullModeNames, "cull mode", text, c)
}

// RasterizerDesc is the rasterizer state.
type RasterizerDesc struct {
	Fill                  FillMode `toml:"fill"`
	Cull                  CullMode `toml:"cull"`
	FrontCounterClockwise bool     `toml:"front_ccw"`
	DepthBias             int32    `toml:"depth_bias"`
	DepthBiasClamp        float32  `toml:"depth_bias_clamp"`
	SlopeScaledDepthBias  float32  `toml:"slope_scaled_depth_bias"`
	DepthClip             bool     `toml:"depth_clip"`
}

// DefaultRasterizerDesc returns solid, back-face culled, clockwise-front rasterization with depth clipping.
func DefaultRasterizerDesc() RasterizerDesc {
	return RasterizerDesc{
		Fill:      FillSolid,
		Cull:      CullBack,
		DepthClip: true,
	}
}

// Topology is the primitive topology.
type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyLineStrip
	TopologyPointList
)

var topologyNames = map[Topology]string{
	TopologyTriangleList:  "triangle_list",
	TopologyTriangleStrip: "triangle_strip",
	TopologyLineList:      "line_list",
	TopologyLineStrip:     "line_strip",
	TopologyPointList:     "point_list",
}

func (t Topology) String() string { return enumName(topologyNames, t) }

func (t *Topology) UnmarshalText(text []byte) error {
	return parseEnum(topologyNames, "topology", text, t)
}

func enumName[T ~int](names map[T]string, v T) string {
	if n, ok := names[v]; ok {
		return n
	}
	return fmt.Sprintf("%T(%d)", v, int(v))
}

func parseEnum[T ~int](names map[T]string, kind string, text []byte, out *T) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for v, n := range names {
		if n == s {
			*out = v
			return nil
		}
	}
	return fmt.Errorf("device: unknown %s %q", kind, string(text))
}
