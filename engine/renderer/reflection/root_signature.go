package reflection

import (
	"encoding/binary"
	"fmt"
	"math"
)

// RootSignatureVersion mirrors D3D_ROOT_SIGNATURE_VERSION.
type RootSignatureVersion uint32

const (
	RootSignatureVersion1_0 RootSignatureVersion = 1
	RootSignatureVersion1_1 RootSignatureVersion = 2
)

// RootParameterType mirrors D3D12_ROOT_PARAMETER_TYPE.
type RootParameterType uint32

const (
	RootParameterDescriptorTable RootParameterType = iota
	RootParameterConstants
	RootParameterCBV
	RootParameterSRV
	RootParameterUAV
)

func (t RootParameterType) String() string {
	switch t {
	case RootParameterDescriptorTable:
		return "DescriptorTable"
	case RootParameterConstants:
		return "RootConstants"
	case RootParameterCBV:
		return "CBV"
	case RootParameterSRV:
		return "SRV"
	case RootParameterUAV:
		return "UAV"
	}
	return fmt.Sprintf("RootParameterType(%d)", uint32(t))
}

// ShaderVisibility mirrors D3D12_SHADER_VISIBILITY.
type ShaderVisibility uint32

const (
	ShaderVisibilityAll ShaderVisibility = iota
	ShaderVisibilityVertex
	ShaderVisibilityHull
	ShaderVisibilityDomain
	ShaderVisibilityGeometry
	ShaderVisibilityPixel
	ShaderVisibilityAmplification
	ShaderVisibilityMesh
)

// DescriptorRangeType mirrors D3D12_DESCRIPTOR_RANGE_TYPE.
type DescriptorRangeType uint32

const (
	DescriptorRangeSRV DescriptorRangeType = iota
	DescriptorRangeUAV
	DescriptorRangeCBV
	DescriptorRangeSampler
)

// DescriptorRange is one range of a descriptor table.
type DescriptorRange struct {
	Type               DescriptorRangeType
	NumDescriptors     uint32
	BaseShaderRegister uint32
	RegisterSpace      uint32
	// Flags is only serialized for version 1.1.
	Flags                             uint32
	OffsetInDescriptorsFromTableStart uint32
}

// RootConstants describes inline 32-bit constants.
type RootConstants struct {
	ShaderRegister uint32
	RegisterSpace  uint32
	Num32BitValues uint32
}

// RootDescriptor describes an inline CBV, SRV or UAV.
type RootDescriptor struct {
	ShaderRegister uint32
	RegisterSpace  uint32
	// Flags is only serialized for version 1.1.
	Flags uint32
}

// RootParameter is a tagged union keyed on Type: Ranges for descriptor tables,
// Constants for root constants and Descriptor for the inline descriptor kinds.
type RootParameter struct {
	Type       RootParameterType
	Visibility ShaderVisibility
	Ranges     []DescriptorRange
	Constants  RootConstants
	Descriptor RootDescriptor
}

// StaticSampler mirrors D3D12_STATIC_SAMPLER_DESC.
type StaticSampler struct {
	Filter           uint32
	AddressU         uint32
	AddressV         uint32
	AddressW         uint32
	MipLODBias       float32
	MaxAnisotropy    uint32
	ComparisonFunc   uint32
	BorderColor      uint32
	MinLOD           float32
	MaxLOD           float32
	ShaderRegister   uint32
	RegisterSpace    uint32
	ShaderVisibility ShaderVisibility
}

// RootSignatureDesc is the decoded form of an RTS0 part.
type RootSignatureDesc struct {
	Version        RootSignatureVersion
	Parameters     []RootParameter
	StaticSamplers []StaticSampler
	Flags          uint32
}

const (
	rootHeaderSize       = 24
	rootParamHeaderSize  = 12
	staticSamplerSize    = 52
	rangeSize1_0         = 20
	rangeSize1_1         = 24
	rootTablePayloadSize = 8
)

type rtsReader struct {
	data []byte
}

func (r rtsReader) u32(off int) (uint32, error) {
	if off < 0 || off+4 > len(r.data) {
		return 0, newError("parse root signature", fmt.Sprintf("read at offset %d overruns %d byte blob", off, len(r.data)))
	}
	return binary.LittleEndian.Uint32(r.data[off:]), nil
}

// span checks that count records of size bytes starting at off lie inside the blob.
func (r rtsReader) span(what string, off, count, size int) error {
	if count == 0 {
		return nil
	}
	if off < 0 || count < 0 || count > (len(r.data)-off)/size {
		return newError("parse root signature", fmt.Sprintf("%d %s at offset %d overrun %d byte blob", count, what, off, len(r.data)))
	}
	return nil
}

// words reads n consecutive uint32 values starting at off.
func (r rtsReader) words(off, n int) ([]uint32, error) {
	out := make([]uint32, n)
	for i := range out {
		v, err := r.u32(off + i*4)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ParseRootSignature decodes a serialized root signature, the payload of an RTS0 part.
// Versions 1.0 and 1.1 are supported.
//
// Parameters:
//   - data: the serialized root signature
//
// Returns:
//   - *RootSignatureDesc: the decoded description
//   - error: a reflection error if the blob is truncated or uses an unknown version or parameter type
func ParseRootSignature(data []byte) (*RootSignatureDesc, error) {
	r := rtsReader{data: data}
	hdr, err := r.words(0, 6)
	if err != nil {
		return nil, err
	}
	desc := &RootSignatureDesc{
		Version: RootSignatureVersion(hdr[0]),
		Flags:   hdr[5],
	}
	if desc.Version != RootSignatureVersion1_0 && desc.Version != RootSignatureVersion1_1 {
		return nil, newError("parse root signature", fmt.Sprintf("unsupported version %d", hdr[0]))
	}
	v11 := desc.Version == RootSignatureVersion1_1
	numParams, paramsOff := int(hdr[1]), int(hdr[2])
	numSamplers, samplersOff := int(hdr[3]), int(hdr[4])

	if err := r.span("parameters", paramsOff, numParams, rootParamHeaderSize); err != nil {
		return nil, err
	}
	if err := r.span("static samplers", samplersOff, numSamplers, staticSamplerSize); err != nil {
		return nil, err
	}

	desc.Parameters = make([]RootParameter, 0, numParams)
	for i := 0; i < numParams; i++ {
		ph, err := r.words(paramsOff+i*rootParamHeaderSize, 3)
		if err != nil {
			return nil, err
		}
		p := RootParameter{Type: RootParameterType(ph[0]), Visibility: ShaderVisibility(ph[1])}
		payload := int(ph[2])
		switch p.Type {
		case RootParameterDescriptorTable:
			th, err := r.words(payload, 2)
			if err != nil {
				return nil, err
			}
			stride := rangeSize1_0
			if v11 {
				stride = rangeSize1_1
			}
			numRanges, rangesOff := int(th[0]), int(th[1])
			if err := r.span("descriptor ranges", rangesOff, numRanges, stride); err != nil {
				return nil, err
			}
			p.Ranges = make([]DescriptorRange, 0, numRanges)
			for j := 0; j < numRanges; j++ {
				w, err := r.words(rangesOff+j*stride, stride/4)
				if err != nil {
					return nil, err
				}
				dr := DescriptorRange{
					Type:               DescriptorRangeType(w[0]),
					NumDescriptors:     w[1],
					BaseShaderRegister: w[2],
					RegisterSpace:      w[3],
				}
				if v11 {
					dr.Flags = w[4]
					dr.OffsetInDescriptorsFromTableStart = w[5]
				} else {
					dr.OffsetInDescriptorsFromTableStart = w[4]
				}
				p.Ranges = append(p.Ranges, dr)
			}
		case RootParameterConstants:
			w, err := r.words(payload, 3)
			if err != nil {
				return nil, err
			}
			p.Constants = RootConstants{ShaderRegister: w[0], RegisterSpace: w[1], Num32BitValues: w[2]}
		case RootParameterCBV, RootParameterSRV, RootParameterUAV:
			n := 2
			if v11 {
				n = 3
			}
			w, err := r.words(payload, n)
			if err != nil {
				return nil, err
			}
			p.Descriptor = RootDescriptor{ShaderRegister: w[0], RegisterSpace: w[1]}
			if v11 {
				p.Descriptor.Flags = w[2]
			}
		default:
			return nil, newError("parse root signature", fmt.Sprintf("parameter %d has unknown type %d", i, ph[0]))
		}
		desc.Parameters = append(desc.Parameters, p)
	}

	desc.StaticSamplers = make([]StaticSampler, 0, numSamplers)
	for i := 0; i < numSamplers; i++ {
		w, err := r.words(samplersOff+i*staticSamplerSize, staticSamplerSize/4)
		if err != nil {
			return nil, err
		}
		desc.StaticSamplers = append(desc.StaticSamplers, StaticSampler{
			Filter:           w[0],
			AddressU:         w[1],
			AddressV:         w[2],
			AddressW:         w[3],
			MipLODBias:       math.Float32frombits(w[4]),
			MaxAnisotropy:    w[5],
			ComparisonFunc:   w[6],
			BorderColor:      w[7],
			MinLOD:           math.Float32frombits(w[8]),
			MaxLOD:           math.Float32frombits(w[9]),
			ShaderRegister:   w[10],
			RegisterSpace:    w[11],
			ShaderVisibility: ShaderVisibility(w[12]),
		})
	}
	return desc, nil
}

// Encode serializes the description into RTS0 payload bytes. The layout is the header,
// the parameter headers, the parameter payloads, every descriptor range and finally the
// static samplers, so equal descriptions always encode to equal bytes.
func (d *RootSignatureDesc) Encode() []byte {
	version := d.Version
	if version == 0 {
		version = RootSignatureVersion1_1
	}
	v11 := version == RootSignatureVersion1_1
	rangeStride := rangeSize1_0
	descriptorSize := 8
	if v11 {
		rangeStride = rangeSize1_1
		descriptorSize = 12
	}

	paramsOff := rootHeaderSize
	payloadOff := paramsOff + len(d.Parameters)*rootParamHeaderSize
	payloadOffsets := make([]int, len(d.Parameters))
	off := payloadOff
	for i, p := range d.Parameters {
		payloadOffsets[i] = off
		switch p.Type {
		case RootParameterDescriptorTable:
			off += rootTablePayloadSize
		case RootParameterConstants:
			off += 12
		default:
			off += descriptorSize
		}
	}
	rangeOffsets := make([]int, len(d.Parameters))
	for i, p := range d.Parameters {
		if p.Type == RootParameterDescriptorTable {
			rangeOffsets[i] = off
			off += len(p.Ranges) * rangeStride
		}
	}
	samplersOff := off
	off += len(d.StaticSamplers) * staticSamplerSize

	out := make([]byte, off)
	put := func(at int, vals ...uint32) {
		for i, v := range vals {
			binary.LittleEndian.PutUint32(out[at+i*4:], v)
		}
	}

	put(0, uint32(version), uint32(len(d.Parameters)), uint32(paramsOff),
		uint32(len(d.StaticSamplers)), uint32(samplersOff), d.Flags)
	for i, p := range d.Parameters {
		put(paramsOff+i*rootParamHeaderSize, uint32(p.Type), uint32(p.Visibility), uint32(payloadOffsets[i]))
		switch p.Type {
		case RootParameterDescriptorTable:
			put(payloadOffsets[i], uint32(len(p.Ranges)), uint32(rangeOffsets[i]))
			for j, dr := range p.Ranges {
				at := rangeOffsets[i] + j*rangeStride
				if v11 {
					put(at, uint32(dr.Type), dr.NumDescriptors, dr.BaseShaderRegister, dr.RegisterSpace, dr.Flags, dr.OffsetInDescriptorsFromTableStart)
				} else {
					put(at, uint32(dr.Type), dr.NumDescriptors, dr.BaseShaderRegister, dr.RegisterSpace, dr.OffsetInDescriptorsFromTableStart)
				}
			}
		case RootParameterConstants:
			put(payloadOffsets[i], p.Constants.ShaderRegister, p.Constants.RegisterSpace, p.Constants.Num32BitValues)
		default:
			if v11 {
				put(payloadOffsets[i], p.Descriptor.ShaderRegister, p.Descriptor.RegisterSpace, p.Descriptor.Flags)
			} else {
				put(payloadOffsets[i], p.Descriptor.ShaderRegister, p.Descriptor.RegisterSpace)
			}
		}
	}
	for i, s := range d.StaticSamplers {
		put(samplersOff+i*staticSamplerSize,
			s.Filter, s.AddressU, s.AddressV, s.AddressW, math.Float32bits(s.MipLODBias),
			s.MaxAnisotropy, s.ComparisonFunc, s.BorderColor, math.Float32bits(s.MinLOD),
			math.Float32bits(s.MaxLOD), s.ShaderRegister, s.RegisterSpace, uint32(s.ShaderVisibility))
	}
	return out
}
