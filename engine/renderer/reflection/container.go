package reflection

import (
	"encoding/binary"
	"fmt"
)

// FourCC identifies a part inside a DXBC container. The four characters are packed
// little-endian, so "DXIL" is 'D' | 'X'<<8 | 'I'<<16 | 'L'<<24.
type FourCC uint32

// MakeFourCC packs a four character tag.
func MakeFourCC(tag string) FourCC {
	if len(tag) != 4 {
		panic(fmt.Sprintf("reflection: fourcc %q must be exactly 4 characters", tag))
	}
	return FourCC(uint32(tag[0]) | uint32(tag[1])<<8 | uint32(tag[2])<<16 | uint32(tag[3])<<24)
}

func (f FourCC) String() string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

var (
	// FourCCDXIL is the DXIL program part.
	FourCCDXIL = MakeFourCC("DXIL")
	// FourCCRTS0 is the serialized root signature part.
	FourCCRTS0 = MakeFourCC("RTS0")
	// FourCCISG1 is the extended input signature part written by SM6 compilers.
	FourCCISG1 = MakeFourCC("ISG1")
	// FourCCISGN is the legacy input signature part.
	FourCCISGN = MakeFourCC("ISGN")
	// FourCCOSG1 is the extended output signature part.
	FourCCOSG1 = MakeFourCC("OSG1")
	// FourCCPSV0 is the pipeline state validation part.
	FourCCPSV0 = MakeFourCC("PSV0")
	// FourCCSPRV is a private part carrying SPIR-V for the same program, used by non-D3D devices.
	FourCCSPRV = MakeFourCC("SPRV")
)

const (
	containerHeaderSize = 32
	partHeaderSize      = 8
)

var dxbcMagic = MakeFourCC("DXBC")

// Part is one named blob inside a container.
type Part struct {
	FourCC FourCC
	Data   []byte
}

// Container is a parsed DXBC container. Parts keep their on-disk order.
type Container struct {
	Digest [16]byte
	Major  uint16
	Minor  uint16
	Parts  []Part
}

// ParseContainer parses a DXBC container. The part data slices alias the input buffer.
//
// Parameters:
//   - data: the raw container bytes as produced by the shader compiler
//
// Returns:
//   - *Container: the parsed container
//   - error: a reflection error if the header or part table is malformed
func ParseContainer(data []byte) (*Container, error) {
	if len(data) < containerHeaderSize {
		return nil, newError("parse container", fmt.Sprintf("%d bytes is too small for a container header", len(data)))
	}
	le := binary.LittleEndian
	if FourCC(le.Uint32(data[0:4])) != dxbcMagic {
		return nil, newError("parse container", "missing DXBC magic")
	}
	c := &Container{
		Major: le.Uint16(data[20:22]),
		Minor: le.Uint16(data[22:24]),
	}
	copy(c.Digest[:], data[4:20])

	total := le.Uint32(data[24:28])
	if int(total) != len(data) {
		return nil, newError("parse container", fmt.Sprintf("header size %d does not match buffer size %d", total, len(data)))
	}
	count := le.Uint32(data[28:32])
	tableEnd := containerHeaderSize + int(count)*4
	if tableEnd > len(data) {
		return nil, newError("parse container", fmt.Sprintf("part table for %d parts overruns buffer", count))
	}

	c.Parts = make([]Part, 0, count)
	for i := 0; i < int(count); i++ {
		off := int(le.Uint32(data[containerHeaderSize+i*4:]))
		if off < tableEnd || off+partHeaderSize > len(data) {
			return nil, newError("parse container", fmt.Sprintf("part %d offset %d out of range", i, off))
		}
		fourcc := FourCC(le.Uint32(data[off:]))
		size := int(le.Uint32(data[off+4:]))
		start := off + partHeaderSize
		if start+size > len(data) {
			return nil, newError("parse container", fmt.Sprintf("part %s size %d overruns buffer", fourcc, size))
		}
		c.Parts = append(c.Parts, Part{FourCC: fourcc, Data: data[start : start+size]})
	}
	return c, nil
}

// Part returns the data of the first part with the given tag.
func (c *Container) Part(fourcc FourCC) ([]byte, bool) {
	for _, p := range c.Parts {
		if p.FourCC == fourcc {
			return p.Data, true
		}
	}
	return nil, false
}

// SetPart replaces the first part with the given tag, or appends a new one.
func (c *Container) SetPart(fourcc FourCC, data []byte) {
	for i := range c.Parts {
		if c.Parts[i].FourCC == fourcc {
			c.Parts[i].Data = data
			return
		}
	}
	c.Parts = append(c.Parts, Part{FourCC: fourcc, Data: data})
}

// Bytes serializes the container. The digest is written as stored; callers that
// change parts of a signed container are responsible for re-signing it.
func (c *Container) Bytes() []byte {
	size := containerHeaderSize + len(c.Parts)*4
	for _, p := range c.Parts {
		size += partHeaderSize + len(p.Data)
	}

	le := binary.LittleEndian
	out := make([]byte, size)
	le.PutUint32(out[0:], uint32(dxbcMagic))
	copy(out[4:20], c.Digest[:])
	major := c.Major
	if major == 0 {
		major = 1
	}
	le.PutUint16(out[20:], major)
	le.PutUint16(out[22:], c.Minor)
	le.PutUint32(out[24:], uint32(size))
	le.PutUint32(out[28:], uint32(len(c.Parts)))

	off := containerHeaderSize + len(c.Parts)*4
	for i, p := range c.Parts {
		le.PutUint32(out[containerHeaderSize+i*4:], uint32(off))
		le.PutUint32(out[off:], uint32(p.FourCC))
		le.PutUint32(out[off+4:], uint32(len(p.Data)))
		copy(out[off+partHeaderSize:], p.Data)
		off += partHeaderSize + len(p.Data)
	}
	return out
}
