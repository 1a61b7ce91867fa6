package reflection

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ComponentType is the register component type recorded in a signature element.
type ComponentType uint32

const (
	ComponentTypeUnknown ComponentType = iota
	ComponentTypeUint32
	ComponentTypeSint32
	ComponentTypeFloat32
)

// SystemValue identifies a system-interpreted signature element.
type SystemValue uint32

const (
	SystemValueArbitrary   SystemValue = 0
	SystemValuePosition    SystemValue = 1
	SystemValueVertexID    SystemValue = 6
	SystemValuePrimitiveID SystemValue = 7
	SystemValueInstanceID  SystemValue = 8
	SystemValueIsFrontFace SystemValue = 9
	SystemValueSampleIndex SystemValue = 10
	SystemValueTarget      SystemValue = 64
	SystemValueDepth       SystemValue = 65
)

const (
	signatureHeaderSize = 8
	isg1ElementSize     = 32
	isgnElementSize     = 24
)

// SignatureElement is one row of an input or output signature.
type SignatureElement struct {
	Stream        uint32
	SemanticName  string
	SemanticIndex uint32
	SystemValue   SystemValue
	ComponentType ComponentType
	Register      uint32
	Mask          uint8
	ReadWriteMask uint8
	MinPrecision  uint32
}

// ParseSignature decodes an ISG1/OSG1 (extended) or ISGN/OSGN (legacy) part.
//
// Parameters:
//   - data: the part payload
//   - extended: true for the 32-byte ISG1 element layout, false for the 24-byte ISGN layout
//
// Returns:
//   - []SignatureElement: the elements in declaration order
//   - error: a reflection error if the part is truncated
func ParseSignature(data []byte, extended bool) ([]SignatureElement, error) {
	if len(data) < signatureHeaderSize {
		return nil, newError("parse signature", "part is smaller than its header")
	}
	le := binary.LittleEndian
	count := int(le.Uint32(data[0:]))
	offset := int(le.Uint32(data[4:]))

	stride := isgnElementSize
	if extended {
		stride = isg1ElementSize
	}
	if offset+count*stride > len(data) {
		return nil, newError("parse signature", fmt.Sprintf("%d elements overrun a %d byte part", count, len(data)))
	}

	elements := make([]SignatureElement, 0, count)
	for i := 0; i < count; i++ {
		b := data[offset+i*stride:]
		var e SignatureElement
		if extended {
			e.Stream = le.Uint32(b[0:])
			b = b[4:]
		}
		nameOffset := int(le.Uint32(b[0:]))
		e.SemanticIndex = le.Uint32(b[4:])
		e.SystemValue = SystemValue(le.Uint32(b[8:]))
		e.ComponentType = ComponentType(le.Uint32(b[12:]))
		e.Register = le.Uint32(b[16:])
		e.Mask = b[20]
		e.ReadWriteMask = b[21]
		if extended {
			e.MinPrecision = le.Uint32(b[24:])
		}

		name, err := readCString(data, nameOffset)
		if err != nil {
			return nil, err
		}
		e.SemanticName = name
		elements = append(elements, e)
	}
	return elements, nil
}

func readCString(data []byte, offset int) (string, error) {
	if offset < 0 || offset >= len(data) {
		return "", newError("parse signature", fmt.Sprintf("name offset %d out of range", offset))
	}
	end := bytes.IndexByte(data[offset:], 0)
	if end < 0 {
		return "", newError("parse signature", "unterminated semantic name")
	}
	return string(data[offset : offset+end]), nil
}

// EncodeSignature serializes elements into a signature part. Semantic names are
// de-duplicated in a trailing string table padded to four bytes.
//
// Parameters:
//   - elements: the elements to write
//   - extended: true to produce the ISG1 layout, false for ISGN
//
// Returns:
//   - []byte: the part payload
func EncodeSignature(elements []SignatureElement, extended bool) []byte {
	stride := isgnElementSize
	if extended {
		stride = isg1ElementSize
	}
	tableStart := signatureHeaderSize + len(elements)*stride

	var names bytes.Buffer
	nameOffsets := make(map[string]int)
	for _, e := range elements {
		if _, ok := nameOffsets[e.SemanticName]; ok {
			continue
		}
		nameOffsets[e.SemanticName] = tableStart + names.Len()
		names.WriteString(e.SemanticName)
		names.WriteByte(0)
	}
	for names.Len()%4 != 0 {
		names.WriteByte(0)
	}

	le := binary.LittleEndian
	out := make([]byte, tableStart+names.Len())
	le.PutUint32(out[0:], uint32(len(elements)))
	le.PutUint32(out[4:], signatureHeaderSize)
	for i, e := range elements {
		b := out[signatureHeaderSize+i*stride:]
		if extended {
			le.PutUint32(b[0:], e.Stream)
			b = b[4:]
		}
		le.PutUint32(b[0:], uint32(nameOffsets[e.SemanticName]))
		le.PutUint32(b[4:], e.SemanticIndex)
		le.PutUint32(b[8:], uint32(e.SystemValue))
		le.PutUint32(b[12:], uint32(e.ComponentType))
		le.PutUint32(b[16:], e.Register)
		b[20] = e.Mask
		b[21] = e.ReadWriteMask
		if extended {
			le.PutUint32(b[24:], e.MinPrecision)
		}
	}
	copy(out[tableStart:], names.Bytes())
	return out
}
