package reflection

import (
	"fmt"
	"math/bits"

	"github.com/Carmen-Shannon/adria-go/engine/renderer/dxgi"
)

// InputElement describes one vertex attribute of a derived input layout.
type InputElement struct {
	SemanticName      string
	SemanticIndex     uint32
	Format            dxgi.Format
	InputSlot         uint32
	AlignedByteOffset uint32
}

// ComponentCount returns how many components a register mask addresses. The count
// is taken from the highest set bit, so a mask of .xz counts as three components.
func ComponentCount(mask uint8) int {
	return bits.Len8(mask & 0xF)
}

var inputFormats = map[ComponentType][4]dxgi.Format{
	ComponentTypeUint32:  {dxgi.FormatR32Uint, dxgi.FormatR32G32Uint, dxgi.FormatR32G32B32Uint, dxgi.FormatR32G32B32A32Uint},
	ComponentTypeSint32:  {dxgi.FormatR32Sint, dxgi.FormatR32G32Sint, dxgi.FormatR32G32B32Sint, dxgi.FormatR32G32B32A32Sint},
	ComponentTypeFloat32: {dxgi.FormatR32Float, dxgi.FormatR32G32Float, dxgi.FormatR32G32B32Float, dxgi.FormatR32G32B32A32Float},
}

// InputFormat selects the DXGI format for a vertex input element.
//
// Parameters:
//   - componentType: the element's register component type
//   - components: the number of components, 1 through 4
//
// Returns:
//   - dxgi.Format: R32_*, R32G32_*, R32G32B32_* or R32G32B32A32_* with a UINT, SINT or FLOAT suffix
//   - error: a reflection error for unknown component types or counts
func InputFormat(componentType ComponentType, components int) (dxgi.Format, error) {
	formats, ok := inputFormats[componentType]
	if !ok {
		return dxgi.FormatUnknown, newError("input layout", fmt.Sprintf("unsupported component type %d", componentType))
	}
	if components < 1 || components > 4 {
		return dxgi.FormatUnknown, newError("input layout", fmt.Sprintf("unsupported component count %d", components))
	}
	return formats[components-1], nil
}

// InputLayoutFromSignature derives a packed single-slot input layout from a vertex
// shader input signature. System-value inputs are generated by the input assembler
// and are skipped.
//
// Parameters:
//   - elements: the vertex shader's input signature
//
// Returns:
//   - []InputElement: one element per user input, offsets packed in declaration order
//   - error: a reflection error if an element has no components or an unsupported type
func InputLayoutFromSignature(elements []SignatureElement) ([]InputElement, error) {
	layout := make([]InputElement, 0, len(elements))
	var offset uint32
	for _, e := range elements {
		if e.SystemValue != SystemValueArbitrary {
			continue
		}
		format, err := InputFormat(e.ComponentType, ComponentCount(e.Mask))
		if err != nil {
			return nil, fmt.Errorf("semantic %s%d: %w", e.SemanticName, e.SemanticIndex, err)
		}
		layout = append(layout, InputElement{
			SemanticName:      e.SemanticName,
			SemanticIndex:     e.SemanticIndex,
			Format:            format,
			AlignedByteOffset: offset,
		})
		offset += format.Size()
	}
	return layout, nil
}
