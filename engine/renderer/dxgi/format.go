// Package dxgi holds the subset of DXGI_FORMAT values the pipeline layer uses for
// vertex input elements, render targets and depth buffers.
package dxgi

import "fmt"

// Format mirrors DXGI_FORMAT. The numeric values match the native enum so that
// descriptors can be logged and compared against native tooling output.
type Format uint32

const (
	FormatUnknown           Format = 0
	FormatR32G32B32A32Float Format = 2
	FormatR32G32B32A32Uint  Format = 3
	FormatR32G32B32A32Sint  Format = 4
	FormatR32G32B32Float    Format = 6
	FormatR32G32B32Uint     Format = 7
	FormatR32G32B32Sint     Format = 8
	FormatR16G16B16A16Float Format = 10
	FormatR16G16B16A16Unorm Format = 11
	FormatR32G32Float       Format = 16
	FormatR32G32Uint        Format = 17
	FormatR32G32Sint        Format = 18
	FormatD32FloatS8X24Uint Format = 20
	FormatR10G10B10A2Unorm  Format = 24
	FormatR11G11B10Float    Format = 26
	FormatR8G8B8A8Unorm     Format = 28
	FormatR8G8B8A8UnormSRGB Format = 29
	FormatR16G16Float       Format = 34
	FormatD32Float          Format = 40
	FormatR32Float          Format = 41
	FormatR32Uint           Format = 42
	FormatR32Sint           Format = 43
	FormatD24UnormS8Uint    Format = 45
	FormatR8G8Unorm         Format = 49
	FormatR16Float          Format = 54
	FormatD16Unorm          Format = 55
	FormatR8Unorm           Format = 61
	FormatB8G8R8A8Unorm     Format = 87
	FormatB8G8R8A8UnormSRGB Format = 91
)

var formatNames = map[Format]string{
	FormatUnknown:           "UNKNOWN",
	FormatR32G32B32A32Float: "R32G32B32A32_FLOAT",
	FormatR32G32B32A32Uint:  "R32G32B32A32_UINT",
	FormatR32G32B32A32Sint:  "R32G32B32A32_SINT",
	FormatR32G32B32Float:    "R32G32B32_FLOAT",
	FormatR32G32B32Uint:     "R32G32B32_UINT",
	FormatR32G32B32Sint:     "R32G32B32_SINT",
	FormatR16G16B16A16Float: "R16G16B16A16_FLOAT",
	FormatR16G16B16A16Unorm: "R16G16B16A16_UNORM",
	FormatR32G32Float:       "R32G32_FLOAT",
	FormatR32G32Uint:        "R32G32_UINT",
	FormatR32G32Sint:        "R32G32_SINT",
	FormatD32FloatS8X24Uint: "D32_FLOAT_S8X24_UINT",
	FormatR10G10B10A2Unorm:  "R10G10B10A2_UNORM",
	FormatR11G11B10Float:    "R11G11B10_FLOAT",
	FormatR8G8B8A8Unorm:     "R8G8B8A8_UNORM",
	FormatR8G8B8A8UnormSRGB: "R8G8B8A8_UNORM_SRGB",
	FormatR16G16Float:       "R16G16_FLOAT",
	FormatD32Float:          "D32_FLOAT",
	FormatR32Float:          "R32_FLOAT",
	FormatR32Uint:           "R32_UINT",
	FormatR32Sint:           "R32_SINT",
	FormatD24UnormS8Uint:    "D24_UNORM_S8_UINT",
	FormatR8G8Unorm:         "R8G8_UNORM",
	FormatR16Float:          "R16_FLOAT",
	FormatD16Unorm:          "D16_UNORM",
	FormatR8Unorm:           "R8_UNORM",
	FormatB8G8R8A8Unorm:     "B8G8R8A8_UNORM",
	FormatB8G8R8A8UnormSRGB: "B8G8R8A8_UNORM_SRGB",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("DXGI_FORMAT(%d)", uint32(f))
}

// ParseFormat resolves a format from its DXGI name without the DXGI_FORMAT_ prefix,
// e.g. "R8G8B8A8_UNORM".
//
// Parameters:
//   - name: the format name
//
// Returns:
//   - Format: the matching format
//   - error: an error if the name is not a known format
func ParseFormat(name string) (Format, error) {
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("dxgi: unknown format %q", name)
}

// IsDepth reports whether the format is a depth or depth-stencil format.
func (f Format) IsDepth() bool {
	switch f {
	case FormatD32Float, FormatD24UnormS8Uint, FormatD32FloatS8X24Uint, FormatD16Unorm:
		return true
	}
	return false
}

// Size returns the size in bytes of one element of the format, or 0 for block or unknown formats.
func (f Format) Size() uint32 {
	switch f {
	case FormatR32G32B32A32Float, FormatR32G32B32A32Uint, FormatR32G32B32A32Sint:
		return 16
	case FormatR32G32B32Float, FormatR32G32B32Uint, FormatR32G32B32Sint:
		return 12
	case FormatR32G32Float, FormatR32G32Uint, FormatR32G32Sint, FormatR16G16B16A16Float,
		FormatR16G16B16A16Unorm, FormatD32FloatS8X24Uint:
		return 8
	case FormatR32Float, FormatR32Uint, FormatR32Sint, FormatR8G8B8A8Unorm, FormatR8G8B8A8UnormSRGB,
		FormatB8G8R8A8Unorm, FormatB8G8R8A8UnormSRGB, FormatR10G10B10A2Unorm, FormatR11G11B10Float,
		FormatR16G16Float, FormatD32Float, FormatD24UnormS8Uint:
		return 4
	case FormatR8G8Unorm, FormatR16Float, FormatD16Unorm:
		return 2
	case FormatR8Unorm:
		return 1
	}
	return 0
}
