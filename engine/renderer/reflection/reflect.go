// Package reflection reads the metadata a shader compiler embeds in DXBC containers:
// the serialized root signature (RTS0) and the input signature (ISG1 or ISGN), from
// which vertex input layouts are derived.
package reflection

// Shader is the reflected view of one compiled shader.
type Shader struct {
	Container *Container

	// RootSignatureBlob is the raw RTS0 payload, nil when the shader embeds no root signature.
	RootSignatureBlob []byte
	RootSignature     *RootSignatureDesc

	// Inputs is the input signature, nil when the container has neither ISG1 nor ISGN.
	Inputs []SignatureElement
}

// Reflect parses a compiled shader container and decodes the parts this package understands.
// Missing optional parts are not an error; use RequireRootSignature or InputLayout to demand them.
//
// Parameters:
//   - bytecode: the compiled shader
//
// Returns:
//   - *Shader: the reflected metadata
//   - error: a reflection error if the container or one of its known parts is malformed
func Reflect(bytecode []byte) (*Shader, error) {
	c, err := ParseContainer(bytecode)
	if err != nil {
		return nil, err
	}
	s := &Shader{Container: c}

	if blob, ok := c.Part(FourCCRTS0); ok {
		desc, err := ParseRootSignature(blob)
		if err != nil {
			return nil, err
		}
		s.RootSignatureBlob = blob
		s.RootSignature = desc
	}

	if part, ok := c.Part(FourCCISG1); ok {
		if s.Inputs, err = ParseSignature(part, true); err != nil {
			return nil, err
		}
	} else if part, ok := c.Part(FourCCISGN); ok {
		if s.Inputs, err = ParseSignature(part, false); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// RequireRootSignature returns the embedded root signature or a reflection error when there is none.
func (s *Shader) RequireRootSignature() ([]byte, *RootSignatureDesc, error) {
	if s.RootSignature == nil {
		return nil, nil, newError("root signature", "bytecode has no RTS0 part")
	}
	return s.RootSignatureBlob, s.RootSignature, nil
}

// InputLayout derives the vertex input layout from the input signature.
func (s *Shader) InputLayout() ([]InputElement, error) {
	if s.Inputs == nil {
		return nil, newError("input layout", "bytecode has no input signature")
	}
	return InputLayoutFromSignature(s.Inputs)
}

// SPIRV returns the words of the private SPRV part, if present.
func (s *Shader) SPIRV() ([]uint32, bool) {
	part, ok := s.Container.Part(FourCCSPRV)
	if !ok || len(part)%4 != 0 {
		return nil, false
	}
	words := make([]uint32, len(part)/4)
	for i := range words {
		words[i] = uint32(part[i*4]) | uint32(part[i*4+1])<<8 | uint32(part[i*4+2])<<16 | uint32(part[i*4+3])<<24
	}
	return words, true
}
