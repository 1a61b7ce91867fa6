package shader

import (
	"fmt"
	"os"

	"github.com/Carmen-Shannon/adria-go/common"
	"github.com/pelletier/go-toml/v2"
)

type manifestFile struct {
	Shaders []manifestShader `toml:"shader"`
}

type manifestShader struct {
	ID     string            `toml:"id"`
	Source string            `toml:"source"`
	Entry  string            `toml:"entry"`
	Stage  string            `toml:"stage"`
	Model  string            `toml:"model"`
	Macros []manifestMacro   `toml:"macros"`
	Define map[string]string `toml:"define"`
}

type manifestMacro struct {
	Name  string `toml:"name"`
	Value string `toml:"value"`
}

// ParseManifest builds a Table from a TOML manifest of [[shader]] tables:
//
//	[[shader]]
//	id = "PS_Main"
//	source = "P.hlsl"
//	entry = "main"
//	stage = "pixel"
//	model = "6_6"
//	macros = [{ name = "USE_FOG", value = "1" }]
//
// Macros keep their order. The define table is accepted for unordered definitions and is
// appended after macros in name order.
//
// Parameters:
//   - data: the manifest contents
//
// Returns:
//   - *Table: the identity table in manifest order
//   - error: a decode or validation error
func ParseManifest(data []byte) (*Table, error) {
	var mf manifestFile
	if err := toml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("shader: failed to decode manifest: %w", err)
	}

	identities := make([]Identity, 0, len(mf.Shaders))
	for i, s := range mf.Shaders {
		stage, err := ParseStage(s.Stage)
		if err != nil {
			return nil, fmt.Errorf("shader: manifest entry %d (%s): %w", i, s.ID, err)
		}
		model := DefaultShaderModel
		if s.Model != "" {
			if model, err = ParseShaderModel(s.Model); err != nil {
				return nil, fmt.Errorf("shader: manifest entry %d (%s): %w", i, s.ID, err)
			}
		}
		macros := make([]Macro, 0, len(s.Macros)+len(s.Define))
		for _, m := range s.Macros {
			macros = append(macros, Macro{Name: m.Name, Value: m.Value})
		}
		for _, name := range common.SortedKeys(s.Define) {
			macros = append(macros, Macro{Name: name, Value: s.Define[name]})
		}
		identities = append(identities, Identity{
			ID:         s.ID,
			Source:     s.Source,
			EntryPoint: s.Entry,
			Stage:      stage,
			Model:      model,
			Macros:     macros,
		})
	}
	return NewTable(identities...)
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shader: failed to read manifest %q: %w", path, err)
	}
	return ParseManifest(data)
}
