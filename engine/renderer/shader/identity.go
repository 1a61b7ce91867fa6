package shader

import (
	"fmt"
	"strconv"
	"strings"
)

// Stage identifies the pipeline stage a shader entry point targets.
type Stage int

const (
	// StageVertex is the vertex shader stage.
	StageVertex Stage = iota

	// StagePixel is the pixel (fragment) shader stage.
	StagePixel

	// StageGeometry is the geometry shader stage.
	StageGeometry

	// StageHull is the hull (tessellation control) shader stage.
	StageHull

	// StageDomain is the domain (tessellation evaluation) shader stage.
	StageDomain

	// StageCompute is the compute shader stage.
	StageCompute

	// StageLibrary is a DXIL library with no single entry point, used for ray tracing and work graphs.
	StageLibrary
)

var stageNames = [...]string{"vertex", "pixel", "geometry", "hull", "domain", "compute", "library"}
var stageProfiles = [...]string{"vs", "ps", "gs", "hs", "ds", "cs", "lib"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// ProfilePrefix returns the target profile prefix used by HLSL compilers, e.g. "ps".
func (s Stage) ProfilePrefix() string {
	if s < 0 || int(s) >= len(stageProfiles) {
		return ""
	}
	return stageProfiles[s]
}

// ParseStage resolves a stage from its name ("pixel") or profile prefix ("ps").
//
// Parameters:
//   - name: the stage name or prefix, case-insensitive
//
// Returns:
//   - Stage: the parsed stage
//   - error: an error if the name is not a known stage
func ParseStage(name string) (Stage, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i := range stageNames {
		if n == stageNames[i] || n == stageProfiles[i] {
			return Stage(i), nil
		}
	}
	if n == "fragment" {
		return StagePixel, nil
	}
	return 0, fmt.Errorf("shader: unknown stage %q", name)
}

// ShaderModel is a target shader model version such as 6.6.
type ShaderModel struct {
	Major uint8
	Minor uint8
}

// DefaultShaderModel is used when an identity does not specify a model.
var DefaultShaderModel = ShaderModel{Major: 6, Minor: 6}

func (m ShaderModel) String() string {
	return fmt.Sprintf("%d_%d", m.Major, m.Minor)
}

// IsZero reports whether no model was set.
func (m ShaderModel) IsZero() bool {
	return m.Major == 0 && m.Minor == 0
}

// ParseShaderModel parses "6_6", "6.6" or "sm_6_6".
func ParseShaderModel(s string) (ShaderModel, error) {
	v := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "sm_")
	v = strings.ReplaceAll(v, ".", "_")
	major, minor, ok := strings.Cut(v, "_")
	if !ok {
		return ShaderModel{}, fmt.Errorf("shader: invalid shader model %q", s)
	}
	maj, err := strconv.ParseUint(major, 10, 8)
	if err != nil {
		return ShaderModel{}, fmt.Errorf("shader: invalid shader model %q: %w", s, err)
	}
	mnr, err := strconv.ParseUint(minor, 10, 8)
	if err != nil {
		return ShaderModel{}, fmt.Errorf("shader: invalid shader model %q: %w", s, err)
	}
	return ShaderModel{Major: uint8(maj), Minor: uint8(mnr)}, nil
}

// Profile returns the full compiler target profile for a stage, e.g. "ps_6_6".
func Profile(stage Stage, model ShaderModel) string {
	return stage.ProfilePrefix() + "_" + model.String()
}

// Macro is a preprocessor definition passed to the compiler.
type Macro struct {
	Name  string
	Value string
}

func (m Macro) String() string {
	if m.Value == "" {
		return m.Name
	}
	return m.Name + "=" + m.Value
}

// Identity describes one compilable shader. Identities are immutable after the Table is built.
type Identity struct {
	// ID is the stable key callers use to refer to the shader.
	ID string

	// Source is the source file path relative to the shader root.
	Source string

	// EntryPoint is the function compiled for the stage. Libraries leave it empty.
	EntryPoint string

	Stage Stage
	Model ShaderModel

	// Macros are passed to the compiler in order.
	Macros []Macro
}

// IsLibrary reports whether the identity is a library shader.
func (i Identity) IsLibrary() bool {
	return i.Stage == StageLibrary
}

// Table is the ordered, read-only set of shader identities known to a Cache.
type Table struct {
	identities []Identity
	index      map[string]int
}

// NewTable validates identities and builds a table preserving their order.
//
// Parameters:
//   - identities: the shader identities, ids must be unique
//
// Returns:
//   - *Table: the built table
//   - error: an error naming the first invalid identity
func NewTable(identities ...Identity) (*Table, error) {
	t := &Table{
		identities: make([]Identity, 0, len(identities)),
		index:      make(map[string]int, len(identities)),
	}
	for _, id := range identities {
		if id.ID == "" {
			return nil, fmt.Errorf("shader: identity for %q has an empty id", id.Source)
		}
		if _, dup := t.index[id.ID]; dup {
			return nil, fmt.Errorf("shader: duplicate identity %q", id.ID)
		}
		if id.Source == "" {
			return nil, fmt.Errorf("shader: identity %q has no source", id.ID)
		}
		if id.EntryPoint == "" && !id.IsLibrary() {
			return nil, fmt.Errorf("shader: identity %q has no entry point", id.ID)
		}
		if id.Stage < StageVertex || id.Stage > StageLibrary {
			return nil, fmt.Errorf("shader: identity %q has unknown stage %d", id.ID, id.Stage)
		}
		if id.Model.IsZero() {
			id.Model = DefaultShaderModel
		}
		id.Macros = append([]Macro(nil), id.Macros...)
		t.index[id.ID] = len(t.identities)
		t.identities = append(t.identities, id)
	}
	return t, nil
}

// Lookup returns the identity for id.
func (t *Table) Lookup(id string) (Identity, bool) {
	i, ok := t.index[id]
	if !ok {
		return Identity{}, false
	}
	return t.identities[i], true
}

// Has reports whether id is in the table.
func (t *Table) Has(id string) bool {
	_, ok := t.index[id]
	return ok
}

// Identities returns the identities in table order.
func (t *Table) Identities() []Identity {
	out := make([]Identity, len(t.identities))
	copy(out, t.identities)
	return out
}

// Len returns the number of identities.
func (t *Table) Len() int {
	return len(t.identities)
}

// order returns the table position of id, used to keep multi-shader operations deterministic.
func (t *Table) order(id string) int {
	if i, ok := t.index[id]; ok {
		return i
	}
	return len(t.identities)
}
