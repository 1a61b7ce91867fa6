package shader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage(t *testing.T) {
	tests := []struct {
		in   string
		want Stage
	}{
		{"vertex", StageVertex},
		{"VS", StageVertex},
		{"pixel", StagePixel},
		{"fragment", StagePixel},
		{"ps", StagePixel},
		{"compute", StageCompute},
		{"lib", StageLibrary},
		{" Hull ", StageHull},
	}
	for _, tt := range tests {
		got, err := ParseStage(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseStage("tessellation")
	assert.Error(t, err)
}

func TestShaderModelAndProfile(t *testing.T) {
	for _, in := range []string{"6_6", "6.6", "sm_6_6"} {
		m, err := ParseShaderModel(in)
		require.NoError(t, err, in)
		assert.Equal(t, ShaderModel{Major: 6, Minor: 6}, m)
	}
	_, err := ParseShaderModel("six")
	assert.Error(t, err)

	assert.Equal(t, "ps_6_6", Profile(StagePixel, DefaultShaderModel))
	assert.Equal(t, "lib_6_3", Profile(StageLibrary, ShaderModel{Major: 6, Minor: 3}))
	assert.Equal(t, "cs_6_0", Profile(StageCompute, ShaderModel{Major: 6}))
}

func TestMacroString(t *testing.T) {
	assert.Equal(t, "USE_FOG", Macro{Name: "USE_FOG"}.String())
	assert.Equal(t, "LIGHTS=4", Macro{Name: "LIGHTS", Value: "4"}.String())
}

func TestNewTable(t *testing.T) {
	table, err := NewTable(
		Identity{ID: "VS_Main", Source: "P.hlsl", EntryPoint: "VSMain", Stage: StageVertex},
		Identity{ID: "PS_Main", Source: "P.hlsl", EntryPoint: "PSMain", Stage: StagePixel, Model: ShaderModel{Major: 6, Minor: 5}},
		Identity{ID: "Lib_RT", Source: "RT.hlsl", Stage: StageLibrary},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	vs, ok := table.Lookup("VS_Main")
	require.True(t, ok)
	assert.Equal(t, DefaultShaderModel, vs.Model)

	ps, _ := table.Lookup("PS_Main")
	assert.Equal(t, ShaderModel{Major: 6, Minor: 5}, ps.Model)

	lib, _ := table.Lookup("Lib_RT")
	assert.True(t, lib.IsLibrary())

	ids := make([]string, 0, 3)
	for _, id := range table.Identities() {
		ids = append(ids, id.ID)
	}
	assert.Equal(t, []string{"VS_Main", "PS_Main", "Lib_RT"}, ids)
	assert.Equal(t, 1, table.order("PS_Main"))
	assert.False(t, table.Has("missing"))
}

func TestNewTableRejectsInvalidIdentities(t *testing.T) {
	tests := []struct {
		name string
		ids  []Identity
	}{
		{"empty id", []Identity{{Source: "a.hlsl", EntryPoint: "main"}}},
		{"duplicate", []Identity{
			{ID: "A", Source: "a.hlsl", EntryPoint: "main"},
			{ID: "A", Source: "b.hlsl", EntryPoint: "main"},
		}},
		{"no source", []Identity{{ID: "A", EntryPoint: "main"}}},
		{"no entry point", []Identity{{ID: "A", Source: "a.hlsl", Stage: StagePixel}}},
		{"bad stage", []Identity{{ID: "A", Source: "a.hlsl", EntryPoint: "main", Stage: Stage(42)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.ids...)
			assert.Error(t, err)
		})
	}
}

func TestTableCopiesMacros(t *testing.T) {
	macros := []Macro{{Name: "A", Value: "1"}}
	table, err := NewTable(Identity{ID: "X", Source: "x.hlsl", EntryPoint: "main", Macros: macros})
	require.NoError(t, err)
	macros[0].Value = "2"

	x, _ := table.Lookup("X")
	assert.Equal(t, "1", x.Macros[0].Value)
}

func TestParseManifest(t *testing.T) {
	data := []byte(`
[[shader]]
id = "VS_Main"
source = "P.hlsl"
entry = "VSMain"
stage = "vertex"

[[shader]]
id = "PS_Main"
source = "P.hlsl"
entry = "PSMain"
stage = "pixel"
model = "6_5"
macros = [{ name = "USE_FOG", value = "1" }, { name = "SHADOWS" }]

[shader.define]
ZED = "3"
ALPHA = "1"

[[shader]]
id = "Lib_RT"
source = "RT.hlsl"
stage = "library"
`)
	table, err := ParseManifest(data)
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())

	ps, ok := table.Lookup("PS_Main")
	require.True(t, ok)
	assert.Equal(t, StagePixel, ps.Stage)
	assert.Equal(t, ShaderModel{Major: 6, Minor: 5}, ps.Model)
	assert.Equal(t, []Macro{
		{Name: "USE_FOG", Value: "1"},
		{Name: "SHADOWS"},
		{Name: "ALPHA", Value: "1"},
		{Name: "ZED", Value: "3"},
	}, ps.Macros)

	vs, _ := table.Lookup("VS_Main")
	assert.Equal(t, DefaultShaderModel, vs.Model)
}

func TestParseManifestErrors(t *testing.T) {
	_, err := ParseManifest([]byte(`[[shader]]
id = "A"
source = "a.hlsl"
entry = "main"
stage = "warp"
`))
	assert.ErrorContains(t, err, "unknown stage")

	_, err = ParseManifest([]byte(`not toml = = =`))
	assert.Error(t, err)

	_, err = ParseManifest([]byte(`[[shader]]
id = "A"
source = "a.hlsl"
stage = "pixel"
`))
	assert.ErrorContains(t, err, "no entry point")
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shaders.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[[shader]]
id = "CS_Blur"
source = "Blur.hlsl"
entry = "main"
stage = "cs"
`), 0o644))

	table, err := LoadManifest(path)
	require.NoError(t, err)
	cs, ok := table.Lookup("CS_Blur")
	require.True(t, ok)
	assert.Equal(t, StageCompute, cs.Stage)

	_, err = LoadManifest(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
