package reconcile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMappings(t *testing.T) {
	m, err := DefaultMappings()
	require.NoError(t, err)

	assert.NotEmpty(t, m.Version)
	assert.Len(t, m.NameToCode, 23)
	assert.Len(t, m.CodeCorrections, 25)
	assert.Equal(t, 4718, m.Correct(4717))
	assert.Equal(t, 4718, m.Correct(4718))
	assert.Equal(t, 27426, m.Correct(13816))
	assert.Equal(t, 3175, m.NameToCode["Manzana Royal Gala"])
	assert.Equal(t, 14030, m.NameToCode["Galletas mini Oreo"])
	assert.Contains(t, m.NameToCode, "Galletas cacahuete y chocolate Hacendado")
}

func TestLoadMappingsMergesLocal(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "mappings.json5")
	require.NoError(t, os.WriteFile(base, []byte(`{
		version: "v1",
		name_to_code: {"Manzana Royal Gala": 3175},
		code_corrections: {"4717": "4718"}, // trailing comma
	}`), 0o644))

	m, err := LoadMappings(base)
	require.NoError(t, err)
	assert.Equal(t, "v1", m.Version)
	assert.Equal(t, map[string]int{"Manzana Royal Gala": 3175}, m.NameToCode)
	assert.Equal(t, map[int]int{4717: 4718}, m.CodeCorrections)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "mappings.local.json5"), []byte(`{
		version: "v1-local",
		name_to_code: {"Turrón de Jijona": 12345},
		code_corrections: {"6245": "6331"},
	}`), 0o644))

	m, err = LoadMappings(base)
	require.NoError(t, err)
	assert.Equal(t, "v1-local", m.Version)
	assert.Equal(t, map[string]int{"Manzana Royal Gala": 3175, "Turrón de Jijona": 12345}, m.NameToCode)
	assert.Equal(t, map[int]int{4717: 4718, 6245: 6331}, m.CodeCorrections)
}

func TestLoadMappingsErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadMappings(filepath.Join(dir, "absent.json5"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	chained := filepath.Join(dir, "chained.json5")
	require.NoError(t, os.WriteFile(chained, []byte(`{code_corrections: {"1": "2", "2": "3"}}`), 0o644))
	_, err = LoadMappings(chained)
	assert.ErrorIs(t, err, ErrInvalidMappings)
	assert.ErrorContains(t, err, "1->2->3")

	notCode := filepath.Join(dir, "notcode.json5")
	require.NoError(t, os.WriteFile(notCode, []byte(`{code_corrections: {"abc": "2"}}`), 0o644))
	_, err = LoadMappings(notCode)
	assert.ErrorIs(t, err, ErrInvalidMappings)

	broken := filepath.Join(dir, "broken.json5")
	require.NoError(t, os.WriteFile(broken, []byte(`{version: `), 0o644))
	_, err = LoadMappings(broken)
	assert.Error(t, err)
}

func TestLoadMappingsEmptyNameUsesDefaults(t *testing.T) {
	m, err := LoadMappings("")
	require.NoError(t, err)
	assert.Len(t, m.CodeCorrections, 25)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		m    Mappings
		ok   bool
	}{
		{name: "empty", m: Mappings{}, ok: true},
		{name: "many to one", m: Mappings{CodeCorrections: map[int]int{1: 3, 2: 3}}, ok: true},
		{name: "self", m: Mappings{CodeCorrections: map[int]int{1: 1}}},
		{name: "chain", m: Mappings{CodeCorrections: map[int]int{1: 2, 2: 3}}},
		{name: "cycle", m: Mappings{CodeCorrections: map[int]int{1: 2, 2: 1}}},
		{name: "blank name", m: Mappings{NameToCode: map[string]int{" ": 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidMappings)
			}
		})
	}
}

func TestLocalName(t *testing.T) {
	assert.Equal(t, filepath.Join("config", "mappings.local.json5"), localName(filepath.Join("config", "mappings.json5")))
	assert.Equal(t, "mappings.local.json5", localName("mappings.json5"))
}
