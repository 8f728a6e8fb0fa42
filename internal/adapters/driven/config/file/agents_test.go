package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/strata/internal/core/domain"
)

func writeAgents(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadAgentProfiles_EmptyPathReturnsDefaults(t *testing.T) {
	profiles, err := LoadAgentProfiles("")

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAgentProfiles(), profiles)
}

func TestLoadAgentProfiles_TOML(t *testing.T) {
	path := writeAgents(t, "agents.toml", `
[[agents]]
id = "petrophysicist"
name = "Petrophysicist"
specialty = "petrophysical data"
keywords = ["porosity", "permeability"]
prompt = "Context: {{context}} Q: {{question}}"

[agents.filter]
modalities = ["table"]
paths = ["text_only"]
page_start = 2
page_end = 9

[[agents]]
id = "fallback"
default = true
`)

	profiles, err := LoadAgentProfiles(path)

	require.NoError(t, err)
	require.Len(t, profiles, 2)

	p := profiles[0]
	assert.Equal(t, "petrophysicist", p.ID)
	assert.Equal(t, "petrophysical data", p.SpecialtyTag)
	assert.Equal(t, []string{"porosity", "permeability"}, p.Keywords)
	assert.Equal(t, []domain.BlockType{domain.BlockTable}, p.RetrievalFilter.Modalities)
	assert.Equal(t, []domain.ExtractionPath{domain.PathTextOnly}, p.RetrievalFilter.ExtractionPaths)
	require.NotNil(t, p.RetrievalFilter.Pages)
	assert.Equal(t, domain.PageRange{Start: 2, End: 9}, *p.RetrievalFilter.Pages)

	assert.Equal(t, "fallback", profiles[1].Name)
	assert.Equal(t, "fallback", profiles[1].SpecialtyTag)
	assert.True(t, profiles[1].Default)
	assert.True(t, profiles[1].RetrievalFilter.IsEmpty())
}

func TestLoadAgentProfiles_YAML(t *testing.T) {
	path := writeAgents(t, "agents.yaml", `
agents:
  - id: imagery
    specialty: well logs and imagery
    description: interprets log curves
    filter:
      modalities: [image, TABLE]
`)

	profiles, err := LoadAgentProfiles(path)

	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "well logs and imagery: interprets log curves", profiles[0].SpecialtyText())
	assert.Equal(t, []domain.BlockType{domain.BlockImage, domain.BlockTable}, profiles[0].RetrievalFilter.Modalities)
}

func TestLoadAgentProfiles_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{"unknown extension", "agents.json", `{}`, domain.ErrUnsupportedFormat},
		{"no agents", "agents.toml", ``, domain.ErrInvalidInput},
		{"missing id", "agents.toml", "[[agents]]\nname = \"x\"\n", domain.ErrInvalidInput},
		{"duplicate id", "agents.yml", "agents:\n  - id: a\n  - id: a\n", domain.ErrInvalidInput},
		{"bad modality", "agents.yml", "agents:\n  - id: a\n    filter:\n      modalities: [audio]\n", domain.ErrInvalidInput},
		{"bad path", "agents.yml", "agents:\n  - id: a\n    filter:\n      paths: [ocr]\n", domain.ErrInvalidInput},
		{"inverted pages", "agents.yml", "agents:\n  - id: a\n    filter:\n      page_start: 5\n      page_end: 1\n", domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAgentProfiles(writeAgents(t, tt.file, tt.content))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadAgentProfiles_MalformedAndMissing(t *testing.T) {
	_, err := LoadAgentProfiles(writeAgents(t, "agents.toml", "[[agents]\nid ="))
	assert.Error(t, err)

	_, err = LoadAgentProfiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
