package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// agentsFile is the on-disk layout of an agent profile file.
// The same field names are used for TOML and YAML.
type agentsFile struct {
	Agents []agentEntry `toml:"agents" yaml:"agents"`
}

type agentEntry struct {
	ID          string      `toml:"id" yaml:"id"`
	Name        string      `toml:"name" yaml:"name"`
	Specialty   string      `toml:"specialty" yaml:"specialty"`
	Description string      `toml:"description" yaml:"description"`
	Keywords    []string    `toml:"keywords" yaml:"keywords"`
	Prompt      string      `toml:"prompt" yaml:"prompt"`
	Default     bool        `toml:"default" yaml:"default"`
	Filter      filterEntry `toml:"filter" yaml:"filter"`
}

type filterEntry struct {
	Documents  []string `toml:"documents" yaml:"documents"`
	Modalities []string `toml:"modalities" yaml:"modalities"`
	Paths      []string `toml:"paths" yaml:"paths"`
	PageStart  *int     `toml:"page_start" yaml:"page_start"`
	PageEnd    *int     `toml:"page_end" yaml:"page_end"`
	Keywords   []string `toml:"keywords" yaml:"keywords"`
}

// LoadAgentProfiles reads agent profiles from a TOML (.toml) or YAML
// (.yaml, .yml) file. An empty path returns the built-in profiles.
//
// Example TOML:
//
//	[[agents]]
//	id = "petrophysicist"
//	specialty = "petrophysical data"
//	keywords = ["porosity", "permeability"]
//	filter = { modalities = ["table"] }
func LoadAgentProfiles(path string) ([]domain.AgentProfile, error) {
	if path == "" {
		return domain.DefaultAgentProfiles(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent profiles: %w", err)
	}

	var parsed agentsFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &parsed)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &parsed)
	default:
		return nil, fmt.Errorf("%w: agent profiles must be .toml or .yaml, got %q",
			domain.ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse agent profiles %s: %w", filepath.Base(path), err)
	}

	return toProfiles(parsed.Agents)
}

func toProfiles(entries []agentEntry) ([]domain.AgentProfile, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no agents defined", domain.ErrInvalidInput)
	}

	seen := make(map[string]bool, len(entries))
	profiles := make([]domain.AgentProfile, 0, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: agent %d has no id", domain.ErrInvalidInput, i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("%w: duplicate agent id %q", domain.ErrInvalidInput, e.ID)
		}
		seen[e.ID] = true

		filter, err := e.Filter.predicate()
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", e.ID, err)
		}

		name := e.Name
		if name == "" {
			name = e.ID
		}
		specialty := e.Specialty
		if specialty == "" {
			specialty = name
		}

		profiles = append(profiles, domain.AgentProfile{
			ID:              e.ID,
			Name:            name,
			SpecialtyTag:    specialty,
			Description:     e.Description,
			Keywords:        e.Keywords,
			RetrievalFilter: filter,
			PromptTemplate:  e.Prompt,
			Default:         e.Default,
		})
	}
	return profiles, nil
}

func (f filterEntry) predicate() (domain.MetadataPredicate, error) {
	p := domain.MetadataPredicate{
		DocumentIDs: f.Documents,
		Keywords:    f.Keywords,
	}
	for _, m := range f.Modalities {
		bt := domain.BlockType(strings.ToLower(m))
		if !bt.IsValid() {
			return p, fmt.Errorf("%w: unknown modality %q", domain.ErrInvalidInput, m)
		}
		p.Modalities = append(p.Modalities, bt)
	}
	for _, path := range f.Paths {
		ep := domain.ExtractionPath(strings.ToLower(path))
		if ep != domain.PathTextOnly && ep != domain.PathVision {
			return p, fmt.Errorf("%w: unknown extraction path %q", domain.ErrInvalidInput, path)
		}
		p.ExtractionPaths = append(p.ExtractionPaths, ep)
	}
	if f.PageStart != nil || f.PageEnd != nil {
		r := domain.PageRange{Start: 0, End: int(^uint(0) >> 1)}
		if f.PageStart != nil {
			r.Start = *f.PageStart
		}
		if f.PageEnd != nil {
			r.End = *f.PageEnd
		}
		if r.Start > r.End {
			return p, fmt.Errorf("%w: page_start after page_end", domain.ErrInvalidInput)
		}
		p.Pages = &r
	}
	return p, nil
}
