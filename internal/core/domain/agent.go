package domain

import "strings"

// GeneralAgentID is the identifier of the built-in fallback agent.
const GeneralAgentID = "general"

// Prompt template placeholders substituted by the dispatcher.
const (
	PlaceholderContext  = "{{context}}"
	PlaceholderQuestion = "{{question}}"
)

// AgentProfile describes a specialised reasoning agent.
// Profiles are loaded once at startup and are read-only afterwards.
type AgentProfile struct {
	// ID is the stable identifier, also accepted as an agent hint.
	ID string

	// Name is the display name.
	Name string

	// SpecialtyTag is a short label embedded for classification.
	SpecialtyTag string

	// Description is a longer specialty description, embedded with the tag.
	Description string

	// Keywords boost the classifier score when they occur in a query.
	Keywords []string

	// RetrievalFilter narrows the index entries this agent retrieves.
	RetrievalFilter MetadataPredicate

	// PromptTemplate is the completion prompt with {{context}} and {{question}}.
	PromptTemplate string

	// Default marks the profile used when no agent clears the threshold.
	Default bool
}

// SpecialtyText returns the text embedded for classification.
func (a AgentProfile) SpecialtyText() string {
	if a.Description == "" {
		return a.SpecialtyTag
	}
	return a.SpecialtyTag + ": " + a.Description
}

// Render fills the prompt template.
func (a AgentProfile) Render(context, question string) string {
	tmpl := a.PromptTemplate
	if tmpl == "" {
		tmpl = defaultPromptTemplate
	}
	return strings.NewReplacer(
		PlaceholderContext, context,
		PlaceholderQuestion, question,
	).Replace(tmpl)
}

const defaultPromptTemplate = `Use the following excerpts from geological documents to answer the question.
If the excerpts do not contain the answer, say so.

Excerpts:
{{context}}

Question: {{question}}`

// GeneralAgentProfile returns the fallback agent used when nothing matches.
func GeneralAgentProfile() AgentProfile {
	return AgentProfile{
		ID:           GeneralAgentID,
		Name:         "Synthesis Expert",
		SpecialtyTag: "general geology",
		Description:  "combines insights across documents into a comprehensive geological analysis",
		PromptTemplate: "You are a Synthesis Expert, combining insights from all sources to provide a " +
			"comprehensive geological analysis.\n\n" + defaultPromptTemplate,
		Default: true,
	}
}

// DefaultAgentProfiles returns the built-in geological agents.
func DefaultAgentProfiles() []AgentProfile {
	return []AgentProfile{
		{
			ID:           "vision_geologist",
			Name:         "Vision Geologist",
			SpecialtyTag: "well logs and imagery",
			Description:  "interprets images, charts, well log curves and formation imagery",
			Keywords:     []string{"log", "curve", "gamma", "resistivity", "image", "chart", "figure", "core photo", "seismic"},
			RetrievalFilter: MetadataPredicate{
				Modalities: []BlockType{BlockImage, BlockTable},
			},
			PromptTemplate: "You are a Vision Geologist, expert in analysing images, charts and well log curves. " +
				"Focus on formation analysis, log curves and graphs.\n\n" + defaultPromptTemplate,
		},
		{
			ID:           "document_analyst",
			Name:         "Document Analyst",
			SpecialtyTag: "geological reports",
			Description:  "processes written reports, descriptions and structured geological text",
			Keywords:     []string{"report", "summary", "describe", "formation", "lithology", "stratigraphy"},
			RetrievalFilter: MetadataPredicate{
				Modalities: []BlockType{BlockText},
			},
			PromptTemplate: "You are a Document Analyst, expert in processing text and structured geological data.\n\n" +
				defaultPromptTemplate,
		},
		{
			ID:           "data_analyst",
			Name:         "Data Analyst",
			SpecialtyTag: "petrophysical data",
			Description:  "interprets numerical data, tables and petrophysical parameters such as porosity and permeability",
			Keywords:     []string{"porosity", "permeability", "saturation", "density", "average", "table", "depth", "value"},
			RetrievalFilter: MetadataPredicate{
				Modalities: []BlockType{BlockTable},
			},
			PromptTemplate: "You are a Data Analyst, expert in interpreting numerical data and petrophysical parameters.\n\n" +
				defaultPromptTemplate,
		},
		{
			ID:           "research_specialist",
			Name:         "Research Specialist",
			SpecialtyTag: "geological context",
			Description:  "provides regional geological context, history and citations",
			Keywords:     []string{"basin", "regional", "history", "age", "tectonic", "reference", "context"},
			PromptTemplate: "You are a Research Specialist, providing geological context and citations. " +
				"Cite the excerpt numbers you rely on.\n\n" + defaultPromptTemplate,
		},
		GeneralAgentProfile(),
	}
}
