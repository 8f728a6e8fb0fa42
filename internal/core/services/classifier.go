package services

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/logger"
)

// AgentClassifier scores agent profiles against a query.
//
// With embeddings the score is the cosine similarity between the query and
// the profile's specialty text, plus KeywordBoost when a profile keyword
// occurs in the query, clamped to [0, 1]. Without embeddings each keyword
// hit is worth twice the boost.
type AgentClassifier struct {
	embedder  driven.EmbeddingService
	profiles  []domain.AgentProfile
	threshold float64
	boost     float64
	maxAgents int

	mu        sync.Mutex
	specialty [][]float32
}

// NewAgentClassifier creates a classifier over profiles.
// The embedder is optional (can be nil).
func NewAgentClassifier(embedder driven.EmbeddingService, profiles []domain.AgentProfile, settings domain.DispatchSettings) *AgentClassifier {
	if len(profiles) == 0 {
		profiles = domain.DefaultAgentProfiles()
	}
	return &AgentClassifier{
		embedder:  embedder,
		profiles:  slices.Clone(profiles),
		threshold: settings.Threshold,
		boost:     settings.KeywordBoost,
		maxAgents: max(settings.MaxAgents, 0),
	}
}

// Profiles returns the configured profiles in configuration order.
func (c *AgentClassifier) Profiles() []domain.AgentProfile {
	return slices.Clone(c.profiles)
}

// Profile returns the profile with the given ID.
func (c *AgentClassifier) Profile(id string) (domain.AgentProfile, bool) {
	for _, p := range c.profiles {
		if strings.EqualFold(p.ID, id) {
			return p, true
		}
	}
	if strings.EqualFold(id, domain.GeneralAgentID) {
		return domain.GeneralAgentProfile(), true
	}
	return domain.AgentProfile{}, false
}

// Select picks the agents for a query. queryVec may be nil when the
// query could not be embedded. A hint naming a known profile wins outright;
// when nothing clears the threshold the default profile is returned.
func (c *AgentClassifier) Select(ctx context.Context, q domain.Query, queryVec []float32) ([]domain.AgentSelection, error) {
	if hint := strings.TrimSpace(q.AgentHint); hint != "" {
		p, ok := c.Profile(hint)
		if !ok {
			return nil, fmt.Errorf("%w: unknown agent %q", domain.ErrInvalidInput, hint)
		}
		return []domain.AgentSelection{{AgentID: p.ID, Confidence: 1, Reason: domain.SelectedByHint}}, nil
	}

	scores, reason := c.Score(ctx, q.Text, queryVec)

	order := make([]int, len(c.profiles))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	var selected []domain.AgentSelection
	for _, i := range order {
		if scores[i] < c.threshold || (c.maxAgents > 0 && len(selected) == c.maxAgents) {
			break
		}
		selected = append(selected, domain.AgentSelection{
			AgentID:    c.profiles[i].ID,
			Confidence: scores[i],
			Reason:     reason,
		})
	}
	for _, s := range selected {
		logger.Debug("agent %s selected (%.3f, %s)", s.AgentID, s.Confidence, s.Reason)
	}
	if len(selected) > 0 {
		return selected, nil
	}

	def := c.defaultProfile()
	conf := 0.0
	for i, p := range c.profiles {
		if p.ID == def.ID {
			conf = scores[i]
		}
	}
	logger.Debug("no agent cleared %.2f, using %s", c.threshold, def.ID)
	return []domain.AgentSelection{{AgentID: def.ID, Confidence: conf, Reason: domain.SelectedByDefault}}, nil
}

// Score returns one score per profile, in configuration order, and the
// selection reason that applies to them.
func (c *AgentClassifier) Score(ctx context.Context, query string, queryVec []float32) ([]float64, string) {
	specialty := c.specialtyVectors(ctx)
	semantic := queryVec != nil && specialty != nil

	words := wordSet(query)
	lower := " " + strings.Join(tokenize(query), " ") + " "

	scores := make([]float64, len(c.profiles))
	for i, p := range c.profiles {
		hits := keywordHits(p.Keywords, words, lower)
		var s float64
		if semantic {
			s = cosine(queryVec, specialty[i])
			if hits > 0 {
				s += c.boost
			}
		} else {
			s = float64(hits) * 2 * c.boost
		}
		scores[i] = math.Min(1, math.Max(0, s))
	}
	if semantic {
		return scores, domain.SelectedByClassifier
	}
	return scores, domain.SelectedByKeyword
}

// specialtyVectors embeds every profile once. A failure is not cached so
// the next query tries again.
func (c *AgentClassifier) specialtyVectors(ctx context.Context) [][]float32 {
	if c.embedder == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.specialty != nil {
		return c.specialty
	}

	texts := make([]string, len(c.profiles))
	for i, p := range c.profiles {
		texts[i] = p.SpecialtyText()
	}
	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		logger.Warn("embedding agent specialties failed, using keywords only: %v", err)
		return nil
	}
	c.specialty = vecs
	return vecs
}

func (c *AgentClassifier) defaultProfile() domain.AgentProfile {
	for _, p := range c.profiles {
		if p.Default {
			return p
		}
	}
	return domain.GeneralAgentProfile()
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func wordSet(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range tokenize(text) {
		words[w] = true
	}
	return words
}

// keywordHits counts keywords present in the query as whole words.
// Multi-word keywords match as phrases.
func keywordHits(keywords []string, words map[string]bool, padded string) int {
	hits := 0
	for _, kw := range keywords {
		parts := tokenize(kw)
		switch len(parts) {
		case 0:
			continue
		case 1:
			if words[parts[0]] {
				hits++
			}
		default:
			if strings.Contains(padded, " "+strings.Join(parts, " ")+" ") {
				hits++
			}
		}
	}
	return hits
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
