package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/core/ports/driving"
	"github.com/custodia-labs/strata/internal/logger"
)

// Ensure DispatchService implements the interface.
var _ driving.QueryService = (*DispatchService)(nil)

// Ensure DispatchService can receive custom prompts.
var _ driven.PromptStoreAware = (*DispatchService)(nil)

const defaultSynthesisPrompt = `Combine these specialist answers into one answer.

Question: %s

Answers:
%s`

// DispatchService answers queries by routing them to agent profiles,
// retrieving per agent from the hybrid index and merging the results.
type DispatchService struct {
	index      driven.HybridIndex
	embedder   driven.EmbeddingService
	llm        driven.CompletionService
	prompts    driven.PromptStore
	classifier *AgentClassifier
	usage      *UsageTracker
	settings   domain.DispatchSettings
	retry      domain.RetrySettings
}

// NewDispatchService creates a dispatcher.
// The embedder, llm and usage parameters are optional (can be nil). Without
// an embedder retrieval is keyword-only; without an llm queries return the
// merged context with no answer.
func NewDispatchService(
	index driven.HybridIndex,
	embedder driven.EmbeddingService,
	llm driven.CompletionService,
	profiles []domain.AgentProfile,
	usage *UsageTracker,
	settings domain.DispatchSettings,
	retry domain.RetrySettings,
) *DispatchService {
	return &DispatchService{
		index:      index,
		embedder:   embedder,
		llm:        llm,
		classifier: NewAgentClassifier(embedder, profiles, settings),
		usage:      usage,
		settings:   settings,
		retry:      retry,
	}
}

// SetPromptStore sets the store the synthesis prompt is loaded from.
func (s *DispatchService) SetPromptStore(store driven.PromptStore) {
	s.prompts = store
}

// Agents returns the configured agent profiles.
func (s *DispatchService) Agents() []domain.AgentProfile {
	return s.classifier.Profiles()
}

// queryRun carries one query through the state machine.
type queryRun struct {
	result *domain.QueryResult
	start  time.Time
}

func (r *queryRun) transition(next domain.QueryState) error {
	cur := r.result.State()
	if !cur.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, cur, next)
	}
	r.result.States = append(r.result.States, next)
	logger.Debug("query state: %s -> %s", cur, next)
	return nil
}

// fail moves the run to failed and returns the partial result with err.
func (r *queryRun) fail(err error) (*domain.QueryResult, error) {
	if terr := r.transition(domain.QueryFailed); terr != nil {
		err = errors.Join(err, terr)
	}
	r.result.Cost.Duration = time.Since(r.start)
	return r.result, err
}

// Query runs one query. When the query fails after it was received the
// partial result is returned together with the error, its last state
// being failed.
func (s *DispatchService) Query(ctx context.Context, q domain.Query) (*domain.QueryResult, error) {
	logger.Section("Query Dispatch")
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, fmt.Errorf("%w: query text is required", domain.ErrInvalidInput)
	}
	s.usage.RecordQuery()

	run := &queryRun{
		result: &domain.QueryResult{Query: q, States: []domain.QueryState{domain.QueryReceived}},
		start:  time.Now(),
	}
	res := run.result

	vec, err := s.embedQuery(ctx, q.Text, res)
	if err != nil {
		return run.fail(err)
	}

	res.Selected, err = s.classifier.Select(ctx, q, vec)
	if err != nil {
		return run.fail(err)
	}
	if err := run.transition(domain.QueryAgentSelected); err != nil {
		return run.fail(err)
	}

	if err := run.transition(domain.QueryRetrieving); err != nil {
		return run.fail(err)
	}
	res.Retrieved, err = s.retrieve(ctx, q, res.Selected, vec)
	if err != nil {
		return run.fail(err)
	}
	var errs []error
	for _, r := range res.Retrieved {
		if r.Err != nil {
			res.FailedAgents = append(res.FailedAgents, r.AgentID)
			errs = append(errs, r.Err)
		}
	}
	if len(res.FailedAgents) == len(res.Retrieved) {
		return run.fail(fmt.Errorf("%w: %w", domain.ErrNoAgentSucceeded, errors.Join(errs...)))
	}

	confidence := make(map[string]float64, len(res.Selected))
	for _, sel := range res.Selected {
		confidence[sel.AgentID] = sel.Confidence
	}
	res.Context = mergeContext(res.Retrieved, confidence, s.settings.ContextBudget, s.settings.TokenBudget)
	if err := run.transition(domain.QueryContextAssembled); err != nil {
		return run.fail(err)
	}
	logger.Debug("context: %d items from %d agents", len(res.Context), len(res.Retrieved)-len(res.FailedAgents))

	if err := s.answer(ctx, res); err != nil {
		return run.fail(err)
	}
	if err := run.transition(domain.QueryAnswered); err != nil {
		return run.fail(err)
	}
	res.Cost.Duration = time.Since(run.start)
	return res, nil
}

// embedQuery embeds the query once for classification and retrieval.
// An embedding failure is tolerated when keyword retrieval can stand in.
func (s *DispatchService) embedQuery(ctx context.Context, text string, res *domain.QueryResult) ([]float32, error) {
	if s.embedder == nil {
		if !s.settings.HybridKeyword {
			return nil, domain.ErrEmbeddingUnavailable
		}
		return nil, nil
	}
	vec, err := retry(ctx, s.retry, func(ctx context.Context) ([]float32, error) {
		res.Cost.EmbeddingCalls++
		s.usage.RecordEmbeddingCalls(1)
		return s.embedder.Embed(ctx, text)
	})
	if err == nil {
		return vec, nil
	}
	if ctx.Err() != nil || !s.settings.HybridKeyword {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailure, err)
	}
	logger.Warn("query embedding failed, falling back to keyword retrieval: %v", err)
	return nil, nil
}

// retrieve searches the index once per selected agent, concurrently.
// Agent failures are recorded on their retrieval; index-level failures
// abort the query.
func (s *DispatchService) retrieve(
	ctx context.Context, q domain.Query, selected []domain.AgentSelection, vec []float32,
) ([]domain.AgentRetrieval, error) {
	scope := domain.MetadataPredicate{DocumentIDs: q.DocumentScope}
	out := make([]domain.AgentRetrieval, len(selected))

	var wg sync.WaitGroup
	for i, sel := range selected {
		wg.Add(1)
		go func() {
			defer wg.Done()
			profile, _ := s.classifier.Profile(sel.AgentID)
			hits, err := s.search(ctx, q.Text, profile.RetrievalFilter.And(scope), vec)
			out[i] = domain.AgentRetrieval{AgentID: sel.AgentID, Hits: hits}
			if err != nil {
				out[i].Err = fmt.Errorf("%w: %s: %w", domain.ErrAgentRetrievalFailure, sel.AgentID, err)
				logger.Warn("%v", out[i].Err)
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, r := range out {
		if errors.Is(r.Err, domain.ErrIndexUnavailable) || errors.Is(r.Err, domain.ErrDimensionMismatch) {
			return out, r.Err
		}
	}
	return out, nil
}

// search runs vector and keyword retrieval for one agent and fuses them.
func (s *DispatchService) search(ctx context.Context, text string, pred domain.MetadataPredicate, vec []float32) ([]domain.SearchHit, error) {
	k := max(s.settings.PerAgentK, 1)

	var vectorHits []domain.SearchHit
	if vec != nil {
		var err error
		if vectorHits, err = s.index.Search(ctx, vec, pred, k); err != nil {
			return nil, err
		}
	}
	if !s.settings.HybridKeyword {
		return vectorHits, nil
	}

	keywordHits, err := s.index.KeywordSearch(ctx, text, pred, k)
	if err != nil {
		if vec == nil {
			return nil, err
		}
		logger.Debug("keyword search failed, using vector hits only: %v", err)
		return vectorHits, nil
	}
	if vec == nil {
		return keywordHits, nil
	}
	return fuseRanked(k, vectorHits, keywordHits), nil
}

// answer asks each agent with context for a completion and merges them.
func (s *DispatchService) answer(ctx context.Context, res *domain.QueryResult) error {
	if s.llm == nil {
		logger.Debug("%v: returning context only", domain.ErrLLMUnavailable)
		return nil
	}
	if len(res.Context) == 0 {
		return nil
	}

	number := make(map[string]int, len(res.Context))
	perAgent := make(map[string][]domain.ContextItem)
	for i, it := range res.Context {
		number[it.Hit.Entry.ChunkID] = i + 1
		perAgent[it.AgentID] = append(perAgent[it.AgentID], it)
	}

	type completion struct {
		answer domain.AgentAnswer
		err    error
		calls  int
	}
	var agents []domain.AgentSelection
	for _, sel := range res.Selected {
		if len(perAgent[sel.AgentID]) > 0 {
			agents = append(agents, sel)
		}
	}
	results := make([]completion, len(agents))

	var wg sync.WaitGroup
	for i, sel := range agents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			profile, _ := s.classifier.Profile(sel.AgentID)
			prompt := profile.Render(renderContext(perAgent[sel.AgentID], number), res.Query.Text)
			c, calls, err := s.complete(ctx, prompt)
			results[i] = completion{err: err, calls: calls}
			if err == nil {
				results[i].answer = domain.AgentAnswer{AgentID: sel.AgentID, Text: strings.TrimSpace(c.Text), Usage: c.Usage}
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	var errs []error
	for i, r := range results {
		res.Cost.CompletionCalls += r.calls
		if r.err != nil {
			logger.Warn("agent %s completion failed: %v", agents[i].AgentID, r.err)
			res.FailedAgents = append(res.FailedAgents, agents[i].AgentID)
			errs = append(errs, r.err)
			continue
		}
		res.Cost.Tokens = res.Cost.Tokens.Add(r.answer.Usage)
		res.AgentAnswers = append(res.AgentAnswers, r.answer)
	}
	if len(res.AgentAnswers) == 0 {
		return fmt.Errorf("%w: %w", domain.ErrNoAgentSucceeded, errors.Join(errs...))
	}

	res.Answer = s.mergeAnswers(ctx, res)
	return nil
}

// complete calls the completion service with retries.
func (s *DispatchService) complete(ctx context.Context, prompt string) (*driven.Completion, int, error) {
	calls := 0
	c, err := retry(ctx, s.retry, func(ctx context.Context) (*driven.Completion, error) {
		calls++
		c, err := s.llm.Complete(ctx, driven.CompletionRequest{
			Messages:    []driven.ChatMessage{{Role: "user", Content: prompt}},
			Temperature: 0.2,
		})
		if err == nil {
			s.usage.RecordCompletion(c.Usage)
		}
		return c, err
	})
	return c, calls, err
}

// mergeAnswers joins agent answers in selection order, or synthesises them
// into one when enabled. A failed synthesis falls back to joining.
func (s *DispatchService) mergeAnswers(ctx context.Context, res *domain.QueryResult) string {
	if len(res.AgentAnswers) == 1 {
		return res.AgentAnswers[0].Text
	}

	var sb strings.Builder
	for _, a := range res.AgentAnswers {
		name := a.AgentID
		if p, ok := s.classifier.Profile(a.AgentID); ok && p.Name != "" {
			name = p.Name
		}
		fmt.Fprintf(&sb, "%s:\n%s\n\n", name, a.Text)
	}
	joined := strings.TrimSpace(sb.String())
	if !s.settings.Synthesize {
		return joined
	}

	tmpl := defaultSynthesisPrompt
	if s.prompts != nil {
		if p, err := s.prompts.Load(driven.PromptSynthesis); err == nil && strings.TrimSpace(p) != "" {
			tmpl = p
		}
	}
	c, calls, err := s.complete(ctx, fmt.Sprintf(tmpl, res.Query.Text, joined))
	res.Cost.CompletionCalls += calls
	if err != nil {
		logger.Warn("synthesis failed, returning joined answers: %v", err)
		return joined
	}
	res.Cost.Tokens = res.Cost.Tokens.Add(c.Usage)
	return strings.TrimSpace(c.Text)
}
