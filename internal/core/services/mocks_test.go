package services

import (
	"context"
	"errors"
	"hash/fnv"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
)

// --- Mock implementations ---

// mockEmbedder returns fixed vectors for known texts and a hash-derived
// vector otherwise.
type mockEmbedder struct {
	dims     int
	vectors  map[string][]float32
	fail     map[string]error
	batchErr error
	err      error

	embedCalls atomic.Int32
	batchCalls atomic.Int32
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims, vectors: map[string][]float32{}, fail: map[string]error{}}
}

func (m *mockEmbedder) vector(text string) ([]float32, error) {
	if err, ok := m.fail[text]; ok {
		return nil, err
	}
	if v, ok := m.vectors[text]; ok {
		return slices.Clone(v), nil
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()
	v := make([]float32, m.dims)
	for i := range v {
		v[i] = float32((seed>>(i*3))%7) + 1
	}
	return v, nil
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.vector(text)
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.vector(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int             { return m.dims }
func (m *mockEmbedder) ModelName() string           { return "mock-embed" }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }
func (m *mockEmbedder) Close() error                { return nil }

// mockVision answers every request with extract, counting calls.
type mockVision struct {
	extract func(ctx context.Context, req driven.VisionRequest) (*driven.VisionResult, error)

	mu       sync.Mutex
	requests []driven.VisionRequest
}

func (m *mockVision) Extract(ctx context.Context, req driven.VisionRequest) (*driven.VisionResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.extract(ctx, req)
}

func (m *mockVision) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *mockVision) ModelName() string { return "mock-vision" }
func (m *mockVision) Close() error      { return nil }

func visionText(text string, confidence float64) func(context.Context, driven.VisionRequest) (*driven.VisionResult, error) {
	return func(context.Context, driven.VisionRequest) (*driven.VisionResult, error) {
		return &driven.VisionResult{Text: text, Confidence: confidence}, nil
	}
}

// mockCompletion echoes the agent prompt unless a reply is configured.
type mockCompletion struct {
	reply func(req driven.CompletionRequest) (string, error)

	mu       sync.Mutex
	requests []driven.CompletionRequest
}

func (m *mockCompletion) Complete(_ context.Context, req driven.CompletionRequest) (*driven.Completion, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	text := "answer"
	if m.reply != nil {
		var err error
		if text, err = m.reply(req); err != nil {
			return nil, err
		}
	}
	return &driven.Completion{Text: text, Usage: domain.TokenUsage{InputTokens: 10, OutputTokens: 5}}, nil
}

func (m *mockCompletion) calls() []driven.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.requests)
}

func (m *mockCompletion) ModelName() string           { return "mock-llm" }
func (m *mockCompletion) Ping(_ context.Context) error { return nil }
func (m *mockCompletion) Close() error                { return nil }

// mockIndex keeps entries in memory and orders search hits by sequence.
type mockIndex struct {
	dims int

	mu         sync.Mutex
	entries    map[string]domain.IndexEntry
	seq        int64
	replaceErr error
	searchErr  func(p domain.MetadataPredicate) error
	replaces   int
}

func newMockIndex(dims int) *mockIndex {
	return &mockIndex{dims: dims, entries: map[string]domain.IndexEntry{}}
}

func (m *mockIndex) Upsert(ctx context.Context, entry domain.IndexEntry) error {
	return m.ReplaceDocument(ctx, entry.DocumentID(), append(m.documentEntries(entry.DocumentID()), entry))
}

func (m *mockIndex) documentEntries(docID string) []domain.IndexEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.IndexEntry
	for _, e := range m.entries {
		if e.DocumentID() == docID {
			out = append(out, e)
		}
	}
	return out
}

func (m *mockIndex) ReplaceDocument(_ context.Context, documentID string, entries []domain.IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	for _, e := range entries {
		if len(e.Embedding) != m.dims {
			return &domain.DimensionMismatchError{Expected: m.dims, Got: len(e.Embedding)}
		}
	}
	m.replaces++
	for id, e := range m.entries {
		if e.DocumentID() == documentID {
			delete(m.entries, id)
		}
	}
	for _, e := range entries {
		m.seq++
		e.Seq = m.seq
		m.entries[e.ChunkID] = e
	}
	return nil
}

func (m *mockIndex) Delete(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return 0, m.replaceErr
	}
	n := 0
	for id, e := range m.entries {
		if e.DocumentID() == documentID {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

func (m *mockIndex) matching(p domain.MetadataPredicate) []domain.IndexEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.IndexEntry
	for _, e := range m.entries {
		if p.IsEmpty() || p.Matches(&e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (m *mockIndex) Search(_ context.Context, vector []float32, p domain.MetadataPredicate, topK int) ([]domain.SearchHit, error) {
	if len(vector) != m.dims {
		return nil, &domain.DimensionMismatchError{Expected: m.dims, Got: len(vector)}
	}
	if m.searchErr != nil {
		if err := m.searchErr(p); err != nil {
			return nil, err
		}
	}
	var hits []domain.SearchHit
	for i, e := range m.matching(p) {
		if i == topK {
			break
		}
		hits = append(hits, domain.SearchHit{Entry: e, Distance: float64(i) / 10, Score: 1 - float64(i)/10})
	}
	return hits, nil
}

// KeywordSearch matches entries containing any query word of four or more letters.
func (m *mockIndex) KeywordSearch(_ context.Context, text string, p domain.MetadataPredicate, limit int) ([]domain.SearchHit, error) {
	if m.searchErr != nil {
		if err := m.searchErr(p); err != nil {
			return nil, err
		}
	}
	var hits []domain.SearchHit
	for _, e := range m.matching(p) {
		if len(hits) == limit {
			break
		}
		body := strings.ToLower(e.Text)
		for _, w := range strings.Fields(strings.ToLower(text)) {
			if len(w) >= 4 && strings.Contains(body, w) {
				hits = append(hits, domain.SearchHit{Entry: e, Score: 1})
				break
			}
		}
	}
	return hits, nil
}

func (m *mockIndex) Get(_ context.Context, chunkID string) (*domain.IndexEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[chunkID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (m *mockIndex) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *mockIndex) Dimensions() int               { return m.dims }
func (m *mockIndex) Metric() domain.DistanceMetric { return domain.MetricCosine }
func (m *mockIndex) Close() error                  { return nil }

// mockPromptStore serves fixed prompts.
type mockPromptStore struct {
	prompts map[string]string
}

func (m *mockPromptStore) Load(name string) (string, error) {
	p, ok := m.prompts[name]
	if !ok {
		return "", errors.New("prompt not found")
	}
	return p, nil
}

func (m *mockPromptStore) Reload() {}

// mockNormaliser returns preset blocks for every file.
type mockNormaliser struct {
	exts   []string
	title  string
	blocks func(documentID string) []domain.ContentBlock
	err    error
}

func (m *mockNormaliser) SupportedMIMETypes() []string  { return nil }
func (m *mockNormaliser) SupportedExtensions() []string { return m.exts }
func (m *mockNormaliser) Priority() int                 { return 100 }

func (m *mockNormaliser) Normalise(_ context.Context, _ *domain.FileInput, documentID string) (*driven.NormaliseResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &driven.NormaliseResult{Blocks: m.blocks(documentID), MIMEType: "application/pdf", Title: m.title}, nil
}

// transient is a retryable model error.
var transient = &domain.ModelServiceError{Service: "mock", StatusCode: 503, Message: "overloaded"}

func fastRetry(attempts int) domain.RetrySettings {
	return domain.RetrySettings{MaxAttempts: attempts, InitialInterval: 1, MaxInterval: 1, Multiplier: 1}
}
