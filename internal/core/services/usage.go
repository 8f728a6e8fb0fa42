package services

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driving"
)

// Ensure UsageTracker implements the interface.
var _ driving.UsageService = (*UsageTracker)(nil)

// usageSession holds the counters of one session. Counters only grow;
// a reset publishes a fresh session instead of zeroing these.
type usageSession struct {
	id      string
	started time.Time

	textOnly         atomic.Int64
	vision           atomic.Int64
	visionAvoided    atomic.Int64
	visionCalls      atomic.Int64
	visionFailures   atomic.Int64
	embeddingCalls   atomic.Int64
	completionCalls  atomic.Int64
	cacheHits        atomic.Int64
	queries          atomic.Int64
	blocksDowngraded atomic.Int64
	blocksFailed     atomic.Int64
	inputTokens      atomic.Int64
	outputTokens     atomic.Int64
}

func newUsageSession() *usageSession {
	return &usageSession{id: uuid.New().String(), started: time.Now()}
}

// UsageTracker counts extraction decisions and model invocations.
// All methods are safe for concurrent use and a nil tracker records nothing.
type UsageTracker struct {
	session atomic.Pointer[usageSession]
}

// NewUsageTracker starts a tracker with a new session.
func NewUsageTracker() *UsageTracker {
	t := &UsageTracker{}
	t.session.Store(newUsageSession())
	return t
}

// RecordDecision counts one routing decision.
func (t *UsageTracker) RecordDecision(blockType domain.BlockType, d domain.ExtractionDecision) {
	if t == nil {
		return
	}
	s := t.session.Load()
	if d.Escalated() {
		s.vision.Add(1)
		return
	}
	s.textOnly.Add(1)
	if blockType != domain.BlockText {
		s.visionAvoided.Add(1)
	}
}

// RecordVisionCall counts one vision attempt and whether it failed.
func (t *UsageTracker) RecordVisionCall(err error) {
	if t == nil {
		return
	}
	s := t.session.Load()
	s.visionCalls.Add(1)
	if err != nil {
		s.visionFailures.Add(1)
	}
}

// RecordEmbeddingCalls counts n embedding requests.
func (t *UsageTracker) RecordEmbeddingCalls(n int) {
	if t == nil || n <= 0 {
		return
	}
	t.session.Load().embeddingCalls.Add(int64(n))
}

// RecordCompletion counts one completion call and its tokens.
func (t *UsageTracker) RecordCompletion(u domain.TokenUsage) {
	if t == nil {
		return
	}
	s := t.session.Load()
	s.completionCalls.Add(1)
	s.inputTokens.Add(int64(max(u.InputTokens, 0)))
	s.outputTokens.Add(int64(max(u.OutputTokens, 0)))
}

// RecordCacheHit counts a model response served from cache.
func (t *UsageTracker) RecordCacheHit() {
	if t == nil {
		return
	}
	t.session.Load().cacheHits.Add(1)
}

// RecordQuery counts one dispatched query.
func (t *UsageTracker) RecordQuery() {
	if t == nil {
		return
	}
	t.session.Load().queries.Add(1)
}

// RecordBlockStatus counts downgraded and failed blocks.
func (t *UsageTracker) RecordBlockStatus(status domain.BlockStatus) {
	if t == nil {
		return
	}
	s := t.session.Load()
	switch status {
	case domain.BlockDowngraded:
		s.blocksDowngraded.Add(1)
	case domain.BlockFailed:
		s.blocksFailed.Add(1)
	}
}

// Snapshot returns the running totals of the current session.
func (t *UsageTracker) Snapshot() domain.UsageSnapshot {
	if t == nil {
		return domain.UsageSnapshot{}
	}
	return t.session.Load().snapshot()
}

// Reset starts a new session and returns the final totals of the old one.
func (t *UsageTracker) Reset() domain.UsageSnapshot {
	if t == nil {
		return domain.UsageSnapshot{}
	}
	return t.session.Swap(newUsageSession()).snapshot()
}

func (s *usageSession) snapshot() domain.UsageSnapshot {
	return domain.UsageSnapshot{
		SessionID:         s.id,
		StartedAt:         s.started,
		TextOnlyDecisions: s.textOnly.Load(),
		VisionDecisions:   s.vision.Load(),
		VisionAvoided:     s.visionAvoided.Load(),
		VisionCalls:       s.visionCalls.Load(),
		VisionFailures:    s.visionFailures.Load(),
		EmbeddingCalls:    s.embeddingCalls.Load(),
		CompletionCalls:   s.completionCalls.Load(),
		CacheHits:         s.cacheHits.Load(),
		Queries:           s.queries.Load(),
		BlocksDowngraded:  s.blocksDowngraded.Load(),
		BlocksFailed:      s.blocksFailed.Load(),
		InputTokens:       s.inputTokens.Load(),
		OutputTokens:      s.outputTokens.Load(),
	}
}
