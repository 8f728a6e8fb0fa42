package domain

import "time"

// UsageSnapshot is a point-in-time copy of the session usage counters.
type UsageSnapshot struct {
	SessionID string
	StartedAt time.Time

	TextOnlyDecisions int64
	VisionDecisions   int64

	// VisionAvoided counts table and image blocks routed text_only.
	VisionAvoided int64

	VisionCalls     int64
	VisionFailures  int64
	EmbeddingCalls  int64
	CompletionCalls int64
	CacheHits       int64
	Queries         int64

	BlocksDowngraded int64
	BlocksFailed     int64

	InputTokens  int64
	OutputTokens int64
}

// TotalDecisions returns the number of routing decisions made.
func (u UsageSnapshot) TotalDecisions() int64 {
	return u.TextOnlyDecisions + u.VisionDecisions
}

// SavingsRatio is the share of decisions that avoided a vision call.
// Returns 0 when no decisions were made.
func (u UsageSnapshot) SavingsRatio() float64 {
	total := u.TotalDecisions()
	if total == 0 {
		return 0
	}
	return float64(u.TextOnlyDecisions) / float64(total)
}
