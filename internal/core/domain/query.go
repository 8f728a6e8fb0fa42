package domain

import "time"

// Query is a natural-language question submitted for answering.
type Query struct {
	// Text is the question.
	Text string

	// AgentHint names an agent to use, bypassing classification.
	AgentHint string

	// DocumentScope restricts retrieval to these documents when non-empty.
	DocumentScope []string
}

// QueryState is a stage in the dispatcher's per-query state machine.
type QueryState string

// Query states in lifecycle order.
const (
	QueryReceived         QueryState = "received"
	QueryAgentSelected    QueryState = "agent_selected"
	QueryRetrieving       QueryState = "retrieving"
	QueryContextAssembled QueryState = "context_assembled"
	QueryAnswered         QueryState = "answered"
	QueryFailed           QueryState = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s QueryState) IsTerminal() bool {
	return s == QueryAnswered || s == QueryFailed
}

// CanTransition reports whether moving from s to next is legal.
// Any non-terminal state may move to failed.
func (s QueryState) CanTransition(next QueryState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == QueryFailed {
		return true
	}
	switch s {
	case QueryReceived:
		return next == QueryAgentSelected
	case QueryAgentSelected:
		return next == QueryRetrieving
	case QueryRetrieving:
		return next == QueryContextAssembled
	case QueryContextAssembled:
		return next == QueryAnswered
	default:
		return false
	}
}

// Selection reasons recorded on AgentSelection.
const (
	SelectedByHint       = "hint"
	SelectedByClassifier = "classifier"
	SelectedByKeyword    = "keyword"
	SelectedByDefault    = "default"
)

// AgentSelection is one agent chosen for a query.
type AgentSelection struct {
	// AgentID identifies the profile.
	AgentID string

	// Confidence is the classifier score in [0, 1].
	Confidence float64

	// Reason records how the agent was chosen.
	Reason string
}

// AgentRetrieval holds one agent's retrieval outcome.
type AgentRetrieval struct {
	// AgentID identifies the profile.
	AgentID string

	// Hits are ranked best first.
	Hits []SearchHit

	// Err is set when retrieval failed for this agent.
	Err error
}

// ContextItem is one chunk in the merged context.
type ContextItem struct {
	// AgentID is the agent whose retrieval contributed the chunk.
	AgentID string

	// Hit is the retrieved entry.
	Hit SearchHit
}

// AgentAnswer is one agent's completion.
type AgentAnswer struct {
	AgentID string
	Text    string
	Usage   TokenUsage
}

// TokenUsage counts tokens reported by a completion service.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Add returns the sum of two usages.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// CostRecord accounts for the model work done by one query.
type CostRecord struct {
	EmbeddingCalls  int
	CompletionCalls int
	Tokens          TokenUsage
	Duration        time.Duration
}

// QueryResult is the outcome of dispatching one query.
type QueryResult struct {
	// Query is the original request.
	Query Query

	// Selected lists the chosen agents, best first.
	Selected []AgentSelection

	// Retrieved holds per-agent retrieval results in selection order.
	Retrieved []AgentRetrieval

	// Context is the merged, deduplicated, budget-capped context.
	Context []ContextItem

	// Answer is the merged final answer.
	Answer string

	// AgentAnswers holds the individual completions.
	AgentAnswers []AgentAnswer

	// FailedAgents lists agents whose retrieval or completion failed.
	FailedAgents []string

	// States is the state machine history, starting at received.
	States []QueryState

	// Cost accounts for model work.
	Cost CostRecord
}

// State returns the latest state.
func (r *QueryResult) State() QueryState {
	if len(r.States) == 0 {
		return ""
	}
	return r.States[len(r.States)-1]
}
