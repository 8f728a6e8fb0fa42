package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// QueryInput is the input schema for the query tool.
type QueryInput struct {
	Question  string   `json:"question" jsonschema:"the question to answer from the ingested documents"`
	Agent     string   `json:"agent,omitempty" jsonschema:"agent ID to use instead of automatic selection"`
	Documents []string `json:"documents,omitempty" jsonschema:"restrict retrieval to these document IDs"`
}

// QueryOutput is the output schema for the query tool.
type QueryOutput struct {
	Answer       string          `json:"answer"`
	Agents       []AgentOutput   `json:"agents"`
	Context      []ContextOutput `json:"context"`
	FailedAgents []string        `json:"failed_agents,omitempty"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
}

// AgentOutput is one selected agent.
type AgentOutput struct {
	ID         string  `json:"id"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// ContextOutput is one chunk of the merged context. Pages are 1-based.
type ContextOutput struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	PageStart  int     `json:"page_start"`
	PageEnd    int     `json:"page_end"`
	Modality   string  `json:"modality"`
	Agent      string  `json:"agent"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// IngestInput is the input schema for the ingest_file tool.
type IngestInput struct {
	Path       string `json:"path" jsonschema:"path of the file to ingest"`
	DocumentID  string `json:"document_id,omitempty" jsonschema:"existing document ID to re-ingest"`
	ForceVision *bool  `json:"force_vision,omitempty" jsonschema:"send every table and image block to the vision model"`
}

// IngestOutput is the output schema for the ingest_file tool.
type IngestOutput struct {
	DocumentID    string `json:"document_id"`
	Succeeded     int    `json:"succeeded"`
	Downgraded    int    `json:"downgraded"`
	Failed        int    `json:"failed"`
	ChunksIndexed int    `json:"chunks_indexed"`
	ChunksFailed  int    `json:"chunks_failed"`
	VisionCalls   int    `json:"vision_calls"`
}

// DeleteInput is the input schema for the delete_document tool.
type DeleteInput struct {
	DocumentID string `json:"document_id" jsonschema:"the document to delete"`
}

// DeleteOutput is the output schema for the delete_document tool.
type DeleteOutput struct {
	Deleted bool `json:"deleted"`
}

// UsageInput is the input schema for the usage tool.
type UsageInput struct {
	Reset bool `json:"reset,omitempty" jsonschema:"start a new usage session after reporting"`
}

// UsageOutput is the output schema for the usage tool.
type UsageOutput struct {
	SessionID         string  `json:"session_id"`
	TextOnlyDecisions int64   `json:"text_only_decisions"`
	VisionDecisions   int64   `json:"vision_decisions"`
	VisionCallsSaved  int64   `json:"vision_calls_saved"`
	VisionCalls       int64   `json:"vision_calls"`
	EmbeddingCalls    int64   `json:"embedding_calls"`
	CompletionCalls   int64   `json:"completion_calls"`
	CacheHits         int64   `json:"cache_hits"`
	Queries           int64   `json:"queries"`
	SavingsRatio      float64 `json:"savings_ratio"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query",
		Description: "Answer a question from the ingested geological documents",
	}, s.handleQuery)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_file",
		Description: "Ingest a PDF, spreadsheet, image, LAS or text file",
	}, s.handleIngest)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Delete a document and all of its indexed chunks",
	}, s.handleDelete)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "usage",
		Description: "Report model calls and vision calls saved in this session",
	}, s.handleUsage)
}

// handleQuery handles the query tool invocation.
func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	result, err := s.ports.Query.Query(ctx, domain.Query{
		Text:          input.Question,
		AgentHint:     input.Agent,
		DocumentScope: input.Documents,
	})
	if err != nil {
		return nil, QueryOutput{}, err
	}

	output := QueryOutput{
		Answer:       result.Answer,
		Agents:       make([]AgentOutput, len(result.Selected)),
		Context:      make([]ContextOutput, len(result.Context)),
		FailedAgents: result.FailedAgents,
		InputTokens:  result.Cost.Tokens.InputTokens,
		OutputTokens: result.Cost.Tokens.OutputTokens,
	}
	for i, sel := range result.Selected {
		output.Agents[i] = AgentOutput{ID: sel.AgentID, Confidence: sel.Confidence, Reason: sel.Reason}
	}
	for i, item := range result.Context {
		e := item.Hit.Entry
		output.Context[i] = ContextOutput{
			DocumentID: e.Metadata.DocumentID,
			Title:      e.Metadata.Title,
			PageStart:  e.Metadata.PageRange.Start + 1,
			PageEnd:    e.Metadata.PageRange.End + 1,
			Modality:   string(e.Metadata.Modality),
			Agent:      item.AgentID,
			Score:      item.Hit.Score,
			Text:       e.Text,
		}
	}
	return nil, output, nil
}

// handleIngest reads a local file and ingests it synchronously.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	if s.ports.Ingest == nil {
		return nil, IngestOutput{}, fmt.Errorf("ingest: %w", errNotConfigured)
	}
	content, err := os.ReadFile(input.Path)
	if err != nil {
		return nil, IngestOutput{}, fmt.Errorf("reading %s: %w", input.Path, err)
	}

	summary, err := s.ports.Ingest.Ingest(ctx, domain.FileInput{
		Name:        filepath.Base(input.Path),
		Content:     content,
		DocumentID:  input.DocumentID,
		ForceVision: input.ForceVision,
	})
	if err != nil {
		return nil, IngestOutput{}, err
	}
	return nil, IngestOutput{
		DocumentID:    summary.DocumentID,
		Succeeded:     summary.Succeeded,
		Downgraded:    summary.Downgraded,
		Failed:        summary.Failed,
		ChunksIndexed: summary.ChunksIndexed,
		ChunksFailed:  summary.ChunksFailed,
		VisionCalls:   summary.VisionCalls,
	}, nil
}

// handleDelete handles the delete_document tool invocation.
func (s *Server) handleDelete(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DeleteInput,
) (*mcp.CallToolResult, DeleteOutput, error) {
	if s.ports.Document == nil {
		return nil, DeleteOutput{}, fmt.Errorf("delete: %w", errNotConfigured)
	}
	if err := s.ports.Document.Delete(ctx, input.DocumentID); err != nil {
		return nil, DeleteOutput{}, err
	}
	return nil, DeleteOutput{Deleted: true}, nil
}

// handleUsage reports the session counters, optionally resetting them.
func (s *Server) handleUsage(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input UsageInput,
) (*mcp.CallToolResult, UsageOutput, error) {
	if s.ports.Usage == nil {
		return nil, UsageOutput{}, fmt.Errorf("usage: %w", errNotConfigured)
	}
	snap := s.ports.Usage.Snapshot()
	if input.Reset {
		snap = s.ports.Usage.Reset()
	}
	return nil, UsageOutput{
		SessionID:         snap.SessionID,
		TextOnlyDecisions: snap.TextOnlyDecisions,
		VisionDecisions:   snap.VisionDecisions,
		VisionCallsSaved:  snap.VisionAvoided,
		VisionCalls:       snap.VisionCalls,
		EmbeddingCalls:    snap.EmbeddingCalls,
		CompletionCalls:   snap.CompletionCalls,
		CacheHits:         snap.CacheHits,
		Queries:           snap.Queries,
		SavingsRatio:      snap.SavingsRatio(),
	}, nil
}
