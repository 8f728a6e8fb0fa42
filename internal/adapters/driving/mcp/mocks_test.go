package mcp

import (
	"context"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	result *domain.QueryResult
	err    error
	last   domain.Query
}

func (m *mockQueryService) Query(_ context.Context, q domain.Query) (*domain.QueryResult, error) {
	m.last = q
	return m.result, m.err
}

func (m *mockQueryService) Agents() []domain.AgentProfile {
	return domain.DefaultAgentProfiles()
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	input domain.FileInput
	err   error
}

func (m *mockIngestService) Ingest(_ context.Context, in domain.FileInput) (*domain.IngestionSummary, error) {
	m.input = in
	if m.err != nil {
		return nil, m.err
	}
	return &domain.IngestionSummary{DocumentID: "doc-new", Succeeded: 3, Downgraded: 1, ChunksIndexed: 4}, nil
}

func (m *mockIngestService) Extract(_ context.Context, in domain.FileInput) (*domain.ExtractionReport, error) {
	m.input = in
	return &domain.ExtractionReport{}, m.err
}

func (m *mockIngestService) Submit(_ context.Context, _ domain.FileInput) (string, error) {
	return "doc-new", m.err
}

func (m *mockIngestService) Wait(_ context.Context, _ string) (*domain.IngestJob, error) {
	return nil, m.err
}

func (m *mockIngestService) Status(_ string) (*domain.IngestJob, error) {
	return nil, m.err
}

func (m *mockIngestService) Cancel(_ string) error {
	return m.err
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	documents []domain.Document
	summary   *domain.IngestionSummary
	deleted   string
	err       error
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, _ string) (*domain.Document, error) {
	return nil, m.err
}

func (m *mockDocumentService) Summary(_ context.Context, _ string) (*domain.IngestionSummary, error) {
	return m.summary, m.err
}

func (m *mockDocumentService) Delete(_ context.Context, id string) error {
	m.deleted = id
	return m.err
}

// mockUsageService is a mock implementation of driving.UsageService.
type mockUsageService struct {
	snap   domain.UsageSnapshot
	resets int
}

func (m *mockUsageService) Snapshot() domain.UsageSnapshot {
	return m.snap
}

func (m *mockUsageService) Reset() domain.UsageSnapshot {
	m.resets++
	return m.snap
}
