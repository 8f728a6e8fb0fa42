package cli

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driving"
)

// run executes the root command with args against svc and returns its output.
func run(t *testing.T, svc *Services, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	SetServices(svc)
	prev := bootstrap
	bootstrap = nil
	t.Cleanup(func() {
		bootstrap = prev
		SetServices(nil)
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// resetFlags restores every flag to its default so runs do not leak values.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

type mockIngestService struct {
	mu        sync.Mutex
	submitted []domain.FileInput
	cancelled []string
	submitErr []error
	job       *domain.IngestJob
	waitErr   error

	extracted  []domain.FileInput
	report     *domain.ExtractionReport
	extractErr error
}

func (m *mockIngestService) Extract(_ context.Context, in domain.FileInput) (*domain.ExtractionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extracted = append(m.extracted, in)
	if m.extractErr != nil {
		return nil, m.extractErr
	}
	if m.report != nil {
		return m.report, nil
	}
	return &domain.ExtractionReport{Summary: domain.IngestionSummary{DocumentID: in.DocumentID, Name: in.Name}}, nil
}

func (m *mockIngestService) Ingest(_ context.Context, in domain.FileInput) (*domain.IngestionSummary, error) {
	return &domain.IngestionSummary{DocumentID: in.DocumentID}, nil
}

func (m *mockIngestService) Submit(_ context.Context, in domain.FileInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, in)
	if len(m.submitErr) > 0 {
		err := m.submitErr[0]
		m.submitErr = m.submitErr[1:]
		if err != nil {
			return "", err
		}
	}
	return in.DocumentID, nil
}

func (m *mockIngestService) Wait(_ context.Context, id string) (*domain.IngestJob, error) {
	if m.waitErr != nil {
		return nil, m.waitErr
	}
	job := &domain.IngestJob{DocumentID: id, State: domain.JobCompleted, Summary: &domain.IngestionSummary{
		DocumentID: id, Succeeded: 4, Downgraded: 1, ChunksIndexed: 3, VisionCalls: 1,
	}}
	if m.job != nil {
		j := *m.job
		j.DocumentID = id
		job = &j
	}
	return job, nil
}

func (m *mockIngestService) Status(id string) (*domain.IngestJob, error) {
	return m.Wait(context.Background(), id)
}

func (m *mockIngestService) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, id)
	return nil
}

func (m *mockIngestService) submissions() []domain.FileInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.FileInput(nil), m.submitted...)
}

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

type mockDocumentService struct {
	mu      sync.Mutex
	docs    []domain.Document
	summary *domain.IngestionSummary
	deleted []string
	err     error
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	return m.docs, m.err
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	for i := range m.docs {
		if m.docs[i].ID == id {
			return &m.docs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) Summary(_ context.Context, _ string) (*domain.IngestionSummary, error) {
	if m.summary == nil {
		return nil, domain.ErrNotFound
	}
	return m.summary, nil
}

func (m *mockDocumentService) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return m.err
}

type mockUsageService struct {
	snap   domain.UsageSnapshot
	resets int
}

func (m *mockUsageService) Snapshot() domain.UsageSnapshot { return m.snap }

func (m *mockUsageService) Reset() domain.UsageSnapshot {
	m.resets++
	return m.snap
}

type mockSettingsService struct {
	values   []driving.Setting
	set      map[string]string
	setErr   error
	validErr error
	pinged   bool
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := domain.DefaultAppSettings()
	return &s, nil
}

func (m *mockSettingsService) Save(_ *domain.AppSettings) error { return nil }

func (m *mockSettingsService) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	if m.set == nil {
		m.set = make(map[string]string)
	}
	m.set[key] = value
	return nil
}

func (m *mockSettingsService) Validate() error { return m.validErr }

func (m *mockSettingsService) GetDefaults() domain.AppSettings { return domain.DefaultAppSettings() }

func (m *mockSettingsService) Values() ([]driving.Setting, error) { return m.values, nil }

func (m *mockSettingsService) ValidateConnections(_ context.Context) error {
	m.pinged = true
	return nil
}
