package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/core/ports/driving"
	"github.com/custodia-labs/strata/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// embedBatchSize is the number of chunk texts sent per embedding request.
const embedBatchSize = 16

// IngestOptions tunes ingestion.
type IngestOptions struct {
	Policy domain.RoutingPolicy
	Retry  domain.RetrySettings

	// Workers bounds concurrent model calls within one document.
	Workers int

	// Jobs bounds concurrently running background ingestions.
	Jobs int

	// MaxFileBytes caps accepted file size; zero means domain.MaxFileBytes.
	MaxFileBytes int
}

// IngestService runs documents through normalisation, routing, extraction,
// chunking and embedding, then replaces the document's index entries in one write.
type IngestService struct {
	registry  driven.NormaliserRegistry
	extractor *Extractor
	pipeline  driven.PostProcessorPipeline
	embedder  driven.EmbeddingService
	index     driven.HybridIndex
	docStore  driven.DocumentStore
	usage     *UsageTracker
	opts      IngestOptions

	locks *keyedMutex
	slots chan struct{}

	mu   sync.Mutex
	jobs map[string]*ingestJob
	wg   sync.WaitGroup
}

// ingestJob tracks one background ingestion.
type ingestJob struct {
	state  domain.IngestJob
	cancel context.CancelFunc
	done   chan struct{}
}

// NewIngestService creates an ingestion service.
// The docStore and usage parameters are optional (can be nil).
func NewIngestService(
	registry driven.NormaliserRegistry,
	extractor *Extractor,
	pipeline driven.PostProcessorPipeline,
	embedder driven.EmbeddingService,
	index driven.HybridIndex,
	docStore driven.DocumentStore,
	usage *UsageTracker,
	opts IngestOptions,
) *IngestService {
	opts.Workers = max(opts.Workers, 1)
	opts.Jobs = max(opts.Jobs, 1)
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = domain.MaxFileBytes
	}
	return &IngestService{
		registry:  registry,
		extractor: extractor,
		pipeline:  pipeline,
		embedder:  embedder,
		index:     index,
		docStore:  docStore,
		usage:     usage,
		opts:      opts,
		locks:     newKeyedMutex(),
		slots:     make(chan struct{}, opts.Jobs),
		jobs:      make(map[string]*ingestJob),
	}
}

// Ingest processes one file synchronously and returns its summary.
// Per-block and per-chunk failures are reported in the summary; an error
// means nothing was written for the document.
func (s *IngestService) Ingest(ctx context.Context, input domain.FileInput) (*domain.IngestionSummary, error) {
	if err := s.validate(&input); err != nil {
		return nil, err
	}
	return s.ingest(ctx, input)
}

// Submit starts a background ingestion and returns the document ID at once.
func (s *IngestService) Submit(ctx context.Context, input domain.FileInput) (string, error) {
	if err := s.validate(&input); err != nil {
		return "", err
	}
	id := input.DocumentID

	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok && !j.state.State.IsTerminal() {
		return "", fmt.Errorf("%w: %s", domain.ErrIngestInProgress, id)
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j := &ingestJob{
		state: domain.IngestJob{
			DocumentID:  id,
			Name:        input.Name,
			State:       domain.JobPending,
			SubmittedAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.jobs[id] = j

	s.wg.Add(1)
	go s.run(jobCtx, j, input)
	return id, nil
}

func (s *IngestService) run(ctx context.Context, j *ingestJob, input domain.FileInput) {
	defer s.wg.Done()
	defer close(j.done)
	defer j.cancel()

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		s.finish(j, nil, ctx.Err())
		return
	}

	s.mu.Lock()
	j.state.State = domain.JobRunning
	s.mu.Unlock()

	summary, err := s.ingest(ctx, input)
	s.finish(j, summary, err)
}

func (s *IngestService) finish(j *ingestJob, summary *domain.IngestionSummary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j.state.Summary = summary
	j.state.FinishedAt = time.Now()
	switch {
	case err == nil:
		j.state.State = domain.JobCompleted
	case errors.Is(err, context.Canceled):
		j.state.State = domain.JobCancelled
		j.state.Error = err.Error()
	default:
		j.state.State = domain.JobFailed
		j.state.Error = err.Error()
		logger.Warn("ingestion of %s failed: %v", j.state.Name, err)
	}
}

// Wait blocks until the job finishes or ctx is done. A finished job is
// released once waited for, so its state is no longer available to Status.
func (s *IngestService) Wait(ctx context.Context, documentID string) (*domain.IngestJob, error) {
	s.mu.Lock()
	j, ok := s.jobs[documentID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, documentID)
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[documentID] == j {
		delete(s.jobs, documentID)
	}
	state := j.state
	return &state, nil
}

// Status returns a snapshot of a job.
func (s *IngestService) Status(documentID string) (*domain.IngestJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, documentID)
	}
	state := j.state
	return &state, nil
}

// Cancel stops a running job. Cancelling a finished job does nothing.
func (s *IngestService) Cancel(documentID string) error {
	s.mu.Lock()
	j, ok := s.jobs[documentID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, documentID)
	}
	j.cancel()
	return nil
}

// Close cancels all running jobs and waits for them to stop.
func (s *IngestService) Close() {
	s.mu.Lock()
	for _, j := range s.jobs {
		j.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// validate checks the input for indexing.
func (s *IngestService) validate(input *domain.FileInput) error {
	if err := s.checkInput(input); err != nil {
		return err
	}
	if s.embedder == nil {
		return domain.ErrEmbeddingUnavailable
	}
	return nil
}

// checkInput checks the file itself and assigns a document ID when missing.
func (s *IngestService) checkInput(input *domain.FileInput) error {
	switch {
	case strings.TrimSpace(input.Name) == "":
		return fmt.Errorf("%w: file name is required", domain.ErrInvalidInput)
	case len(input.Content) == 0:
		return fmt.Errorf("%w: %s is empty", domain.ErrInvalidInput, input.Name)
	case len(input.Content) > s.opts.MaxFileBytes:
		return fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrInvalidInput, input.Name, s.opts.MaxFileBytes)
	}
	if input.DocumentID == "" {
		input.DocumentID = uuid.New().String()
	}
	return nil
}

// Extract normalises, routes and extracts a file without chunking,
// embedding or indexing it. Vision calls are made and counted as usual.
func (s *IngestService) Extract(ctx context.Context, input domain.FileInput) (*domain.ExtractionReport, error) {
	if err := s.checkInput(&input); err != nil {
		return nil, err
	}
	logger.Section("Extract " + input.Name)
	defer logger.Timed("extract " + input.Name)()

	report := &domain.ExtractionReport{Summary: domain.IngestionSummary{
		DocumentID: input.DocumentID,
		Name:       input.Name,
		StartedAt:  time.Now(),
	}}
	norm, err := s.registry.Normalise(ctx, &input, input.DocumentID)
	if err != nil {
		return nil, err
	}
	report.Summary.Title = norm.Title
	report.Summary.MIMEType = norm.MIMEType

	extracted, outcomes, err := s.extractor.Extract(ctx, norm.Blocks, input.RoutingPolicy(s.opts.Policy))
	if err != nil {
		return nil, err
	}
	for _, o := range outcomes {
		report.Summary.Record(o)
	}
	report.Blocks = extracted
	report.Summary.Duration = time.Since(report.Summary.StartedAt)
	return report, nil
}

func (s *IngestService) ingest(ctx context.Context, input domain.FileInput) (*domain.IngestionSummary, error) {
	logger.Section("Ingest " + input.Name)
	defer logger.Timed("ingest " + input.Name)()

	unlock, err := s.locks.lock(ctx, input.DocumentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	summary := &domain.IngestionSummary{
		DocumentID: input.DocumentID,
		Name:       input.Name,
		StartedAt:  time.Now(),
	}

	norm, err := s.registry.Normalise(ctx, &input, input.DocumentID)
	if err != nil {
		return nil, err
	}
	summary.Title = norm.Title
	summary.MIMEType = norm.MIMEType
	logger.Debug("normalised %s into %d blocks", input.Name, len(norm.Blocks))

	extracted, outcomes, err := s.extractor.Extract(ctx, norm.Blocks, input.RoutingPolicy(s.opts.Policy))
	if err != nil {
		return nil, err
	}
	doc := &domain.ExtractedDocument{DocumentID: input.DocumentID, Title: norm.Title}
	for i, o := range outcomes {
		summary.Record(o)
		if o.Status != domain.BlockFailed {
			doc.Blocks = append(doc.Blocks, extracted[i])
		}
	}

	chunks, err := s.pipeline.Process(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("chunking %s: %w", input.Name, err)
	}

	embedded, chunkErrs, err := s.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}
	summary.ChunksFailed = len(chunkErrs)
	summary.ChunkErrors = chunkErrs

	entries := make([]domain.IndexEntry, len(embedded))
	for i, c := range embedded {
		entries[i] = domain.NewIndexEntry(c)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.index.ReplaceDocument(ctx, input.DocumentID, entries); err != nil {
		return nil, fmt.Errorf("indexing %s: %w", input.Name, err)
	}
	summary.ChunksIndexed = len(entries)
	summary.Duration = time.Since(summary.StartedAt)

	s.persist(ctx, input, norm, summary)

	logger.Info("%s: %d blocks (%d downgraded, %d failed), %d chunks indexed, %d vision calls",
		input.Name, len(summary.Blocks), summary.Downgraded, summary.Failed, summary.ChunksIndexed, summary.VisionCalls)
	return summary, nil
}

// persist records the document and its summary. The index write has
// already succeeded, so failures here are only logged.
func (s *IngestService) persist(
	ctx context.Context, input domain.FileInput, norm *driven.NormaliseResult, summary *domain.IngestionSummary,
) {
	if s.docStore == nil {
		return
	}
	doc := &domain.Document{
		ID:         input.DocumentID,
		Name:       input.Name,
		MIMEType:   norm.MIMEType,
		SizeBytes:  int64(len(input.Content)),
		BlockCount: len(norm.Blocks),
		ChunkCount: summary.ChunksIndexed,
		Metadata:   map[string]string{"title": norm.Title},
		CreatedAt:  summary.StartedAt,
		UpdatedAt:  time.Now(),
	}
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		logger.Warn("saving document %s: %v", input.DocumentID, err)
		return
	}
	if err := s.docStore.SaveSummary(ctx, summary); err != nil {
		logger.Warn("saving summary for %s: %v", input.DocumentID, err)
	}
}

// embed attaches a vector to every chunk it can. Chunks whose embedding
// fails are dropped and reported; cancellation and dimension mismatches
// abort the document.
func (s *IngestService) embed(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, []string, error) {
	vectors := make([][]float32, len(chunks))
	failures := make([]error, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}
			vecs, err := retry(gctx, s.opts.Retry, func(ctx context.Context) ([][]float32, error) {
				s.usage.RecordEmbeddingCalls(1)
				return s.embedder.EmbedBatch(ctx, texts)
			})
			if err == nil && len(vecs) == len(texts) {
				copy(vectors[start:end], vecs)
				return nil
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
			logger.Debug("batch embedding failed, retrying chunks one by one: %v", err)

			for i := start; i < end; i++ {
				v, err := retry(gctx, s.opts.Retry, func(ctx context.Context) ([]float32, error) {
					s.usage.RecordEmbeddingCalls(1)
					return s.embedder.Embed(ctx, chunks[i].Text)
				})
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if err != nil {
					failures[i] = err
					continue
				}
				vectors[i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	dims := s.index.Dimensions()
	out := make([]domain.Chunk, 0, len(chunks))
	var errs []string
	for i, c := range chunks {
		if failures[i] != nil || vectors[i] == nil {
			err := fmt.Errorf("%w: chunk %s: %v", domain.ErrEmbeddingFailure, c.ID, failures[i])
			logger.Warn("%v", err)
			errs = append(errs, err.Error())
			continue
		}
		if len(vectors[i]) != dims {
			return nil, nil, &domain.DimensionMismatchError{Expected: dims, Got: len(vectors[i])}
		}
		c.Embedding = vectors[i]
		out = append(out, c)
	}
	return out, errs, nil
}

// keyedMutex serialises work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

// lock waits for the key and returns its unlock function.
func (k *keyedMutex) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	release := func() {
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			release()
		}, nil
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
}
