package domain

import "time"

// MaxFileBytes is the largest file accepted for ingestion (200 MiB).
const MaxFileBytes = 200 << 20

// FileInput is a file submitted for ingestion.
type FileInput struct {
	// Name is the file name; its extension selects a normaliser.
	Name string

	// MIMEType is the declared content type, optional.
	MIMEType string

	// Content is the raw file bytes.
	Content []byte

	// DocumentID re-ingests an existing document when set.
	DocumentID string

	// ForceVision overrides the configured routing policy for this file
	// when set.
	ForceVision *bool
}

// RoutingPolicy returns base with the per-file overrides applied.
func (in *FileInput) RoutingPolicy(base RoutingPolicy) RoutingPolicy {
	if in.ForceVision != nil {
		base.ForceVision = *in.ForceVision
	}
	return base
}

// BlockStatus is the per-block ingestion outcome.
type BlockStatus string

// Block outcomes.
const (
	// BlockSucceeded means the block was extracted along its decided path.
	BlockSucceeded BlockStatus = "succeeded"

	// BlockDowngraded means a vision block fell back to cheap extraction.
	BlockDowngraded BlockStatus = "downgraded"

	// BlockFailed means no content could be extracted.
	BlockFailed BlockStatus = "failed"
)

// BlockOutcome records what happened to one block during ingestion.
type BlockOutcome struct {
	BlockID   string
	PageIndex int
	Sequence  int
	Type      BlockType
	Decision  ExtractionDecision
	Status    BlockStatus
	Error     string

	// VisionCalls counts vision attempts, retries included.
	VisionCalls int
}

// IngestionSummary reports partial success for one document.
type IngestionSummary struct {
	DocumentID    string
	Name          string
	Title         string
	MIMEType      string
	Blocks        []BlockOutcome
	Succeeded     int
	Downgraded    int
	Failed        int
	ChunksIndexed int
	ChunksFailed  int
	ChunkErrors   []string
	VisionCalls   int
	StartedAt     time.Time
	Duration      time.Duration
}

// Record appends a block outcome and updates the counters.
func (s *IngestionSummary) Record(o BlockOutcome) {
	s.Blocks = append(s.Blocks, o)
	s.VisionCalls += o.VisionCalls
	switch o.Status {
	case BlockSucceeded:
		s.Succeeded++
	case BlockDowngraded:
		s.Downgraded++
	case BlockFailed:
		s.Failed++
	}
}

// JobState is the lifecycle state of a background ingestion job.
type JobState string

// Job states.
const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// IsTerminal reports whether the job has finished.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// IngestJob is a snapshot of a background ingestion job.
type IngestJob struct {
	DocumentID  string
	Name        string
	State       JobState
	Summary     *IngestionSummary
	Error       string
	SubmittedAt time.Time
	FinishedAt  time.Time
}

// ExtractedBlock is a block together with the text recovered from it.
type ExtractedBlock struct {
	Block ContentBlock
	Text  string
	Path  ExtractionPath
}

// ExtractedDocument is the chunker's input: extracted blocks in document order.
type ExtractedDocument struct {
	DocumentID string
	Title      string
	Blocks     []ExtractedBlock
}

// ExtractionReport is the result of extracting a file without indexing it.
// Blocks is aligned with Summary.Blocks.
type ExtractionReport struct {
	Summary IngestionSummary
	Blocks  []ExtractedBlock
}
