package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings, vision or completion.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderGroq is Groq's OpenAI-compatible API.
	AIProviderGroq AIProvider = "groq"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderGroq, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderGroq || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// APIKeyEnv returns the environment variable holding the provider's key.
func (p AIProvider) APIKeyEnv() string {
	switch p {
	case AIProviderOpenAI:
		return "OPENAI_API_KEY"
	case AIProviderGroq:
		return "GROQ_API_KEY"
	case AIProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderGroq:
		return "Groq (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// ModelSettings configures one model endpoint.
type ModelSettings struct {
	// Provider is the service provider.
	Provider AIProvider

	// Model is the model name.
	Model string

	// BaseURL is the API endpoint, empty for the provider default.
	BaseURL string

	// APIKey is the API key for cloud providers.
	APIKey string

	// Timeout bounds a single request.
	Timeout time.Duration
}

// IsConfigured returns true if the provider is set up.
func (m ModelSettings) IsConfigured() bool {
	if !m.Provider.IsValid() {
		return false
	}
	if m.Provider.RequiresAPIKey() && m.APIKey == "" {
		return false
	}
	return true
}

// IndexSettings configures the hybrid index.
type IndexSettings struct {
	// Dimensions is the embedding vector size.
	Dimensions int

	// Metric is the vector distance metric.
	Metric DistanceMetric
}

// ChunkingSettings configures the chunker.
type ChunkingSettings struct {
	// MaxChars is the maximum chunk length in characters.
	MaxChars int

	// Overlap is the number of characters shared by consecutive text chunks.
	Overlap int
}

// RetrySettings bounds exponential backoff for model calls.
type RetrySettings struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DispatchSettings configures agent selection and context assembly.
type DispatchSettings struct {
	// Threshold is the minimum classifier score to select an agent.
	Threshold float64

	// KeywordBoost is added when a profile keyword occurs in the query.
	KeywordBoost float64

	// MaxAgents optionally caps the number of agents per query.
	// Zero invokes every agent that clears the threshold.
	MaxAgents int

	// PerAgentK is the number of hits each agent retrieves.
	PerAgentK int

	// ContextBudget caps the merged context in chunks.
	ContextBudget int

	// TokenBudget caps the merged context in estimated tokens, 0 for no cap.
	TokenBudget int

	// HybridKeyword fuses keyword hits with vector hits.
	HybridKeyword bool

	// Synthesize merges multiple agent answers with a final completion.
	Synthesize bool

	// AgentsFile is an optional TOML or YAML file of agent profiles.
	AgentsFile string
}

// CacheSettings sizes the model response caches.
type CacheSettings struct {
	EmbeddingEntries int
}

// ConcurrencySettings bounds parallel work.
type ConcurrencySettings struct {
	// Workers bounds concurrent extraction and embedding calls per document.
	Workers int

	// IngestJobs bounds concurrent background ingestion jobs.
	IngestJobs int
}

// RateLimitSettings throttles outbound model calls.
type RateLimitSettings struct {
	// RequestsPerSecond is the sustained rate, 0 for unlimited.
	RequestsPerSecond float64

	// Burst is the token bucket size.
	Burst int
}

// AppSettings holds all application settings.
type AppSettings struct {
	Embedding   ModelSettings
	LLM         ModelSettings
	Vision      ModelSettings
	Index       IndexSettings
	Chunking    ChunkingSettings
	Routing     RoutingPolicy
	Retry       RetrySettings
	Dispatch    DispatchSettings
	Cache       CacheSettings
	Concurrency ConcurrencySettings
	RateLimit   RateLimitSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// Cloud providers are left unconfigured; the local Ollama defaults work
// out of the box when an Ollama server is running.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: ModelSettings{
			Provider: AIProviderOllama,
			Model:    "all-minilm",
			BaseURL:  "http://localhost:11434",
			Timeout:  30 * time.Second,
		},
		LLM: ModelSettings{
			Provider: AIProviderOllama,
			Model:    "llama3.2",
			BaseURL:  "http://localhost:11434",
			Timeout:  120 * time.Second,
		},
		Vision: ModelSettings{
			Provider: AIProviderOllama,
			Model:    "llava",
			BaseURL:  "http://localhost:11434",
			Timeout:  120 * time.Second,
		},
		Index: IndexSettings{
			Dimensions: 384, // all-minilm
			Metric:     MetricCosine,
		},
		Chunking: ChunkingSettings{
			MaxChars: 1000,
			Overlap:  200,
		},
		Routing: DefaultRoutingPolicy(),
		Retry: RetrySettings{
			MaxAttempts:     3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
		},
		Dispatch: DispatchSettings{
			Threshold:     0.35,
			KeywordBoost:  0.25,
			MaxAgents:     0,
			PerAgentK:     8,
			ContextBudget: 10,
			HybridKeyword: true,
		},
		Cache: CacheSettings{
			EmbeddingEntries: 1024,
		},
		Concurrency: ConcurrencySettings{
			Workers:    4,
			IngestJobs: 2,
		},
		RateLimit: RateLimitSettings{
			RequestsPerSecond: 0,
			Burst:             1,
		},
	}
}

// AllProviders returns every supported provider.
func AllProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderGroq,
		AIProviderAnthropic,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "all-minilm",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderGroq:      "llama-3.3-70b-versatile",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// DefaultVisionModels returns default vision-capable models per provider.
func DefaultVisionModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llava",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderGroq:      "llama-3.2-90b-vision-preview",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}

// PipelineConfig holds post-processor pipeline configuration.
// Uses generic map-based config for extensibility - new processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration as generic maps.
	// Key is processor name, value is processor-specific config.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// PipelineConfigFor builds the default pipeline from chunking settings.
func PipelineConfigFor(c ChunkingSettings) PipelineConfig {
	return PipelineConfig{
		Processors: []string{"chunker", "whitespace"},
		ProcessorConfigs: map[string]map[string]any{
			"chunker": {
				"chunk_size": c.MaxChars,
				"overlap":    c.Overlap,
			},
		},
	}
}
