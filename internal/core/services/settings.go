package services

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// settingKind is how a configuration value is parsed from text.
type settingKind int

const (
	kindString settingKind = iota
	kindInt
	kindFloat
	kindBool
	kindDuration
	kindProvider
	kindMetric
)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider = "embedding.provider"
	keyEmbedModel    = "embedding.model"
	keyEmbedBaseURL  = "embedding.base_url"
	keyEmbedAPIKey   = "embedding.api_key"
	keyEmbedTimeout  = "embedding.timeout"

	keyLLMProvider = "llm.provider"
	keyLLMModel    = "llm.model"
	keyLLMBaseURL  = "llm.base_url"
	keyLLMAPIKey   = "llm.api_key"
	keyLLMTimeout  = "llm.timeout"

	keyVisionProvider = "vision.provider"
	keyVisionModel    = "vision.model"
	keyVisionBaseURL  = "vision.base_url"
	keyVisionAPIKey   = "vision.api_key"
	keyVisionTimeout  = "vision.timeout"

	keyIndexDims   = "index.dimensions"
	keyIndexMetric = "index.metric"

	keyChunkMaxChars = "chunking.max_chars"
	keyChunkOverlap  = "chunking.overlap"

	keyForceVision         = "routing.force_vision"
	keyMinTableRows        = "routing.min_table_rows"
	keyRaggedTolerance     = "routing.ragged_row_tolerance"
	keyMinTextLayerChars   = "routing.min_text_layer_chars"
	keyTextLayerSaturation = "routing.text_layer_saturation"
	keyTemplateBonus       = "routing.template_bonus"
	keyPrecheckConfidence  = "routing.precheck_confidence"
	keyMinVisionConfidence = "routing.min_vision_confidence"

	keyRetryAttempts   = "retry.max_attempts"
	keyRetryInitial    = "retry.initial_interval"
	keyRetryMax        = "retry.max_interval"
	keyRetryMultiplier = "retry.multiplier"

	keyThreshold     = "dispatch.threshold"
	keyKeywordBoost  = "dispatch.keyword_boost"
	keyMaxAgents     = "dispatch.max_agents"
	keyPerAgentK     = "dispatch.per_agent_k"
	keyContextBudget = "dispatch.context_budget"
	keyTokenBudget   = "dispatch.token_budget"
	keyHybrid        = "dispatch.hybrid_keyword"
	keySynthesize    = "dispatch.synthesize"
	keyAgentsFile    = "dispatch.agents_file"

	keyCacheEntries = "cache.embedding_entries"
	keyWorkers      = "concurrency.workers"
	keyIngestJobs   = "concurrency.ingest_jobs"
	keyRateLimit    = "rate_limit.requests_per_second"
	keyRateBurst    = "rate_limit.burst"
)

var settingKinds = map[string]settingKind{
	keyEmbedProvider: kindProvider, keyEmbedModel: kindString, keyEmbedBaseURL: kindString,
	keyEmbedAPIKey: kindString, keyEmbedTimeout: kindDuration,

	keyLLMProvider: kindProvider, keyLLMModel: kindString, keyLLMBaseURL: kindString,
	keyLLMAPIKey: kindString, keyLLMTimeout: kindDuration,

	keyVisionProvider: kindProvider, keyVisionModel: kindString, keyVisionBaseURL: kindString,
	keyVisionAPIKey: kindString, keyVisionTimeout: kindDuration,

	keyIndexDims: kindInt, keyIndexMetric: kindMetric,

	keyChunkMaxChars: kindInt, keyChunkOverlap: kindInt,

	keyForceVision: kindBool, keyMinTableRows: kindInt, keyRaggedTolerance: kindFloat,
	keyMinTextLayerChars: kindInt, keyTextLayerSaturation: kindInt, keyTemplateBonus: kindFloat,
	keyPrecheckConfidence: kindFloat, keyMinVisionConfidence: kindFloat,

	keyRetryAttempts: kindInt, keyRetryInitial: kindDuration, keyRetryMax: kindDuration,
	keyRetryMultiplier: kindFloat,

	keyThreshold: kindFloat, keyKeywordBoost: kindFloat, keyMaxAgents: kindInt,
	keyPerAgentK: kindInt, keyContextBudget: kindInt, keyTokenBudget: kindInt,
	keyHybrid: kindBool, keySynthesize: kindBool, keyAgentsFile: kindString,

	keyCacheEntries: kindInt, keyWorkers: kindInt, keyIngestJobs: kindInt,
	keyRateLimit: kindFloat, keyRateBurst: kindInt,
}

// SettingKeys returns every recognised configuration key, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingKinds))
	for k := range settingKinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
// The aiValidator parameter is optional (can be nil).
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
	}
}

// Get retrieves current application settings. Unset keys take their
// defaults, and empty API keys fall back to the provider's environment
// variable.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	settings := readSettings(s.configStore.Get)
	return &settings, nil
}

// Save validates and persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	if settings == nil {
		return fmt.Errorf("%w: settings are required", domain.ErrInvalidInput)
	}
	if err := validateSettings(settings); err != nil {
		return err
	}
	for _, kv := range settingValues(settings) {
		if kv.secret && kv.value == "" {
			continue
		}
		if err := s.configStore.Set(kv.key, kv.value); err != nil {
			return fmt.Errorf("save %s: %w", kv.key, err)
		}
	}
	return nil
}

// Set parses value for key and persists it. The value is rejected when it
// does not parse or would leave the settings invalid. Changing a provider
// resets its model to the provider default, and choosing an embedding model
// with known dimensions also updates index.dimensions.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := settingKinds[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	parsed, err := parseSetting(kind, strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, key, err)
	}

	updates := map[string]any{key: parsed}
	if model, ok := providerModelKeys[key]; ok {
		updates[model] = defaultModelFor(key, domain.AIProvider(parsed.(string)))
	}
	overlay := func(k string) (any, bool) {
		if v, ok := updates[k]; ok {
			return v, true
		}
		return s.configStore.Get(k)
	}
	candidate := readSettings(overlay)
	if key == keyEmbedProvider || key == keyEmbedModel {
		if d, ok := domain.EmbeddingDimensions()[candidate.Embedding.Model]; ok && d != candidate.Index.Dimensions {
			updates[keyIndexDims] = d
			candidate.Index.Dimensions = d
		}
	}
	if err := validateSettings(&candidate); err != nil {
		return err
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.configStore.Set(k, updates[k]); err != nil {
			return fmt.Errorf("save %s: %w", k, err)
		}
	}
	return nil
}

// providerModelKeys maps each provider key to the model key it resets.
var providerModelKeys = map[string]string{
	keyEmbedProvider:  keyEmbedModel,
	keyLLMProvider:    keyLLMModel,
	keyVisionProvider: keyVisionModel,
}

// Validate checks that the current settings are usable.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return validateSettings(settings)
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// Values returns every effective setting as text, sorted by key.
func (s *SettingsService) Values() ([]driving.Setting, error) {
	settings, err := s.Get()
	if err != nil {
		return nil, err
	}
	values := settingValues(settings)
	out := make([]driving.Setting, len(values))
	for i, kv := range values {
		out[i] = driving.Setting{Key: kv.key, Value: fmt.Sprint(kv.value), Secret: kv.secret}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ValidateConnections pings the configured embedding and completion providers.
func (s *SettingsService) ValidateConnections(ctx context.Context) error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := s.aiValidator.ValidateEmbedding(ctx, &settings.Embedding); err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(ctx, &settings.LLM)
}

// lookupFunc reads one raw configuration value.
type lookupFunc func(key string) (any, bool)

func readSettings(get lookupFunc) domain.AppSettings {
	d := domain.DefaultAppSettings()
	r := reader{get: get}

	return domain.AppSettings{
		Embedding: r.model(d.Embedding, keyEmbedProvider, keyEmbedModel, keyEmbedBaseURL, keyEmbedAPIKey, keyEmbedTimeout),
		LLM:       r.model(d.LLM, keyLLMProvider, keyLLMModel, keyLLMBaseURL, keyLLMAPIKey, keyLLMTimeout),
		Vision:    r.model(d.Vision, keyVisionProvider, keyVisionModel, keyVisionBaseURL, keyVisionAPIKey, keyVisionTimeout),
		Index: domain.IndexSettings{
			Dimensions: r.int(keyIndexDims, d.Index.Dimensions),
			Metric:     r.metric(keyIndexMetric, d.Index.Metric),
		},
		Chunking: domain.ChunkingSettings{
			MaxChars: r.int(keyChunkMaxChars, d.Chunking.MaxChars),
			Overlap:  r.int(keyChunkOverlap, d.Chunking.Overlap),
		},
		Routing: domain.RoutingPolicy{
			ForceVision:         r.bool(keyForceVision, d.Routing.ForceVision),
			MinTableRows:        r.int(keyMinTableRows, d.Routing.MinTableRows),
			RaggedRowTolerance:  r.float(keyRaggedTolerance, d.Routing.RaggedRowTolerance),
			MinTextLayerChars:   r.int(keyMinTextLayerChars, d.Routing.MinTextLayerChars),
			TextLayerSaturation: r.int(keyTextLayerSaturation, d.Routing.TextLayerSaturation),
			TemplateBonus:       r.float(keyTemplateBonus, d.Routing.TemplateBonus),
			PrecheckConfidence:  r.float(keyPrecheckConfidence, d.Routing.PrecheckConfidence),
			MinVisionConfidence: r.float(keyMinVisionConfidence, d.Routing.MinVisionConfidence),
		},
		Retry: domain.RetrySettings{
			MaxAttempts:     r.int(keyRetryAttempts, d.Retry.MaxAttempts),
			InitialInterval: r.duration(keyRetryInitial, d.Retry.InitialInterval),
			MaxInterval:     r.duration(keyRetryMax, d.Retry.MaxInterval),
			Multiplier:      r.float(keyRetryMultiplier, d.Retry.Multiplier),
		},
		Dispatch: domain.DispatchSettings{
			Threshold:     r.float(keyThreshold, d.Dispatch.Threshold),
			KeywordBoost:  r.float(keyKeywordBoost, d.Dispatch.KeywordBoost),
			MaxAgents:     r.int(keyMaxAgents, d.Dispatch.MaxAgents),
			PerAgentK:     r.int(keyPerAgentK, d.Dispatch.PerAgentK),
			ContextBudget: r.int(keyContextBudget, d.Dispatch.ContextBudget),
			TokenBudget:   r.int(keyTokenBudget, d.Dispatch.TokenBudget),
			HybridKeyword: r.bool(keyHybrid, d.Dispatch.HybridKeyword),
			Synthesize:    r.bool(keySynthesize, d.Dispatch.Synthesize),
			AgentsFile:    r.string(keyAgentsFile, d.Dispatch.AgentsFile),
		},
		Cache: domain.CacheSettings{
			EmbeddingEntries: r.int(keyCacheEntries, d.Cache.EmbeddingEntries),
		},
		Concurrency: domain.ConcurrencySettings{
			Workers:    r.int(keyWorkers, d.Concurrency.Workers),
			IngestJobs: r.int(keyIngestJobs, d.Concurrency.IngestJobs),
		},
		RateLimit: domain.RateLimitSettings{
			RequestsPerSecond: r.float(keyRateLimit, d.RateLimit.RequestsPerSecond),
			Burst:             r.int(keyRateBurst, d.RateLimit.Burst),
		},
	}
}

type settingValue struct {
	key    string
	value  any
	secret bool
}

// settingValues flattens settings into storable key/value pairs.
func settingValues(s *domain.AppSettings) []settingValue {
	model := func(m domain.ModelSettings, provider, name, baseURL, apiKey, timeout string) []settingValue {
		return []settingValue{
			{key: provider, value: m.Provider.String()},
			{key: name, value: m.Model},
			{key: baseURL, value: m.BaseURL},
			{key: apiKey, value: m.APIKey, secret: true},
			{key: timeout, value: m.Timeout.String()},
		}
	}
	var out []settingValue
	out = append(out, model(s.Embedding, keyEmbedProvider, keyEmbedModel, keyEmbedBaseURL, keyEmbedAPIKey, keyEmbedTimeout)...)
	out = append(out, model(s.LLM, keyLLMProvider, keyLLMModel, keyLLMBaseURL, keyLLMAPIKey, keyLLMTimeout)...)
	out = append(out, model(s.Vision, keyVisionProvider, keyVisionModel, keyVisionBaseURL, keyVisionAPIKey, keyVisionTimeout)...)
	return append(out,
		settingValue{key: keyIndexDims, value: s.Index.Dimensions},
		settingValue{key: keyIndexMetric, value: s.Index.Metric.String()},
		settingValue{key: keyChunkMaxChars, value: s.Chunking.MaxChars},
		settingValue{key: keyChunkOverlap, value: s.Chunking.Overlap},
		settingValue{key: keyForceVision, value: s.Routing.ForceVision},
		settingValue{key: keyMinTableRows, value: s.Routing.MinTableRows},
		settingValue{key: keyRaggedTolerance, value: s.Routing.RaggedRowTolerance},
		settingValue{key: keyMinTextLayerChars, value: s.Routing.MinTextLayerChars},
		settingValue{key: keyTextLayerSaturation, value: s.Routing.TextLayerSaturation},
		settingValue{key: keyTemplateBonus, value: s.Routing.TemplateBonus},
		settingValue{key: keyPrecheckConfidence, value: s.Routing.PrecheckConfidence},
		settingValue{key: keyMinVisionConfidence, value: s.Routing.MinVisionConfidence},
		settingValue{key: keyRetryAttempts, value: s.Retry.MaxAttempts},
		settingValue{key: keyRetryInitial, value: s.Retry.InitialInterval.String()},
		settingValue{key: keyRetryMax, value: s.Retry.MaxInterval.String()},
		settingValue{key: keyRetryMultiplier, value: s.Retry.Multiplier},
		settingValue{key: keyThreshold, value: s.Dispatch.Threshold},
		settingValue{key: keyKeywordBoost, value: s.Dispatch.KeywordBoost},
		settingValue{key: keyMaxAgents, value: s.Dispatch.MaxAgents},
		settingValue{key: keyPerAgentK, value: s.Dispatch.PerAgentK},
		settingValue{key: keyContextBudget, value: s.Dispatch.ContextBudget},
		settingValue{key: keyTokenBudget, value: s.Dispatch.TokenBudget},
		settingValue{key: keyHybrid, value: s.Dispatch.HybridKeyword},
		settingValue{key: keySynthesize, value: s.Dispatch.Synthesize},
		settingValue{key: keyAgentsFile, value: s.Dispatch.AgentsFile},
		settingValue{key: keyCacheEntries, value: s.Cache.EmbeddingEntries},
		settingValue{key: keyWorkers, value: s.Concurrency.Workers},
		settingValue{key: keyIngestJobs, value: s.Concurrency.IngestJobs},
		settingValue{key: keyRateLimit, value: s.RateLimit.RequestsPerSecond},
		settingValue{key: keyRateBurst, value: s.RateLimit.Burst},
	)
}

func parseSetting(kind settingKind, value string) (any, error) {
	switch kind {
	case kindInt:
		return strconv.Atoi(value)
	case kindFloat:
		return strconv.ParseFloat(value, 64)
	case kindBool:
		return strconv.ParseBool(value)
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, err
		}
		return d.String(), nil
	case kindProvider:
		p := domain.AIProvider(strings.ToLower(value))
		if !p.IsValid() {
			return nil, fmt.Errorf("unknown provider %q", value)
		}
		return p.String(), nil
	case kindMetric:
		m := domain.DistanceMetric(strings.ToLower(value))
		if !m.IsValid() {
			return nil, fmt.Errorf("unknown metric %q", value)
		}
		return m.String(), nil
	default:
		return value, nil
	}
}

// validateSettings reports the first setting that cannot work.
func validateSettings(s *domain.AppSettings) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
	}
	if _, ok := domain.DefaultEmbeddingModels()[s.Embedding.Provider]; !ok {
		return invalid("provider %s does not support embeddings", s.Embedding.Provider)
	}
	for _, m := range []struct {
		name string
		domain.ModelSettings
	}{{"embedding", s.Embedding}, {"llm", s.LLM}, {"vision", s.Vision}} {
		if strings.TrimSpace(m.Model) == "" {
			return invalid("%s.model is required", m.name)
		}
		if m.Timeout <= 0 {
			return invalid("%s.timeout must be positive", m.name)
		}
	}
	if s.Index.Dimensions <= 0 {
		return invalid("index.dimensions must be positive")
	}
	if d, ok := domain.EmbeddingDimensions()[s.Embedding.Model]; ok && d != s.Index.Dimensions {
		return invalid("index.dimensions is %d but %s produces %d", s.Index.Dimensions, s.Embedding.Model, d)
	}
	if s.Chunking.MaxChars <= 0 || s.Chunking.Overlap < 0 || s.Chunking.Overlap >= s.Chunking.MaxChars {
		return invalid("chunking.overlap must be in [0, max_chars)")
	}

	r := s.Routing
	if r.MinTableRows < 1 || r.MinTextLayerChars < 0 || r.TextLayerSaturation < 1 {
		return invalid("routing row and character limits must be positive")
	}
	for key, v := range map[string]float64{
		keyRaggedTolerance: r.RaggedRowTolerance, keyTemplateBonus: r.TemplateBonus,
		keyPrecheckConfidence: r.PrecheckConfidence, keyMinVisionConfidence: r.MinVisionConfidence,
		keyThreshold: s.Dispatch.Threshold, keyKeywordBoost: s.Dispatch.KeywordBoost,
	} {
		if v < 0 || v > 1 {
			return invalid("%s must be in [0, 1]", key)
		}
	}

	if s.Retry.MaxAttempts < 1 || s.Retry.Multiplier < 1 || s.Retry.InitialInterval <= 0 ||
		s.Retry.MaxInterval < s.Retry.InitialInterval {
		return invalid("retry needs at least one attempt, a multiplier of 1 or more and ordered intervals")
	}
	dp := s.Dispatch
	if dp.MaxAgents < 0 || dp.PerAgentK < 1 || dp.ContextBudget < 1 || dp.TokenBudget < 0 {
		return invalid("dispatch limits must be positive")
	}
	if s.Cache.EmbeddingEntries < 0 || s.Concurrency.Workers < 1 || s.Concurrency.IngestJobs < 1 {
		return invalid("cache size and concurrency must be positive")
	}
	if s.RateLimit.RequestsPerSecond < 0 || s.RateLimit.Burst < 1 {
		return invalid("rate_limit needs a non-negative rate and a burst of 1 or more")
	}
	return nil
}

// reader converts raw configuration values, falling back to defaults for
// missing or mistyped keys.
type reader struct {
	get lookupFunc
}

func (r reader) string(key, def string) string {
	if v, ok := r.get(key); ok {
		if str, ok := v.(string); ok && str != "" {
			return str
		}
	}
	return def
}

func (r reader) int(key string, def int) int {
	v, ok := r.get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

func (r reader) float(key string, def float64) float64 {
	v, ok := r.get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return def
	}
}

func (r reader) bool(key string, def bool) bool {
	if v, ok := r.get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func (r reader) duration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(r.string(key, ""))
	if err != nil {
		return def
	}
	return d
}

func (r reader) provider(key string, def domain.AIProvider) domain.AIProvider {
	p := domain.AIProvider(r.string(key, ""))
	if !p.IsValid() {
		return def
	}
	return p
}

func (r reader) metric(key string, def domain.DistanceMetric) domain.DistanceMetric {
	m := domain.DistanceMetric(r.string(key, ""))
	if !m.IsValid() {
		return def
	}
	return m
}

// model reads one model endpoint. Switching provider without naming a
// model picks that provider's default model.
func (r reader) model(def domain.ModelSettings, provider, model, baseURL, apiKey, timeout string) domain.ModelSettings {
	m := domain.ModelSettings{
		Provider: r.provider(provider, def.Provider),
		BaseURL:  r.string(baseURL, ""),
		APIKey:   r.string(apiKey, ""),
		Timeout:  r.duration(timeout, def.Timeout),
	}
	m.Model = r.string(model, "")
	if m.Model == "" {
		m.Model = def.Model
		if m.Provider != def.Provider {
			m.Model = defaultModelFor(provider, m.Provider)
		}
	}
	if m.Provider.IsLocal() && m.BaseURL == "" {
		m.BaseURL = def.BaseURL
	}
	if m.APIKey == "" && m.Provider.APIKeyEnv() != "" {
		m.APIKey = os.Getenv(m.Provider.APIKeyEnv())
	}
	return m
}

func defaultModelFor(providerKey string, p domain.AIProvider) string {
	var models map[domain.AIProvider]string
	switch providerKey {
	case keyEmbedProvider:
		models = domain.DefaultEmbeddingModels()
	case keyVisionProvider:
		models = domain.DefaultVisionModels()
	default:
		models = domain.DefaultLLMModels()
	}
	return models[p]
}
