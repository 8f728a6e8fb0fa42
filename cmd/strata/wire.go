package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/strata/internal/adapters/driven/ai"
	"github.com/custodia-labs/strata/internal/adapters/driven/config/file"
	"github.com/custodia-labs/strata/internal/adapters/driven/index/hybrid"
	"github.com/custodia-labs/strata/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/strata/internal/adapters/driving/cli"
	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/services"
	"github.com/custodia-labs/strata/internal/logger"
	"github.com/custodia-labs/strata/internal/normalisers/builtin"
	"github.com/custodia-labs/strata/internal/postprocessors"
)

// resolveDirs fills in the default configuration and data directories.
func resolveDirs(opts cli.Options) (configDir, dataDir string, err error) {
	configDir, dataDir = opts.ConfigDir, opts.DataDir
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", fmt.Errorf("getting home directory: %w", err)
		}
		configDir = filepath.Join(home, ".strata")
	}
	if dataDir == "" {
		dataDir = filepath.Join(configDir, "data")
	}
	return configDir, dataDir, nil
}

// build wires the adapters and services for one command run.
func build(ctx context.Context, opts cli.Options) (*cli.Services, func(), error) {
	configDir, dataDir, err := resolveDirs(opts)
	if err != nil {
		return nil, nil, err
	}

	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())
	if opts.SettingsOnly {
		return &cli.Services{Settings: settingsService}, func() {}, nil
	}

	settings, err := settingsService.Get()
	if err != nil {
		return nil, nil, err
	}
	if err := settingsService.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration (fix with 'strata config set'): %w", err)
	}

	var closers []func()
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*cli.Services, func(), error) {
		release()
		return nil, nil, err
	}

	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return fail(fmt.Errorf("opening metadata store: %w", err))
	}
	closers = append(closers, func() { closeQuietly("metadata store", store.Close) })

	index, err := hybrid.Open(filepath.Join(dataDir, "index"), hybrid.Options{
		Dimensions: settings.Index.Dimensions,
		Metric:     settings.Index.Metric,
	})
	if err != nil {
		return fail(fmt.Errorf("opening index: %w", err))
	}
	closers = append(closers, func() { closeQuietly("index", index.Close) })
	logger.Debug("index: %d dims, %s, %d documents", index.Dimensions(), index.Metric(), len(index.Documents()))

	usage := services.NewUsageTracker()
	models := ai.Init(ctx, *settings, usage)
	closers = append(closers, models.Close)

	prompts, err := file.NewPromptStore(filepath.Join(configDir, "prompts"))
	if err != nil {
		return fail(err)
	}
	profiles, err := file.LoadAgentProfiles(settings.Dispatch.AgentsFile)
	if err != nil {
		return fail(fmt.Errorf("loading agents: %w", err))
	}

	registry := builtin.Registry()
	processors := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(processors)
	pipeline, err := processors.BuildPipeline(domain.PipelineConfigFor(settings.Chunking))
	if err != nil {
		return fail(fmt.Errorf("building chunk pipeline: %w", err))
	}

	extractor := services.NewExtractor(models.Vision, usage, settings.Retry, settings.Concurrency.Workers)
	extractor.SetPromptStore(prompts)

	docStore := store.DocumentStore()
	ingest := services.NewIngestService(registry, extractor, pipeline, models.Embedding, index, docStore, usage,
		services.IngestOptions{
			Policy:  settings.Routing,
			Retry:   settings.Retry,
			Workers: settings.Concurrency.Workers,
			Jobs:    settings.Concurrency.IngestJobs,
		})
	closers = append(closers, ingest.Close)

	dispatch := services.NewDispatchService(index, models.Embedding, models.Completion, profiles, usage,
		settings.Dispatch, settings.Retry)
	dispatch.SetPromptStore(prompts)

	return &cli.Services{
		Ingest:     ingest,
		Query:      dispatch,
		Document:   services.NewDocumentService(docStore, index),
		Usage:      usage,
		Settings:   settingsService,
		Extensions: registry.SupportedExtensions(),
	}, release, nil
}

func closeQuietly(name string, fn func() error) {
	if err := fn(); err != nil {
		logger.Warn("closing %s: %v", name, err)
	}
}
