// Package cli implements the strata command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/strata/internal/core/ports/driving"
	"github.com/custodia-labs/strata/internal/logger"
)

// version is set at build time with -ldflags "-X ...cli.version=v1.2.3".
var version = "dev"

// Services are the driving ports the commands call.
type Services struct {
	Ingest   driving.IngestService
	Query    driving.QueryService
	Document driving.DocumentService
	Usage    driving.UsageService
	Settings driving.SettingsService

	// Extensions lists the file extensions the normalisers accept.
	Extensions []string
}

// Options are the global flags passed to the bootstrap.
type Options struct {
	ConfigDir string
	DataDir   string

	// SettingsOnly skips opening the index and model services, so that
	// configuration can be repaired when they fail to start.
	SettingsOnly bool
}

// Bootstrap builds the services for one command run. The returned func
// releases them.
type Bootstrap func(ctx context.Context, opts Options) (*Services, func(), error)

// annotationSettingsOnly marks commands that only need the settings service.
const annotationSettingsOnly = "settings-only"

// annotationNoServices marks commands that need no services at all.
const annotationNoServices = "no-services"

var (
	bootstrap Bootstrap
	cleanup   func()

	ingestService   driving.IngestService
	queryService    driving.QueryService
	documentService driving.DocumentService
	usageService    driving.UsageService
	settingsService driving.SettingsService
	extensions      []string
)

var (
	verbose   bool
	configDir string
	dataDir   string
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Geological document retrieval and agent routing",
	Long: `Strata ingests geological documents (PDFs, spreadsheets, well logs,
scanned images, text) and answers questions by routing them to specialised
analysis agents.

Blocks that plain text extraction can handle never reach a vision model;
'strata usage' reports how many vision calls that saved.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if cleanup != nil {
			cleanup()
			cleanup = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print routing, index and dispatch details to stderr")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.strata)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.strata/data)")
}

// SetBootstrap sets the function that builds services before each command.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetServices installs services directly, bypassing the bootstrap.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	ingestService = s.Ingest
	queryService = s.Query
	documentService = s.Document
	usageService = s.Usage
	settingsService = s.Settings
	extensions = s.Extensions
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	loadEnv()

	if bootstrap == nil || cmd.Annotations[annotationNoServices] == "true" {
		return nil
	}
	opts := Options{
		ConfigDir:    configDir,
		DataDir:      dataDir,
		SettingsOnly: cmd.Annotations[annotationSettingsOnly] == "true",
	}
	services, release, err := bootstrap(cmd.Context(), opts)
	if err != nil {
		return err
	}
	SetServices(services)
	cleanup = release
	return nil
}

// loadEnv reads API keys from .env in the working directory and in the
// configuration directory. Variables already set are not overridden.
func loadEnv() {
	paths := []string{".env"}
	if dir := configDir; dir != "" {
		paths = append(paths, filepath.Join(dir, ".env"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".strata", ".env"))
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("loading %s: %v", p, err)
		}
	}
}

// errNotConfigured reports a service the bootstrap did not provide.
func errNotConfigured(name string) error {
	return fmt.Errorf("%s service not configured", name)
}
