package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/strata/internal/core/domain"
)

var (
	ingestID          string
	ingestJSON        bool
	ingestForceVision bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Ingest documents into the index",
	Long: `Normalises each file into content blocks, routes every block to text
extraction or a vision model, then chunks, embeds and indexes the result.

Files are ingested concurrently as background jobs; a file's document ID is
derived from its absolute path, so ingesting the same file again replaces
its previous chunks.

Supported formats: PDF, CSV/TSV, XLSX, DOCX, TXT/Markdown, PNG, JPEG, TIFF
and LAS well logs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestID, "id", "", "document ID to use (single file only)")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output summaries as JSON")
	ingestCmd.Flags().BoolVar(&ingestForceVision, "force-vision", false,
		"send every table and image to the vision model (overrides routing.force_vision)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errNotConfigured("ingest")
	}
	if ingestID != "" && len(args) > 1 {
		return errors.New("--id can only be used with a single file")
	}
	ctx := cmd.Context()

	type submitted struct {
		path string
		id   string
	}
	var jobs []submitted
	var errs []error
	for _, path := range args {
		input, err := readFileInput(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ingestID != "" {
			input.DocumentID = ingestID
		}
		if cmd.Flags().Changed("force-vision") {
			force := ingestForceVision
			input.ForceVision = &force
		}
		id, err := ingestService.Submit(ctx, input)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		jobs = append(jobs, submitted{path: path, id: id})
	}

	progress := !ingestJSON && term.IsTerminal(int(os.Stdout.Fd()))
	var summaries []*domain.IngestionSummary
	for i, j := range jobs {
		job, err := ingestService.Wait(ctx, j.id)
		if err != nil {
			// Interrupted: stop the remaining jobs so no partial document is indexed.
			for _, rest := range jobs[i:] {
				_ = ingestService.Cancel(rest.id)
			}
			return err
		}
		if job.State != domain.JobCompleted {
			errs = append(errs, fmt.Errorf("%s: %s: %s", j.path, job.State, job.Error))
			continue
		}
		summaries = append(summaries, job.Summary)
		if progress {
			cmd.Printf("[%d/%d] %s\n", i+1, len(jobs), j.path)
		}
		if !ingestJSON {
			cmd.Printf("%s -> %s\n", j.path, j.id)
			printSummary(cmd, job.Summary)
			cmd.Println()
		}
	}

	if ingestJSON {
		if err := printJSON(cmd, summaries); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

// readFileInput loads a file and gives it a document ID derived from its
// absolute path.
func readFileInput(path string) (domain.FileInput, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.FileInput{}, fmt.Errorf("%s: %w", path, err)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return domain.FileInput{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return domain.FileInput{
		Name:       filepath.Base(abs),
		Content:    content,
		DocumentID: documentIDForPath(abs),
	}, nil
}

// documentIDForPath returns a stable name-based UUID for a file path.
func documentIDForPath(abs string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs))).String()
}
