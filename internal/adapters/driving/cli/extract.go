package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/strata/internal/core/domain"
)

var (
	extractJSON        bool
	extractFull        bool
	extractForceVision bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [file...]",
	Short: "Show how files would be extracted, without indexing them",
	Long: `Normalises each file, routes every block and runs extraction, then prints
the routing decision and extracted text per block. Nothing is embedded or
written to the index; vision calls are still made and counted.

Use it to check routing on sample documents before ingesting them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "output reports as JSON")
	extractCmd.Flags().BoolVar(&extractFull, "full", false, "print the full extracted text of each block")
	extractCmd.Flags().BoolVar(&extractForceVision, "force-vision", false,
		"send every table and image to the vision model (overrides routing.force_vision)")
	rootCmd.AddCommand(extractCmd)
}

// extractedBlockView is the JSON shape of one extracted block.
type extractedBlockView struct {
	Page       int      `json:"page"`
	Sequence   int      `json:"sequence"`
	Type       string   `json:"type"`
	Path       string   `json:"path"`
	Confidence float64  `json:"confidence"`
	Rationale  []string `json:"rationale"`
	Status     string   `json:"status"`
	Error      string   `json:"error,omitempty"`
	Text       string   `json:"text"`
}

type extractionView struct {
	File        string               `json:"file"`
	Title       string               `json:"title"`
	MIMEType    string               `json:"mime_type"`
	Succeeded   int                  `json:"succeeded"`
	Downgraded  int                  `json:"downgraded"`
	Failed      int                  `json:"failed"`
	VisionCalls int                  `json:"vision_calls"`
	Blocks      []extractedBlockView `json:"blocks"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errNotConfigured("ingest")
	}
	ctx := cmd.Context()

	var views []extractionView
	var errs []error
	for _, path := range args {
		input, err := readFileInput(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if cmd.Flags().Changed("force-vision") {
			force := extractForceVision
			input.ForceVision = &force
		}
		report, err := ingestService.Extract(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		view := newExtractionView(path, report)
		if extractJSON {
			views = append(views, view)
			continue
		}
		printExtraction(cmd, view)
	}

	if extractJSON {
		if err := printJSON(cmd, views); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func newExtractionView(path string, r *domain.ExtractionReport) extractionView {
	s := r.Summary
	v := extractionView{
		File:        path,
		Title:       s.Title,
		MIMEType:    s.MIMEType,
		Succeeded:   s.Succeeded,
		Downgraded:  s.Downgraded,
		Failed:      s.Failed,
		VisionCalls: s.VisionCalls,
	}
	for i, o := range s.Blocks {
		b := extractedBlockView{
			Page:       o.PageIndex + 1,
			Sequence:   o.Sequence,
			Type:       string(o.Type),
			Path:       string(o.Decision.Path),
			Confidence: o.Decision.Confidence,
			Status:     string(o.Status),
			Error:      o.Error,
		}
		for _, tag := range o.Decision.Rationale {
			b.Rationale = append(b.Rationale, string(tag))
		}
		if i < len(r.Blocks) {
			b.Text = r.Blocks[i].Text
			// A downgraded block was extracted along the cheap path.
			b.Path = string(r.Blocks[i].Path)
		}
		v.Blocks = append(v.Blocks, b)
	}
	return v
}

func printExtraction(cmd *cobra.Command, v extractionView) {
	cmd.Printf("%s (%s)\n", v.File, v.MIMEType)
	if v.Title != "" {
		cmd.Printf("Title:    %s\n", v.Title)
	}
	cmd.Printf("Blocks:   %d succeeded, %d downgraded, %d failed\n", v.Succeeded, v.Downgraded, v.Failed)
	cmd.Printf("Vision:   %d calls\n", v.VisionCalls)
	for _, b := range v.Blocks {
		cmd.Printf("\n[p.%d #%d] %s -> %s (%.2f) %s [%s]\n",
			b.Page, b.Sequence, b.Type, b.Path, b.Confidence, b.Status, strings.Join(b.Rationale, ", "))
		if b.Error != "" {
			cmd.Printf("  error: %s\n", b.Error)
		}
		text := b.Text
		if !extractFull {
			text = snippet(text, 200)
		}
		if text != "" {
			cmd.Printf("  %s\n", text)
		}
	}
	cmd.Println()
}
