package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/strata/internal/core/domain"
)

var documentJSON bool

var documentCmd = &cobra.Command{
	Use:     "document",
	Aliases: []string{"doc"},
	Short:   "Manage ingested documents",
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show a document and its latest ingestion summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document and all of its indexed chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDelete,
}

func init() {
	documentListCmd.Flags().BoolVar(&documentJSON, "json", false, "output as JSON")
	documentGetCmd.Flags().BoolVar(&documentJSON, "json", false, "output as JSON")
	documentCmd.AddCommand(documentListCmd, documentGetCmd, documentDeleteCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errNotConfigured("document")
	}

	docs, err := documentService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if documentJSON {
		return printJSON(cmd, docs)
	}

	if len(docs) == 0 {
		cmd.Println("No documents ingested.")
		return nil
	}
	cmd.Printf("%d documents:\n\n", len(docs))
	for i := range docs {
		d := &docs[i]
		cmd.Printf("  %s  %-32s %6d chunks  %s\n", d.ID, d.Name, d.ChunkCount, d.UpdatedAt.Format(time.DateTime))
	}
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errNotConfigured("document")
	}

	doc, err := documentService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	summary, err := documentService.Summary(cmd.Context(), args[0])
	if err != nil {
		summary = nil
	}
	if documentJSON {
		return printJSON(cmd, struct {
			Document *domain.Document
			Summary  *domain.IngestionSummary `json:",omitempty"`
		}{doc, summary})
	}

	cmd.Printf("ID:        %s\n", doc.ID)
	cmd.Printf("Name:      %s\n", doc.Name)
	cmd.Printf("Type:      %s\n", doc.MIMEType)
	cmd.Printf("Size:      %d bytes\n", doc.SizeBytes)
	cmd.Printf("Blocks:    %d\n", doc.BlockCount)
	cmd.Printf("Chunks:    %d\n", doc.ChunkCount)
	cmd.Printf("Ingested:  %s\n", doc.CreatedAt.Format(time.DateTime))
	cmd.Printf("Updated:   %s\n", doc.UpdatedAt.Format(time.DateTime))
	if summary != nil {
		cmd.Println()
		printSummary(cmd, summary)
	}
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errNotConfigured("document")
	}
	if err := documentService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	cmd.Printf("Deleted %s\n", args[0])
	return nil
}

// printSummary writes the per-document ingestion outcome.
func printSummary(cmd *cobra.Command, s *domain.IngestionSummary) {
	cmd.Printf("Blocks:   %d succeeded, %d downgraded, %d failed\n", s.Succeeded, s.Downgraded, s.Failed)
	cmd.Printf("Chunks:   %d indexed, %d failed\n", s.ChunksIndexed, s.ChunksFailed)
	cmd.Printf("Vision:   %d calls\n", s.VisionCalls)
	for _, b := range s.Blocks {
		if b.Status == domain.BlockSucceeded {
			continue
		}
		cmd.Printf("  page %d block %d (%s): %s %s\n", b.PageIndex+1, b.Sequence, b.Type, b.Status, b.Error)
	}
	for _, e := range s.ChunkErrors {
		cmd.Printf("  chunk: %s\n", e)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
