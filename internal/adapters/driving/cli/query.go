package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/strata/internal/core/domain"
)

var (
	queryAgent       string
	queryDocs        []string
	queryJSON        bool
	queryShowContext bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question about the ingested documents",
	Long: `Routes the question to the best matching agents, retrieves context for
each from the hybrid index, and answers with the completion model.

Use --agent to force an agent ('strata agents list' shows them) and --doc
to restrict retrieval to specific documents.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryAgent, "agent", "a", "", "agent ID to use instead of automatic selection")
	queryCmd.Flags().StringSliceVarP(&queryDocs, "doc", "d", nil, "restrict retrieval to these document IDs")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the full result as JSON")
	queryCmd.Flags().BoolVar(&queryShowContext, "context", false, "print the retrieved context")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errNotConfigured("query")
	}

	result, err := queryService.Query(cmd.Context(), domain.Query{
		Text:          strings.Join(args, " "),
		AgentHint:     queryAgent,
		DocumentScope: queryDocs,
	})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if queryJSON {
		return printJSON(cmd, result)
	}

	agents := make([]string, len(result.Selected))
	for i, s := range result.Selected {
		agents[i] = fmt.Sprintf("%s (%.2f, %s)", s.AgentID, s.Confidence, s.Reason)
	}
	cmd.Printf("Agents: %s\n", strings.Join(agents, ", "))
	if len(result.FailedAgents) > 0 {
		cmd.Printf("Failed: %s\n", strings.Join(result.FailedAgents, ", "))
	}
	cmd.Println()

	showContext := queryShowContext
	if result.Answer != "" {
		cmd.Println(result.Answer)
	} else {
		cmd.Println("No completion model configured; showing retrieved context.")
		showContext = true
	}

	if showContext {
		cmd.Println()
		cmd.Println("Context:")
		for i, item := range result.Context {
			md := item.Hit.Entry.Metadata
			cmd.Printf("[%d] %s p.%d-%d %s via %s (%.3f)\n", i+1, titleOrID(md), md.PageRange.Start+1, md.PageRange.End+1,
				md.Modality, item.AgentID, item.Hit.Score)
			cmd.Printf("    %s\n", snippet(item.Hit.Entry.Text, 200))
		}
	}

	cost := result.Cost
	cmd.Printf("\n%d embedding, %d completion calls, %d/%d tokens in/out, %s\n",
		cost.EmbeddingCalls, cost.CompletionCalls, cost.Tokens.InputTokens, cost.Tokens.OutputTokens,
		cost.Duration.Round(1e6))
	return nil
}

func titleOrID(md domain.ChunkMetadata) string {
	if md.Title != "" {
		return md.Title
	}
	return md.DocumentID
}

// snippet collapses whitespace and truncates text to n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
