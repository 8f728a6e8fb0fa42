package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/strata/internal/core/domain"
)

var (
	usageReset bool
	usageJSON  bool
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show model calls and vision calls saved",
	Long: `Reports the counters of the current usage session: routing decisions,
vision, embedding and completion calls, cache hits and the share of blocks
that avoided a vision call.

Counters live in the running process. They are most useful from
'strata serve', where the MCP usage tool and /metrics read the same session.`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().BoolVar(&usageReset, "reset", false, "start a new session after reporting")
	usageCmd.Flags().BoolVar(&usageJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, _ []string) error {
	if usageService == nil {
		return errNotConfigured("usage")
	}

	snap := usageService.Snapshot()
	if usageReset {
		snap = usageService.Reset()
	}
	if usageJSON {
		return printJSON(cmd, snap)
	}
	printUsage(cmd, snap)
	return nil
}

func printUsage(cmd *cobra.Command, u domain.UsageSnapshot) {
	cmd.Printf("Session %s (since %s)\n\n", u.SessionID, u.StartedAt.Format(time.DateTime))
	cmd.Printf("Decisions:        %d text-only, %d vision\n", u.TextOnlyDecisions, u.VisionDecisions)
	cmd.Printf("Vision saved:     %d calls (%.0f%% of decisions)\n", u.VisionAvoided, u.SavingsRatio()*100)
	cmd.Printf("Vision calls:     %d (%d failed)\n", u.VisionCalls, u.VisionFailures)
	cmd.Printf("Embedding calls:  %d (%d cache hits)\n", u.EmbeddingCalls, u.CacheHits)
	cmd.Printf("Completions:      %d (%d/%d tokens in/out)\n", u.CompletionCalls, u.InputTokens, u.OutputTokens)
	cmd.Printf("Queries:          %d\n", u.Queries)
	cmd.Printf("Blocks:           %d downgraded, %d failed\n", u.BlocksDowngraded, u.BlocksFailed)
}
