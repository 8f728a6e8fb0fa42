package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/strata/internal/core/domain"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect agent profiles",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the loaded agent profiles",
	Args:  cobra.NoArgs,
	RunE:  runAgentsList,
}

func init() {
	agentsCmd.AddCommand(agentsListCmd)
	rootCmd.AddCommand(agentsCmd)
}

func runAgentsList(cmd *cobra.Command, _ []string) error {
	if queryService == nil {
		return errNotConfigured("query")
	}

	for _, p := range queryService.Agents() {
		marker := ""
		if p.Default {
			marker = " (default)"
		}
		cmd.Printf("%s%s\n", p.ID, marker)
		cmd.Printf("  Name:      %s\n", p.Name)
		cmd.Printf("  Specialty: %s\n", p.SpecialtyTag)
		if len(p.Keywords) > 0 {
			cmd.Printf("  Keywords:  %s\n", strings.Join(p.Keywords, ", "))
		}
		if !p.RetrievalFilter.IsEmpty() {
			cmd.Printf("  Filter:    %s\n", describeFilter(p.RetrievalFilter))
		}
		cmd.Println()
	}
	return nil
}

func describeFilter(p domain.MetadataPredicate) string {
	var parts []string
	for _, m := range p.Modalities {
		parts = append(parts, string(m))
	}
	for _, e := range p.ExtractionPaths {
		parts = append(parts, "path="+string(e))
	}
	for _, k := range p.Keywords {
		parts = append(parts, "keyword="+k)
	}
	if len(parts) == 0 {
		return "custom"
	}
	return strings.Join(parts, ", ")
}
