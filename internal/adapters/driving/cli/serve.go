package cli

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/strata/internal/adapters/driving/mcp"
	"github.com/custodia-labs/strata/internal/adapters/driving/metrics"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so AI assistants can query,
ingest and delete documents and read usage counters.

By default the server speaks JSON-RPC over stdio. With --http it listens
on the given address instead and also serves Prometheus metrics at /metrics.

Examples:
  # Stdio mode (for desktop assistants)
  strata serve

  # HTTP mode with metrics
  strata serve --http :8080

Assistant configuration:
  {
    "mcpServers": {
      "strata": {
        "command": "/path/to/strata",
        "args": ["serve"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "http", "", "listen address for HTTP mode, e.g. :8080 (empty = stdio)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	server, err := mcp.NewServer(&mcp.Ports{
		Query:    queryService,
		Ingest:   ingestService,
		Document: documentService,
		Usage:    usageService,
	})
	if err != nil {
		return err
	}

	if serveAddr == "" {
		return server.Run(cmd.Context())
	}

	extra := map[string]http.Handler{}
	if usageService != nil {
		extra["/metrics"] = metrics.Handler(usageService)
	}
	cmd.PrintErrf("MCP server listening on %s (metrics at /metrics)\n", serveAddr)
	return server.RunHTTP(cmd.Context(), serveAddr, extra)
}
