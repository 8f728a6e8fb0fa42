// Command strata ingests geological documents and answers questions about
// them through specialised agents.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/strata/internal/adapters/driving/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetBootstrap(build)
	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
