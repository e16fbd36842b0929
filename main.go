package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-discover/pkg/cli"
	"github.com/ekaya-inc/ekaya-discover/pkg/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(Version).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ekaya-discover: %s\n", logging.SanitizeError(err))
		stop()
		os.Exit(1)
	}
}
