package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/orangehq/orange-agent/cmd"
	"github.com/orangehq/orange-agent/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer observability.Sync()

	cmd.ExecuteContext(ctx)
}
