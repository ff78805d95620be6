package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/moyedx3/figure-scrapper/cmd/scraperd/commands"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	commands.ExecuteContext(ctx)
}
