package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bkyoung/review-bridge/internal/cli"
)

func main() {
	if err := run(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The forge, tracker and archive clients are distribution-specific;
	// the deployment links them in here. The SMTP sender is resolved from
	// configuration when one is not injected.
	root := cli.NewRootCommand(cli.Dependencies{})
	return root.ExecuteContext(ctx)
}
