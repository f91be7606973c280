// File: cmd/meroapply/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sbhusal-dev/meroapply/cmd"
	"github.com/sbhusal-dev/meroapply/internal/observability"
)

// main is the entry point of the application.
func main() {
	// A context that listens for interrupt signals for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		observability.Sync()
		if errors.Is(err, context.Canceled) {
			// Graceful shutdown initiated by a signal.
			os.Exit(0)
		}
		os.Exit(1)
	}
	observability.Sync()
}
