// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/zerofrost11/cortex-client/cmd"
	"github.com/zerofrost11/cortex-client/internal/observability"
)

// main is the entry point for the cortex CLI application.
func main() {
	// Interrupts cancel the command context so an in-flight task shuts
	// down cleanly instead of being killed mid-write.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := cmd.ExecuteContext(ctx)
	observability.Sync()
	os.Exit(code)
}
