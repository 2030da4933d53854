// Command devrun is the development bootstrap for the nameday server: it
// enters its own directory, activates the project environment, opens the API
// docs in a browser and serves the application with auto-reload.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"nameday/internal/devops"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	os.Exit(devops.ExitCode(err))
}
