// Package main implements the batchrun command, which applies one SQL
// statement to batches of work items read from a file or a query.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/phrazzld/batchrun/internal/config"
	"github.com/phrazzld/batchrun/internal/job"
	"github.com/phrazzld/batchrun/internal/platform/logger"
)

// Process exit codes
const (
	exitSuccess   = 0
	exitInitError = 1
	exitFailed    = 2
	exitStopped   = 3
)

func main() {
	os.Exit(run())
}

// run loads the configuration, runs one job and returns the exit code
func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return exitInitError
	}

	log, err := logger.Setup(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logger: %v\n", err)
		return exitInitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize application", "error", err)
		return exitInitError
	}
	defer app.cleanup()

	result := app.run(ctx)
	return exitCode(result, cfg.Job.NoItemsExitCode, log)
}

// exitCode maps the outcome of a job to the process exit code
func exitCode(result job.Result, noItemsExitCode int, log *slog.Logger) int {
	switch result.Status {
	case job.StatusSucceeded:
		return exitSuccess
	case job.StatusStopped:
		return exitStopped
	case job.StatusNoWork:
		log.Info("no work items to process", "exit_code", noItemsExitCode)
		return noItemsExitCode
	default:
		return exitFailed
	}
}
