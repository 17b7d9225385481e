package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/ashita-ai/kanshi"
)

var version = "dev" // set via -ldflags at build time

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// run hosts the telemetry core as a standalone sidecar: config comes
// entirely from KANSHI_* env vars, and the process sits in the evaluation
// loop until a shutdown signal.
func run(ctx context.Context, logger *slog.Logger) error {
	app, err := kanshi.New(
		kanshi.WithLogger(logger),
		kanshi.WithVersion(version),
	)
	if err != nil {
		return err
	}

	app.Start(ctx)

	<-ctx.Done()
	fmt.Println()
	slog.Info("kanshi shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return app.Stop(stopCtx)
}
