package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/di"
	"github.com/mikey/giveaway-engine/internal/ports"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll on a schedule until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		container, err := di.BuildContainer(configPath)
		if err != nil {
			return fmt.Errorf("failed to build dependency container: %w", err)
		}
		return container.Invoke(runScheduled)
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single poll cycle and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		container, err := di.BuildContainer(configPath)
		if err != nil {
			return fmt.Errorf("failed to build dependency container: %w", err)
		}
		return container.Invoke(func(logger *zap.Logger, runner ports.Runner, lc *di.Lifecycle) error {
			return runOnce(cmd, logger, runner, lc)
		})
	},
}

func runScheduled(logger *zap.Logger, runner ports.Runner, lc *di.Lifecycle) error {
	defer logger.Sync()
	defer closeAll(logger, lc)

	if err := runner.Start(); err != nil {
		logger.Error("Failed to start scheduler", zap.Error(err))
		return err
	}
	logger.Info("Giveaway engine started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("Shutting down...")

	if err := runner.Stop(); err != nil {
		logger.Error("Failed to stop scheduler", zap.Error(err))
	}
	logger.Info("Shutdown complete")
	return nil
}

func runOnce(cmd *cobra.Command, logger *zap.Logger, runner ports.Runner, lc *di.Lifecycle) error {
	defer logger.Sync()
	defer closeAll(logger, lc)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := runner.RunOnce(ctx)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Resumed:       %d\n", report.Resumed)
	fmt.Fprintf(out, "Polled:        %d\n", report.Polled)
	fmt.Fprintf(out, "Source errors: %d\n", report.SourceErrors)
	for decision, n := range report.Decisions {
		fmt.Fprintf(out, "  %-18s %d\n", decision, n)
	}
	return err
}

func closeAll(logger *zap.Logger, lc *di.Lifecycle) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := lc.Close(ctx); err != nil {
		logger.Warn("Some resources did not close cleanly", zap.Error(err))
	}
}
