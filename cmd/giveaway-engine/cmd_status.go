package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikey/giveaway-engine/internal/core"
	"github.com/mikey/giveaway-engine/internal/di"
	"github.com/mikey/giveaway-engine/internal/factory"
)

var statusCmd = &cobra.Command{
	Use:   "status FINGERPRINT",
	Short: "Show the participation record for a fingerprint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := di.BuildContainer(configPath)
		if err != nil {
			return fmt.Errorf("failed to build dependency container: %w", err)
		}
		return container.Invoke(func(st factory.Store) error {
			defer st.Close()
			return printStatus(cmd, st, core.Fingerprint(args[0]))
		})
	},
}

func printStatus(cmd *cobra.Command, st core.FingerprintStore, fp core.Fingerprint) error {
	out := cmd.OutOrStdout()

	rec, err := st.Lookup(context.Background(), fp)
	if errors.Is(err, core.ErrNotFound) {
		fmt.Fprintf(out, "No participation record for %s\n", fp.Short())
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}

	fmt.Fprintf(out, "Fingerprint:  %s\n", rec.Fingerprint)
	fmt.Fprintf(out, "Status:       %s\n", rec.Status)
	fmt.Fprintf(out, "Target:       %s\n", rec.TargetURL)
	fmt.Fprintf(out, "Candidate:    %s\n", rec.CandidateID)
	fmt.Fprintf(out, "Attempts:     %d\n", rec.Attempts)
	if rec.LastError != core.KindNone {
		fmt.Fprintf(out, "Last error:   %s\n", rec.LastError)
	}
	fmt.Fprintf(out, "Created:      %s\n", formatTime(rec.CreatedAt))
	fmt.Fprintf(out, "Last attempt: %s\n", formatTime(rec.LastAttemptAt))
	if rec.Status == core.StatusPending {
		fmt.Fprintf(out, "Next attempt: %s\n", formatTime(rec.NextAttemptAt))
	}
	fmt.Fprintf(out, "Version:      %d\n", rec.Version)
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}
