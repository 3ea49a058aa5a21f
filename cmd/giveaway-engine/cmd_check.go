package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/adapters/source"
	"github.com/mikey/giveaway-engine/internal/core"
	"github.com/mikey/giveaway-engine/internal/di"
	"github.com/mikey/giveaway-engine/internal/utils"
)

var checkFlags di.CheckFlags

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Classify one email and show what the engine would do, without acting",
	RunE:  runCheck,
}

func init() {
	f := checkCmd.Flags()
	f.StringVar(&checkFlags.InputFile, "file", "", "Input email file (use stdin if not specified)")
	f.StringVar(&checkFlags.Provider, "provider", "", "Override classifier.provider (openai, gemini, bedrock, http)")
	f.Float64Var(&checkFlags.Threshold, "threshold", 0, "Override engine.legitimacy_threshold")
	f.BoolVar(&checkFlags.Verbose, "verbose", false, "Enable verbose logging")
	f.BoolVar(&checkFlags.JSONLog, "json-log", false, "Output logs in JSON format")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	checkFlags.ConfigFile = configPath

	container, err := di.BuildCheckContainer(&checkFlags)
	if err != nil {
		return fmt.Errorf("failed to build dependency container: %w", err)
	}

	return container.Invoke(func(logger *zap.Logger, classifier *core.ClassifierAdapter, senders core.SenderFilter) error {
		defer logger.Sync()

		raw, ref, err := readInput(cmd.InOrStdin())
		if err != nil {
			return err
		}
		c, err := source.Parse(raw, ref)
		if err != nil {
			return err
		}

		fp := core.ComputeFingerprint(c)
		target := utils.FirstEntryLink(c.Body)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Sender:      %s\n", c.Sender)
		fmt.Fprintf(out, "Subject:     %s\n", c.Subject)
		fmt.Fprintf(out, "Fingerprint: %s\n", fp)
		fmt.Fprintf(out, "Entry link:  %s\n", target)

		if senders.IsBlocked(c.Sender) {
			fmt.Fprintf(out, "Decision:    %s\n", core.DecisionBlockedSender)
			return nil
		}

		start := time.Now()
		result, err := classifier.Score(context.Background(), c)
		if err != nil {
			fmt.Fprintf(out, "Decision:    %s (%v)\n", core.DecisionDeferred, err)
			return nil
		}

		decision := classifier.Verdict(result)
		if decision == core.DecisionParticipate && target == "" {
			decision = core.DecisionNoTarget
		}

		fmt.Fprintf(out, "Score:       %.4f\n", result.Score)
		fmt.Fprintf(out, "Confidence:  %.4f\n", result.Confidence)
		fmt.Fprintf(out, "Model:       %s\n", result.ModelVersion)
		fmt.Fprintf(out, "Explanation: %s\n", result.Explanation)
		fmt.Fprintf(out, "Decision:    %s\n", decision)
		fmt.Fprintf(out, "Took:        %v\n", time.Since(start).Round(time.Millisecond))
		return nil
	})
}

func readInput(stdin io.Reader) ([]byte, string, error) {
	if checkFlags.InputFile == "" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return raw, "stdin", nil
	}
	raw, err := os.ReadFile(checkFlags.InputFile)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", checkFlags.InputFile, err)
	}
	return raw, checkFlags.InputFile, nil
}
