package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/canderson26/ynab-mcp-automation/internal/cli"
	"github.com/canderson26/ynab-mcp-automation/internal/engine"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Categorize unapproved transactions",
		Long: `Fetch unapproved transactions from YNAB, categorize each one using
merchant history and the LLM classifier, and write the results back.

High-confidence categorizations are auto-approved; the rest are left
pending with a suggested category in the memo.`,
		RunE: runRun,
	}

	cmd.Flags().Int("since-days", 7, "look back this many days for transactions")
	cmd.Flags().Bool("progress", true, "show a progress bar")
	_ = viper.BindPFlag("engine.since_days", cmd.Flags().Lookup("since-days"))
	_ = viper.BindPFlag("engine.progress", cmd.Flags().Lookup("progress"))

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	start := time.Now()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	tracker, err := initUsageTracker()
	if err != nil {
		return fmt.Errorf("failed to init usage tracker: %w", err)
	}

	ledger, err := initLedger(tracker)
	if err != nil {
		return fmt.Errorf("failed to init ynab client: %w", err)
	}

	classifier, err := initClassifier(tracker)
	if err != nil {
		return fmt.Errorf("failed to init classifier: %w", err)
	}

	notifier, err := initNotifier()
	if err != nil {
		return fmt.Errorf("failed to init notifier: %w", err)
	}

	decider := engine.NewDecider(store, classifier, slog.Default())
	eng := engine.New(engine.Config{
		SinceDays: viper.GetInt("engine.since_days"),
		Progress:  viper.GetBool("engine.progress"),
	}, ledger, store, decider, notifier, slog.Default())

	stats, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("Processed: %d\nAuto-approved: %d\nPending review: %d\nErrors: %d\nElapsed: %s",
		stats.Processed, stats.Approved, stats.Pending, stats.Errors, formatDuration(time.Since(start)))
	fmt.Println(cli.RenderBox("Categorization Run", summary))

	storeStats, err := store.Stats(ctx)
	if err != nil {
		slog.Warn("Failed to read store stats", "error", err)
		return nil
	}
	fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf(
		"Store: %d merchants, %d categorizations, %d corrections",
		storeStats.TotalMerchants, storeStats.TotalCategorizations, storeStats.CorrectionCount)))

	return nil
}
