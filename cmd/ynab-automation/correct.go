package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canderson26/ynab-mcp-automation/internal/cli"
)

func correctCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct <merchant> <old-category> <new-category>",
		Short: "Record a categorization correction",
		Long: `Tell the learning store that a merchant was categorized wrongly.

The old category's confidence decays and the new category is bootstrapped,
so future transactions from this merchant lean toward the correction.`,
		Args: cobra.ExactArgs(3),
		RunE: runCorrect,
	}
	return cmd
}

func runCorrect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	merchant, oldCategory, newCategory := args[0], args[1], args[2]

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	result, err := store.RecordCorrection(ctx, merchant, oldCategory, newCategory)
	if err != nil {
		return fmt.Errorf("failed to record correction: %w", err)
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf(
		"Corrected %q: %s → %s (was %.0f%% confident)",
		merchant, oldCategory, newCategory, result.ConfidenceBefore)))

	return nil
}
