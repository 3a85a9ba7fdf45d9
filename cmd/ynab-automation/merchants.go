package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/canderson26/ynab-mcp-automation/internal/cli"
)

func merchantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merchants",
		Short: "Show learned merchant rules and store statistics",
		Long: `List merchants whose learned confidence is high enough that they are
categorized without a classifier call, plus overall store statistics.`,
		RunE: runMerchants,
	}

	cmd.Flags().Float64("min-score", 90, "minimum confidence score (0-100) to list")

	return cmd
}

func runMerchants(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	minScore, _ := cmd.Flags().GetFloat64("min-score")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	suggestions, err := store.GetMerchantSuggestions(ctx, minScore)
	if err != nil {
		return fmt.Errorf("failed to fetch merchant suggestions: %w", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch store stats: %w", err)
	}

	fmt.Println(cli.FormatTitle("Merchant Rules"))

	if len(suggestions) == 0 {
		fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("No merchants at or above %.0f%% confidence yet.", minScore)))
	} else {
		header := fmt.Sprintf("%-30s %-25s %8s %6s %6s", "Merchant", "Category", "Score", "Uses", "Fixes")
		fmt.Println(cli.TableHeaderStyle.Render(header))
		for _, s := range suggestions {
			fmt.Printf("%-30s %-25s %7.0f%% %6d %6d\n",
				truncate(s.MerchantName, 30),
				truncate(s.CategoryName, 25),
				s.ConfidenceScore,
				s.SuccessCount,
				s.CorrectionCount)
		}
	}

	summary := strings.Join([]string{
		fmt.Sprintf("Merchants: %d", stats.TotalMerchants),
		fmt.Sprintf("Categorizations: %d", stats.TotalCategorizations),
		fmt.Sprintf("Auto-approved: %d", stats.AutoApprovedCount),
		fmt.Sprintf("Corrections: %d", stats.CorrectionCount),
		fmt.Sprintf("Avg confidence: %.0f%%", stats.AvgConfidence),
	}, "\n")
	fmt.Println(cli.RenderBox("Store Statistics", summary))

	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
