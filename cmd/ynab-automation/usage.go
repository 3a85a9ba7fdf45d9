package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/canderson26/ynab-mcp-automation/internal/cli"
)

func usageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show API usage against configured budgets",
		RunE:  runUsage,
	}
}

func runUsage(_ *cobra.Command, _ []string) error {
	tracker, err := initUsageTracker()
	if err != nil {
		return fmt.Errorf("failed to init usage tracker: %w", err)
	}

	snapshot, err := tracker.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to read usage state: %w", err)
	}

	providers := make([]string, 0, len(snapshot))
	for provider := range snapshot {
		providers = append(providers, provider)
	}
	sort.Strings(providers)

	var sections []string
	for _, provider := range providers {
		counters := snapshot[provider]
		limits, _ := tracker.Limit(provider)

		lines := []string{
			strings.ToUpper(provider),
			fmt.Sprintf("  Daily:   %s", formatBudget(counters.Daily, limits.Daily)),
			fmt.Sprintf("  Monthly: %s", formatBudget(counters.Monthly, limits.Monthly)),
		}
		if limits.CostLimit > 0 {
			lines = append(lines, fmt.Sprintf("  Cost:    $%.2f / $%.2f", counters.CostEstimate, limits.CostLimit))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	fmt.Println(cli.RenderBox("API Usage", strings.Join(sections, "\n\n")))
	return nil
}

func formatBudget(used, limit int) string {
	if limit == 0 {
		return fmt.Sprintf("%d (unlimited)", used)
	}
	return fmt.Sprintf("%d / %d", used, limit)
}
