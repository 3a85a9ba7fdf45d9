package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/canderson26/ynab-mcp-automation/internal/llm"
	"github.com/canderson26/ynab-mcp-automation/internal/service"
	"github.com/canderson26/ynab-mcp-automation/internal/storage"
	"github.com/canderson26/ynab-mcp-automation/internal/telegram"
	"github.com/canderson26/ynab-mcp-automation/internal/usage"
	"github.com/canderson26/ynab-mcp-automation/internal/ynab"
)

// envKeyReplacer maps viper's dotted config keys onto env var segments.
var envKeyReplacer = strings.NewReplacer(".", "_")

func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "ynab-automation"), nil
}

// initStorage opens the confidence store and brings the schema current.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dir, err := dataDir()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(dir, "merchants.db")
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initUsageTracker builds the per-provider API budget gate.
func initUsageTracker() (*usage.Tracker, error) {
	statePath := viper.GetString("usage.path")
	if statePath == "" {
		dir, err := dataDir()
		if err != nil {
			return nil, err
		}
		statePath = filepath.Join(dir, "usage.json")
	}

	viper.SetDefault("usage.claude.daily", 100)
	viper.SetDefault("usage.claude.monthly", 2000)
	viper.SetDefault("usage.claude.cost_limit", 10.0)
	viper.SetDefault("usage.ynab.daily", 500)
	viper.SetDefault("usage.ynab.monthly", 10000)

	limits := map[string]usage.Limits{
		usage.ProviderClaude: {
			Daily:     viper.GetInt("usage.claude.daily"),
			Monthly:   viper.GetInt("usage.claude.monthly"),
			CostLimit: viper.GetFloat64("usage.claude.cost_limit"),
		},
		usage.ProviderYNAB: {
			Daily:   viper.GetInt("usage.ynab.daily"),
			Monthly: viper.GetInt("usage.ynab.monthly"),
		},
	}

	return usage.NewTracker(statePath, limits)
}

func retryOptions() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  viper.GetInt("retry.max_attempts"),
		InitialDelay: viper.GetDuration("retry.initial_delay"),
		MaxDelay:     viper.GetDuration("retry.max_delay"),
		Multiplier:   viper.GetFloat64("retry.multiplier"),
	}
}

// initLedger builds the YNAB client from config.
func initLedger(gate service.UsageGate) (service.Ledger, error) {
	cfg := ynab.Config{
		AccessToken: viper.GetString("ynab.access_token"),
		BudgetID:    viper.GetString("ynab.budget_id"),
		BaseURL:     viper.GetString("ynab.base_url"),
		Timeout:     viper.GetDuration("ynab.timeout"),
		Retry:       retryOptions(),
	}
	return ynab.NewClient(cfg, gate, slog.Default())
}

// initClassifier builds the LLM classifier from config.
func initClassifier(gate service.UsageGate) (service.Classifier, error) {
	cfg := llm.Config{
		Provider:    viper.GetString("llm.provider"),
		APIKey:      viper.GetString("llm.api_key"),
		Model:       viper.GetString("llm.model"),
		Rules:       viper.GetString("llm.rules"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
		CostPerCall: viper.GetFloat64("llm.cost_per_call"),
		Timeout:     viper.GetDuration("llm.timeout"),
		Retry:       retryOptions(),
	}
	return llm.NewClassifier(cfg, gate, slog.Default())
}

// initNotifier builds the Telegram notifier, or returns nil when it is not
// configured. Summaries are optional.
func initNotifier() (service.Notifier, error) {
	botToken := viper.GetString("telegram.bot_token")
	chatID := viper.GetString("telegram.chat_id")
	if botToken == "" || chatID == "" {
		slog.Debug("Telegram not configured, daily summaries disabled")
		return nil, nil
	}

	cfg := telegram.Config{
		BotToken: botToken,
		ChatID:   chatID,
		Timeout:  viper.GetDuration("telegram.timeout"),
	}
	return telegram.NewClient(cfg, slog.Default())
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
