// Package telegram sends run summaries to a Telegram chat via the Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/canderson26/ynab-mcp-automation/internal/common"
	"github.com/canderson26/ynab-mcp-automation/internal/model"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	defaultTimeout = 10 * time.Second

	// maxDetailLines bounds the per-transaction lines in a summary so large
	// runs stay readable on a phone.
	maxDetailLines = 3
)

// Config holds construction options for the notifier.
type Config struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Timeout  time.Duration
}

// Client posts daily summaries through a Telegram bot.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	botToken   string
	chatID     string
	baseURL    string
}

// NewClient creates a Telegram notifier.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram chat id is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Client{
		botToken:   cfg.BotToken,
		chatID:     cfg.ChatID,
		baseURL:    baseURL,
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// SendDailySummary posts the run outcome, with a short list of transactions
// left pending for review.
func (c *Client) SendDailySummary(ctx context.Context, stats model.RunStats, details []model.ProcessedTransaction, date time.Time) error {
	text := formatSummary(stats, details, date)
	return c.sendMessage(ctx, text)
}

func formatSummary(stats model.RunStats, details []model.ProcessedTransaction, date time.Time) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "📊 Daily YNAB Summary - %s\n\n", date.Format("Jan 2, 2006"))
	fmt.Fprintf(&sb, "Processed: %d\n", stats.Processed)
	fmt.Fprintf(&sb, "Auto-approved: %d\n", stats.Approved)
	fmt.Fprintf(&sb, "Pending review: %d\n", stats.Pending)
	if stats.Errors > 0 {
		fmt.Fprintf(&sb, "Errors: %d\n", stats.Errors)
	}

	var pending []model.ProcessedTransaction
	for _, d := range details {
		if !d.Approved {
			pending = append(pending, d)
		}
	}
	if len(pending) == 0 {
		return sb.String()
	}

	sb.WriteString("\nNeeds review:\n")
	for i, d := range pending {
		if i == maxDetailLines {
			fmt.Fprintf(&sb, "... and %d more\n", len(pending)-maxDetailLines)
			break
		}
		fmt.Fprintf(&sb, "• %s: $%.2f → %s (%.0f%%)\n",
			d.Payee, abs(d.Amount), d.Category, d.Confidence*100)
	}

	return sb.String()
}

func (c *Client) sendMessage(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id": c.chatID,
		"text":    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &common.NotificationError{Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &common.NotificationError{
			Message: fmt.Sprintf("telegram returned %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	c.logger.Debug("Daily summary sent", "chat_id", c.chatID)
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
