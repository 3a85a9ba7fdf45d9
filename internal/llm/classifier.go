package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/canderson26/ynab-mcp-automation/internal/common"
	"github.com/canderson26/ynab-mcp-automation/internal/model"
	"github.com/canderson26/ynab-mcp-automation/internal/service"
	"github.com/canderson26/ynab-mcp-automation/internal/usage"
)

// defaultCostPerCall is the rough per-call cost estimate fed into the usage
// tracker for budget accounting.
const defaultCostPerCall = 0.003

// Config holds configuration for the LLM classifier.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Rules       string // extra categorization guidance prepended to prompts
	Timeout     time.Duration
	Retry       service.RetryOptions
	Temperature float64
	MaxTokens   int
	CostPerCall float64
}

// Classifier implements service.Classifier on top of a provider Client,
// adding usage gating, bounded retries and response validation.
type Classifier struct {
	client      Client
	gate        service.UsageGate
	logger      *slog.Logger
	rules       string
	retryOpts   service.RetryOptions
	costPerCall float64
}

// NewClassifier creates an LLM-backed classifier.
func NewClassifier(cfg Config, gate service.UsageGate, logger *slog.Logger) (*Classifier, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "", "anthropic":
		client, err = newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	costPerCall := cfg.CostPerCall
	if costPerCall == 0 {
		costPerCall = defaultCostPerCall
	}

	return &Classifier{
		client:      client,
		gate:        gate,
		logger:      logger,
		rules:       cfg.Rules,
		retryOpts:   cfg.Retry,
		costPerCall: costPerCall,
	}, nil
}

// Classify asks the model for a category, with merchant history as context.
// The returned category is validated against the available list; anything
// else is a typed error for the decision layer to absorb.
func (c *Classifier) Classify(ctx context.Context, merchantName string, amount float64, categories []model.Category, history *model.MerchantHistory) (*model.Classification, error) {
	allowed, err := c.gate.CheckLimit(usage.ProviderClaude)
	if err != nil {
		return nil, fmt.Errorf("failed to check classifier usage: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: claude", common.ErrUsageLimitExceeded)
	}

	prompt := c.buildPrompt(merchantName, amount, categories, history)

	var resp ClassificationResponse
	operation := func() error {
		var classifyErr error
		resp, classifyErr = c.client.Classify(ctx, prompt)
		return classifyErr
	}

	if err := common.WithRetry(ctx, operation, c.retryOpts); err != nil {
		return nil, err
	}

	if err := c.gate.RecordUsage(usage.ProviderClaude, c.costPerCall); err != nil {
		c.logger.Warn("Failed to record classifier usage", "error", err)
	}

	if !categoryExists(categories, resp.Category) {
		return nil, &common.ValidationError{
			Field:   "category",
			Message: fmt.Sprintf("classifier returned unknown category %q", resp.Category),
		}
	}

	c.logger.Info("Transaction classified",
		"merchant", merchantName,
		"category", resp.Category,
		"confidence", resp.Confidence)

	return &model.Classification{
		Category:   resp.Category,
		Confidence: resp.Confidence,
		Reasoning:  resp.Reasoning,
	}, nil
}

// buildPrompt creates the classification prompt for one transaction.
func (c *Classifier) buildPrompt(merchantName string, amount float64, categories []model.Category, history *model.MerchantHistory) string {
	var sb strings.Builder

	if c.rules != "" {
		sb.WriteString(c.rules)
		sb.WriteString("\n\n")
	}

	names := make([]string, len(categories))
	for i, cat := range categories {
		names[i] = cat.Name
	}

	fmt.Fprintf(&sb, "Available categories: %s\n\n", strings.Join(names, ", "))
	fmt.Fprintf(&sb, "Merchant: %s\n", merchantName)
	fmt.Fprintf(&sb, "Amount: $%.2f\n\n", abs(amount))

	if history != nil && !history.IsNew && len(history.Entries) > 0 {
		sb.WriteString("Historical categorizations for this merchant:\n")
		for _, entry := range history.Entries {
			fmt.Fprintf(&sb, "- %s: %d times (%.0f%% confidence)\n",
				entry.CategoryName, entry.Count, entry.AvgConfidence*100)
		}
	} else {
		sb.WriteString("This is a new merchant with no history.\n")
	}

	sb.WriteString(`
Respond with ONLY a JSON object in this exact format:
{
  "category": "exact category name from the list",
  "confidence": 0.95,
  "reasoning": "brief explanation"
}`)

	return sb.String()
}

func categoryExists(categories []model.Category, name string) bool {
	for _, cat := range categories {
		if cat.Name == name {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
