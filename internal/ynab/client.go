// Package ynab implements the budgeting-ledger client against the YNAB v1
// API, wrapped with usage gating, rate limiting and bounded retries.
package ynab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/canderson26/ynab-mcp-automation/internal/common"
	"github.com/canderson26/ynab-mcp-automation/internal/model"
	"github.com/canderson26/ynab-mcp-automation/internal/service"
	"github.com/canderson26/ynab-mcp-automation/internal/usage"
)

const (
	defaultBaseURL = "https://api.ynab.com/v1"
	defaultTimeout = 30 * time.Second

	// YNAB allows 200 requests per rolling hour per token.
	defaultMaxHourlyRequests = 200
)

// Config holds construction options for the ledger client.
type Config struct {
	AccessToken       string
	BudgetID          string
	BaseURL           string
	Timeout           time.Duration
	MaxHourlyRequests int
	Retry             service.RetryOptions
}

// Client talks to the YNAB API for one budget.
type Client struct {
	httpClient *http.Client
	gate       service.UsageGate
	window     *slidingWindow
	logger     *slog.Logger
	baseURL    string
	budgetID   string
	retryOpts  service.RetryOptions
}

// NewClient creates a ledger client. Every request is gated by the usage
// tracker and the rolling-hour window before it leaves the process.
func NewClient(cfg Config, gate service.UsageGate, logger *slog.Logger) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("ynab access token is required")
	}
	if cfg.BudgetID == "" {
		return nil, fmt.Errorf("ynab budget id is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	maxHourly := cfg.MaxHourlyRequests
	if maxHourly == 0 {
		maxHourly = defaultMaxHourlyRequests
	}

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	httpClient := oauth2.NewClient(context.Background(), tokenSource)
	httpClient.Timeout = timeout

	return &Client{
		baseURL:    baseURL,
		budgetID:   cfg.BudgetID,
		httpClient: httpClient,
		gate:       gate,
		window:     newSlidingWindow(maxHourly, time.Hour),
		logger:     logger,
		retryOpts:  cfg.Retry,
	}, nil
}

// errorResponse is the YNAB API error envelope.
type errorResponse struct {
	Error struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Detail string `json:"detail"`
	} `json:"error"`
}

// do issues one gated, rate-limited, retried request and decodes the "data"
// envelope into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	allowed, err := c.gate.CheckLimit(usage.ProviderYNAB)
	if err != nil {
		return fmt.Errorf("failed to check ynab usage: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: ynab", common.ErrUsageLimitExceeded)
	}

	operation := func() error {
		if err := c.window.tryAcquire(); err != nil {
			return err
		}

		var reqBody io.Reader
		if body != nil {
			jsonBody, marshalErr := json.Marshal(body)
			if marshalErr != nil {
				return fmt.Errorf("failed to marshal request: %w", marshalErr)
			}
			reqBody = bytes.NewReader(jsonBody)
		}

		req, reqErr := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if reqErr != nil {
			return fmt.Errorf("failed to create request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return fmt.Errorf("request failed: %w", doErr)
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("failed to read response: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return &common.LedgerError{
				StatusCode: resp.StatusCode,
				Message:    "rate limited by ynab",
				Err:        common.ErrRateLimit,
			}
		}

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			var apiErr errorResponse
			message := http.StatusText(resp.StatusCode)
			if unmarshalErr := json.Unmarshal(respBody, &apiErr); unmarshalErr == nil && apiErr.Error.Detail != "" {
				message = apiErr.Error.Detail
			}
			return &common.LedgerError{
				StatusCode: resp.StatusCode,
				Message:    message,
			}
		}

		if out == nil {
			return nil
		}

		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if unmarshalErr := json.Unmarshal(respBody, &envelope); unmarshalErr != nil {
			return &common.LedgerError{
				StatusCode: resp.StatusCode,
				Message:    "invalid response envelope",
				Err:        unmarshalErr,
			}
		}
		if unmarshalErr := json.Unmarshal(envelope.Data, out); unmarshalErr != nil {
			return &common.LedgerError{
				StatusCode: resp.StatusCode,
				Message:    "invalid response payload",
				Err:        unmarshalErr,
			}
		}

		return nil
	}

	if err := common.WithRetry(ctx, operation, c.retryOpts); err != nil {
		return err
	}

	if err := c.gate.RecordUsage(usage.ProviderYNAB, 0); err != nil {
		c.logger.Warn("Failed to record ynab usage", "error", err)
	}

	return nil
}

// wireTransaction is the YNAB transaction shape; amounts are milliunits.
type wireTransaction struct {
	ID           string  `json:"id"`
	Date         string  `json:"date"`
	PayeeName    string  `json:"payee_name"`
	CategoryName string  `json:"category_name"`
	CategoryID   string  `json:"category_id"`
	AccountName  string  `json:"account_name"`
	Memo         string  `json:"memo"`
	Amount       int64   `json:"amount"`
	Approved     bool    `json:"approved"`
	Deleted      bool    `json:"deleted"`
}

func (w wireTransaction) toModel() model.Transaction {
	date, _ := time.Parse("2006-01-02", w.Date)
	return model.Transaction{
		ID:           w.ID,
		Date:         date,
		Amount:       float64(w.Amount) / 1000, // milliunits to dollars
		PayeeName:    w.PayeeName,
		CategoryName: w.CategoryName,
		CategoryID:   w.CategoryID,
		AccountName:  w.AccountName,
		Memo:         w.Memo,
		Approved:     w.Approved,
	}
}

// ListUnapprovedTransactions fetches transactions from the last sinceDays
// days that are neither approved nor deleted, in ledger order.
func (c *Client) ListUnapprovedTransactions(ctx context.Context, sinceDays int) ([]model.Transaction, error) {
	since := time.Now().AddDate(0, 0, -sinceDays).Format("2006-01-02")
	path := fmt.Sprintf("/budgets/%s/transactions?since_date=%s", c.budgetID, since)

	var payload struct {
		Transactions []wireTransaction `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}

	var transactions []model.Transaction
	for _, wt := range payload.Transactions {
		if wt.Approved || wt.Deleted {
			continue
		}
		transactions = append(transactions, wt.toModel())
	}

	c.logger.Debug("Fetched unapproved transactions",
		"total", len(payload.Transactions),
		"unapproved", len(transactions),
		"since", since)

	return transactions, nil
}

// ListCategories fetches all visible categories, flattened across groups.
func (c *Client) ListCategories(ctx context.Context) ([]model.Category, error) {
	path := fmt.Sprintf("/budgets/%s/categories", c.budgetID)

	var payload struct {
		CategoryGroups []struct {
			Name       string `json:"name"`
			Hidden     bool   `json:"hidden"`
			Categories []struct {
				ID      string `json:"id"`
				Name    string `json:"name"`
				Hidden  bool   `json:"hidden"`
				Deleted bool   `json:"deleted"`
			} `json:"categories"`
		} `json:"category_groups"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}

	var categories []model.Category
	for _, group := range payload.CategoryGroups {
		if group.Hidden {
			continue
		}
		for _, cat := range group.Categories {
			if cat.Hidden || cat.Deleted {
				continue
			}
			categories = append(categories, model.Category{
				ID:        cat.ID,
				Name:      cat.Name,
				GroupName: group.Name,
			})
		}
	}

	return categories, nil
}

// UpdateTransaction patches category, memo and/or approval on one
// transaction and returns the updated record.
func (c *Client) UpdateTransaction(ctx context.Context, transactionID string, patch model.TransactionPatch) (*model.Transaction, error) {
	update := make(map[string]any)
	if patch.CategoryID != nil {
		update["category_id"] = *patch.CategoryID
	}
	if patch.Memo != nil {
		update["memo"] = *patch.Memo
	}
	if patch.Approved != nil {
		update["approved"] = *patch.Approved
	}

	path := fmt.Sprintf("/budgets/%s/transactions/%s", c.budgetID, transactionID)
	body := map[string]any{"transaction": update}

	var payload struct {
		Transaction wireTransaction `json:"transaction"`
	}
	if err := c.do(ctx, http.MethodPatch, path, body, &payload); err != nil {
		return nil, err
	}

	updated := payload.Transaction.toModel()
	return &updated, nil
}
