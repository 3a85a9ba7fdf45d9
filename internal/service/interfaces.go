// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/canderson26/ynab-mcp-automation/internal/model"
)

// Storage defines the contract for the merchant confidence store.
//
// The store is designed for exactly one concurrent writer; overlapping
// orchestrator runs must be prevented by the scheduler, not by the store.
type Storage interface {
	// Merchant learning operations
	FindOrCreateMerchant(ctx context.Context, name string) (*model.Merchant, error)
	GetMerchantHistory(ctx context.Context, merchantName string) (*model.MerchantHistory, error)
	GetMerchantConfidence(ctx context.Context, merchantID int64, categoryName string) (*model.MerchantConfidence, error)
	UpdateConfidence(ctx context.Context, merchantID int64, categoryName string, observed float64) (float64, error)
	RecordCategorization(ctx context.Context, c *model.Categorization) error
	RecordCorrection(ctx context.Context, merchantName, oldCategory, newCategory string) (*model.CorrectionResult, error)

	// Reporting operations
	GetMerchantSuggestions(ctx context.Context, minScore float64) ([]model.MerchantSuggestion, error)
	Stats(ctx context.Context) (*model.StoreStats, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// Ledger defines the contract for the budgeting ledger (transaction source,
// transaction sink and category list).
type Ledger interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
	ListUnapprovedTransactions(ctx context.Context, sinceDays int) ([]model.Transaction, error)
	UpdateTransaction(ctx context.Context, transactionID string, patch model.TransactionPatch) (*model.Transaction, error)
}

// Classifier produces a category suggestion for a single transaction.
// Implementations must return a typed error on malformed output rather than
// silently defaulting.
type Classifier interface {
	Classify(ctx context.Context, merchantName string, amount float64, categories []model.Category, history *model.MerchantHistory) (*model.Classification, error)
}

// Notifier delivers the end-of-run summary. Callers treat delivery as best
// effort and must never let a notification failure affect the run.
type Notifier interface {
	SendDailySummary(ctx context.Context, stats model.RunStats, details []model.ProcessedTransaction, date time.Time) error
}

// UsageGate enforces per-provider call budgets. CheckLimit must be called
// before every outbound call and RecordUsage after every successful one.
type UsageGate interface {
	CheckLimit(provider string) (bool, error)
	RecordUsage(provider string, cost float64) error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
