package engine

import (
	"context"
	"time"

	"github.com/canderson26/ynab-mcp-automation/internal/model"
)

// mockStorage implements service.Storage with overridable hooks.
type mockStorage struct {
	historyFn       func(ctx context.Context, merchantName string) (*model.MerchantHistory, error)
	recordFn        func(ctx context.Context, c *model.Categorization) error
	recorded        []*model.Categorization
	historyRequests []string
}

func (m *mockStorage) FindOrCreateMerchant(_ context.Context, name string) (*model.Merchant, error) {
	return &model.Merchant{ID: 1, Name: name}, nil
}

func (m *mockStorage) GetMerchantHistory(ctx context.Context, merchantName string) (*model.MerchantHistory, error) {
	m.historyRequests = append(m.historyRequests, merchantName)
	if m.historyFn != nil {
		return m.historyFn(ctx, merchantName)
	}
	return &model.MerchantHistory{MerchantName: merchantName, IsNew: true}, nil
}

func (m *mockStorage) GetMerchantConfidence(_ context.Context, _ int64, _ string) (*model.MerchantConfidence, error) {
	return nil, nil
}

func (m *mockStorage) UpdateConfidence(_ context.Context, _ int64, _ string, observed float64) (float64, error) {
	return observed, nil
}

func (m *mockStorage) RecordCategorization(ctx context.Context, c *model.Categorization) error {
	m.recorded = append(m.recorded, c)
	if m.recordFn != nil {
		return m.recordFn(ctx, c)
	}
	return nil
}

func (m *mockStorage) RecordCorrection(_ context.Context, _, _, _ string) (*model.CorrectionResult, error) {
	return &model.CorrectionResult{}, nil
}

func (m *mockStorage) GetMerchantSuggestions(_ context.Context, _ float64) ([]model.MerchantSuggestion, error) {
	return nil, nil
}

func (m *mockStorage) Stats(_ context.Context) (*model.StoreStats, error) {
	return &model.StoreStats{}, nil
}

func (m *mockStorage) Migrate(_ context.Context) error { return nil }
func (m *mockStorage) Close() error                    { return nil }

// mockClassifier counts calls and delegates to classifyFn.
type mockClassifier struct {
	classifyFn func(ctx context.Context, merchantName string, amount float64, categories []model.Category, history *model.MerchantHistory) (*model.Classification, error)
	calls      int
}

func (m *mockClassifier) Classify(ctx context.Context, merchantName string, amount float64, categories []model.Category, history *model.MerchantHistory) (*model.Classification, error) {
	m.calls++
	if m.classifyFn != nil {
		return m.classifyFn(ctx, merchantName, amount, categories, history)
	}
	return &model.Classification{Category: categories[0].Name, Confidence: 0.5}, nil
}

// mockLedger implements service.Ledger.
type mockLedger struct {
	categoriesFn   func(ctx context.Context) ([]model.Category, error)
	transactionsFn func(ctx context.Context, sinceDays int) ([]model.Transaction, error)
	updateFn       func(ctx context.Context, transactionID string, patch model.TransactionPatch) (*model.Transaction, error)
	updates        map[string]model.TransactionPatch
}

func (m *mockLedger) ListCategories(ctx context.Context) ([]model.Category, error) {
	if m.categoriesFn != nil {
		return m.categoriesFn(ctx)
	}
	return testCategories(), nil
}

func (m *mockLedger) ListUnapprovedTransactions(ctx context.Context, sinceDays int) ([]model.Transaction, error) {
	if m.transactionsFn != nil {
		return m.transactionsFn(ctx, sinceDays)
	}
	return nil, nil
}

func (m *mockLedger) UpdateTransaction(ctx context.Context, transactionID string, patch model.TransactionPatch) (*model.Transaction, error) {
	if m.updates == nil {
		m.updates = make(map[string]model.TransactionPatch)
	}
	m.updates[transactionID] = patch
	if m.updateFn != nil {
		return m.updateFn(ctx, transactionID, patch)
	}
	return &model.Transaction{ID: transactionID}, nil
}

// mockNotifier records the summaries it is asked to send.
type mockNotifier struct {
	sendFn  func(ctx context.Context, stats model.RunStats, details []model.ProcessedTransaction, date time.Time) error
	stats   []model.RunStats
	details [][]model.ProcessedTransaction
}

func (m *mockNotifier) SendDailySummary(ctx context.Context, stats model.RunStats, details []model.ProcessedTransaction, date time.Time) error {
	m.stats = append(m.stats, stats)
	m.details = append(m.details, details)
	if m.sendFn != nil {
		return m.sendFn(ctx, stats, details, date)
	}
	return nil
}

func testCategories() []model.Category {
	return []model.Category{
		{ID: "cat-gas", Name: "Gas", GroupName: "Auto"},
		{ID: "cat-groceries", Name: "Groceries", GroupName: "Food"},
		{ID: "cat-misc", Name: "Stuff I Forgot to Budget For", GroupName: "Misc"},
	}
}
