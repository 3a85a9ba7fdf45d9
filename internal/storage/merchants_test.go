package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canderson26/ynab-mcp-automation/internal/common"
	"github.com/canderson26/ynab-mcp-automation/internal/model"
)

func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNormalizeMerchantName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lowercase", input: "STARBUCKS", want: "starbucks"},
		{name: "strips punctuation", input: "AMAZON.COM*MK1234", want: "amazoncommk1234"},
		{name: "collapses whitespace", input: "  Trader   Joe's  #123 ", want: "trader joes 123"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeMerchantName(tt.input)
			assert.Equal(t, tt.want, got)
			// Normalization must be idempotent
			assert.Equal(t, got, NormalizeMerchantName(got))
		})
	}
}

func TestFindOrCreateMerchant(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	first, err := store.FindOrCreateMerchant(ctx, "Trader Joe's #123")
	require.NoError(t, err)
	assert.Equal(t, "Trader Joe's #123", first.Name)
	assert.Equal(t, "trader joes 123", first.NormalizedName)

	// Same merchant through a differently-punctuated payee name
	second, err := store.FindOrCreateMerchant(ctx, "TRADER JOES  123")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = store.FindOrCreateMerchant(ctx, "   ")
	assert.Error(t, err)
}

func TestUpdateConfidence(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	merchant, err := store.FindOrCreateMerchant(ctx, "Sunoco")
	require.NoError(t, err)

	// First observation is taken as-is
	score, err := store.UpdateConfidence(ctx, merchant.ID, "Gas", 80)
	require.NoError(t, err)
	assert.InDelta(t, 80, score, 0.001)

	// Stronger observation replaces the score outright
	score, err = store.UpdateConfidence(ctx, merchant.ID, "Gas", 97)
	require.NoError(t, err)
	assert.InDelta(t, 97, score, 0.001)

	// Weaker observation decays slowly: 97*0.8 + 60*0.2 = 89.6
	score, err = store.UpdateConfidence(ctx, merchant.ID, "Gas", 60)
	require.NoError(t, err)
	assert.InDelta(t, 89.6, score, 0.001)

	mc, err := store.GetMerchantConfidence(ctx, merchant.ID, "Gas")
	require.NoError(t, err)
	assert.Equal(t, 3, mc.SuccessCount)
	assert.Equal(t, 0, mc.CorrectionCount)
	assert.False(t, mc.LastUsed.IsZero())
}

func TestUpdateConfidenceClamps(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	merchant, err := store.FindOrCreateMerchant(ctx, "Clampy")
	require.NoError(t, err)

	score, err := store.UpdateConfidence(ctx, merchant.ID, "Stuff", 150)
	require.NoError(t, err)
	assert.InDelta(t, 100, score, 0.001)

	score, err = store.UpdateConfidence(ctx, merchant.ID, "Stuff", -20)
	require.NoError(t, err)
	// clamp(-20)=0, then 100*0.8 + 0*0.2
	assert.InDelta(t, 80, score, 0.001)
}

func TestGetMerchantConfidenceNotFound(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	merchant, err := store.FindOrCreateMerchant(ctx, "Nobody")
	require.NoError(t, err)

	_, err = store.GetMerchantConfidence(ctx, merchant.ID, "Unknown")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetMerchantHistory(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	t.Run("unseen merchant is new", func(t *testing.T) {
		history, err := store.GetMerchantHistory(ctx, "Never Seen Before")
		require.NoError(t, err)
		assert.True(t, history.IsNew)
		assert.Empty(t, history.Entries)
		assert.Nil(t, history.MostLikely)
	})

	t.Run("aggregates by category", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, store.RecordCategorization(ctx, &model.Categorization{
				MerchantName:  "Sunoco",
				CategoryName:  "Gas",
				CategoryID:    "cat-gas",
				TransactionID: "txn-gas",
				Confidence:    0.96,
				Amount:        -40,
				AutoApproved:  true,
			}))
		}
		require.NoError(t, store.RecordCategorization(ctx, &model.Categorization{
			MerchantName:  "Sunoco",
			CategoryName:  "Snacks",
			CategoryID:    "cat-snacks",
			TransactionID: "txn-snack",
			Confidence:    0.6,
			Amount:        -5,
			AutoApproved:  false,
		}))

		history, err := store.GetMerchantHistory(ctx, "Sunoco")
		require.NoError(t, err)
		assert.False(t, history.IsNew)
		require.Len(t, history.Entries, 2)

		// Dominant category first
		assert.Equal(t, "Gas", history.Entries[0].CategoryName)
		assert.Equal(t, 3, history.Entries[0].Count)
		assert.InDelta(t, 0.96, history.Entries[0].AvgConfidence, 0.001)

		require.NotNil(t, history.MostLikely)
		assert.Equal(t, "Gas", history.MostLikely.CategoryName)
		assert.Equal(t, 3, history.MostLikely.UsageCount)
	})
}

func TestRecordCategorizationFeedsConfidence(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	// Auto-approved events feed the learned score
	require.NoError(t, store.RecordCategorization(ctx, &model.Categorization{
		MerchantName: "Sunoco",
		CategoryName: "Gas",
		Confidence:   0.96,
		AutoApproved: true,
	}))

	merchant, err := store.FindOrCreateMerchant(ctx, "Sunoco")
	require.NoError(t, err)

	mc, err := store.GetMerchantConfidence(ctx, merchant.ID, "Gas")
	require.NoError(t, err)
	assert.InDelta(t, 96, mc.ConfidenceScore, 0.001)

	// Pending events do not
	require.NoError(t, store.RecordCategorization(ctx, &model.Categorization{
		MerchantName: "Unknown Shop",
		CategoryName: "Stuff I Forgot to Budget For",
		Confidence:   0.5,
		AutoApproved: false,
	}))

	shop, err := store.FindOrCreateMerchant(ctx, "Unknown Shop")
	require.NoError(t, err)
	_, err = store.GetMerchantConfidence(ctx, shop.ID, "Stuff I Forgot to Budget For")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRecordCorrection(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	merchant, err := store.FindOrCreateMerchant(ctx, "Costco")
	require.NoError(t, err)

	_, err = store.UpdateConfidence(ctx, merchant.ID, "Groceries", 90)
	require.NoError(t, err)

	result, err := store.RecordCorrection(ctx, "Costco", "Groceries", "Household")
	require.NoError(t, err)
	assert.Equal(t, merchant.ID, result.MerchantID)
	assert.InDelta(t, 90, result.ConfidenceBefore, 0.001)

	// Old category decays by 0.7 and counts the correction
	old, err := store.GetMerchantConfidence(ctx, merchant.ID, "Groceries")
	require.NoError(t, err)
	assert.InDelta(t, 63, old.ConfidenceScore, 0.001)
	assert.Equal(t, 1, old.CorrectionCount)

	// New category is bootstrapped
	updated, err := store.GetMerchantConfidence(ctx, merchant.ID, "Household")
	require.NoError(t, err)
	assert.InDelta(t, 80, updated.ConfidenceScore, 0.001)

	// Learning event preserves the prior score
	var eventType string
	var confidenceBefore float64
	err = store.db.QueryRowContext(ctx, `
		SELECT event_type, confidence_before FROM learning_events WHERE merchant_id = ?
	`, merchant.ID).Scan(&eventType, &confidenceBefore)
	require.NoError(t, err)
	assert.Equal(t, "correction", eventType)
	assert.InDelta(t, 90, confidenceBefore, 0.001)
}

func TestRecordCorrectionUnknownMerchant(t *testing.T) {
	store := createTestStorage(t)

	_, err := store.RecordCorrection(context.Background(), "Never Seen", "A", "B")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetMerchantSuggestions(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	strong, err := store.FindOrCreateMerchant(ctx, "Sunoco")
	require.NoError(t, err)
	weak, err := store.FindOrCreateMerchant(ctx, "Unknown Shop")
	require.NoError(t, err)

	_, err = store.UpdateConfidence(ctx, strong.ID, "Gas", 96)
	require.NoError(t, err)
	_, err = store.UpdateConfidence(ctx, weak.ID, "Stuff", 40)
	require.NoError(t, err)

	suggestions, err := store.GetMerchantSuggestions(ctx, 90)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Sunoco", suggestions[0].MerchantName)
	assert.Equal(t, "Gas", suggestions[0].CategoryName)
}

func TestStats(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	empty, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalMerchants)
	assert.Zero(t, empty.AvgConfidence)

	require.NoError(t, store.RecordCategorization(ctx, &model.Categorization{
		MerchantName: "Sunoco",
		CategoryName: "Gas",
		Confidence:   0.96,
		AutoApproved: true,
	}))
	require.NoError(t, store.RecordCategorization(ctx, &model.Categorization{
		MerchantName: "Unknown Shop",
		CategoryName: "Stuff",
		Confidence:   0.5,
		AutoApproved: false,
	}))
	_, err = store.RecordCorrection(ctx, "Sunoco", "Gas", "Car Maintenance")
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMerchants)
	assert.Equal(t, 2, stats.TotalCategorizations)
	assert.Equal(t, 1, stats.AutoApprovedCount)
	assert.Equal(t, 1, stats.CorrectionCount)
	assert.Greater(t, stats.AvgConfidence, 0.0)
}
