package llm

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canderson26/ynab-mcp-automation/internal/common"
	"github.com/canderson26/ynab-mcp-automation/internal/model"
	"github.com/canderson26/ynab-mcp-automation/internal/service"
)

type fakeGate struct {
	allowed  bool
	recorded []float64
}

func (g *fakeGate) CheckLimit(_ string) (bool, error) { return g.allowed, nil }
func (g *fakeGate) RecordUsage(_ string, cost float64) error {
	g.recorded = append(g.recorded, cost)
	return nil
}

func testRetry() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func newTestClassifier(t *testing.T, handler http.Handler, gate service.UsageGate) *Classifier {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	classifier, err := NewClassifier(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Retry:   testRetry(),
	}, gate, slog.Default())
	require.NoError(t, err)
	return classifier
}

func classifierCategories() []model.Category {
	return []model.Category{
		{ID: "cat-gas", Name: "Gas"},
		{ID: "cat-groceries", Name: "Groceries"},
	}
}

func TestNewClassifierUnknownProvider(t *testing.T) {
	_, err := NewClassifier(Config{Provider: "bard", APIKey: "k"}, &fakeGate{allowed: true}, slog.Default())
	assert.Error(t, err)
}

func TestClassifySuccess(t *testing.T) {
	gate := &fakeGate{allowed: true}
	classifier := newTestClassifier(t, anthropicSuccess(
		`{"category": "Gas", "confidence": 0.95, "reasoning": "fuel"}`), gate)

	result, err := classifier.Classify(context.Background(), "Sunoco", -40.5, classifierCategories(), nil)
	require.NoError(t, err)

	assert.Equal(t, "Gas", result.Category)
	assert.InDelta(t, 0.95, result.Confidence, 0.001)

	require.Len(t, gate.recorded, 1)
	assert.Greater(t, gate.recorded[0], 0.0, "cost estimate recorded per call")
}

func TestClassifyGateDenied(t *testing.T) {
	handler := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("no provider call when the gate refuses")
	})

	classifier := newTestClassifier(t, handler, &fakeGate{allowed: false})

	_, err := classifier.Classify(context.Background(), "Sunoco", -40.5, classifierCategories(), nil)
	assert.ErrorIs(t, err, common.ErrUsageLimitExceeded)
}

func TestClassifyRejectsUnknownCategory(t *testing.T) {
	gate := &fakeGate{allowed: true}
	classifier := newTestClassifier(t, anthropicSuccess(
		`{"category": "Made Up Category", "confidence": 0.9, "reasoning": "x"}`), gate)

	_, err := classifier.Classify(context.Background(), "Sunoco", -40.5, classifierCategories(), nil)
	require.Error(t, err)

	var validationErr *common.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestClassifyRetriesTransientFailures(t *testing.T) {
	attempts := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		anthropicSuccess(`{"category": "Gas", "confidence": 0.9, "reasoning": "x"}`)(w, r)
	})

	classifier := newTestClassifier(t, handler, &fakeGate{allowed: true})

	result, err := classifier.Classify(context.Background(), "Sunoco", -40.5, classifierCategories(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Gas", result.Category)
	assert.Equal(t, 2, attempts)
}

func TestClassifyMalformedResponseIsNotRetried(t *testing.T) {
	attempts := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		anthropicSuccess("definitely not json")(w, r)
	})

	classifier := newTestClassifier(t, handler, &fakeGate{allowed: true})

	_, err := classifier.Classify(context.Background(), "Sunoco", -40.5, classifierCategories(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMalformedResponse)
	assert.Equal(t, 1, attempts)
}

func TestBuildPrompt(t *testing.T) {
	classifier := &Classifier{rules: "Prefer specific categories over Miscellaneous."}

	t.Run("with history", func(t *testing.T) {
		history := &model.MerchantHistory{
			Entries: []model.CategoryUsage{
				{CategoryName: "Gas", AvgConfidence: 0.92, Count: 4},
			},
		}
		prompt := classifier.buildPrompt("Sunoco", -40.5, classifierCategories(), history)

		assert.Contains(t, prompt, "Prefer specific categories")
		assert.Contains(t, prompt, "Gas, Groceries")
		assert.Contains(t, prompt, "Merchant: Sunoco")
		assert.Contains(t, prompt, "Amount: $40.50")
		assert.Contains(t, prompt, "- Gas: 4 times (92% confidence)")
	})

	t.Run("new merchant", func(t *testing.T) {
		prompt := classifier.buildPrompt("Newplace", -5, classifierCategories(), &model.MerchantHistory{IsNew: true})
		assert.Contains(t, prompt, "new merchant with no history")
	})
}
