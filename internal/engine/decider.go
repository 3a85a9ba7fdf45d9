// Package engine contains the categorization decision policy and the batch
// run orchestrator that applies it across unapproved transactions.
package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/canderson26/ynab-mcp-automation/internal/model"
	"github.com/canderson26/ynab-mcp-automation/internal/service"
)

const (
	// historyMinConfidence and historyMinUses gate the history short-circuit:
	// a merchant must have been categorized the same way at least this many
	// times at this average confidence before the classifier is skipped.
	historyMinConfidence = 0.90
	historyMinUses       = 3

	// autoApproveThreshold is the minimum decision confidence for writing
	// the transaction back as approved.
	autoApproveThreshold = 0.95
)

// Decider turns one transaction into a categorization decision. It never
// returns an error: any failure inside the decision region degrades to a
// zero-confidence fallback decision so the batch keeps moving.
type Decider struct {
	storage    service.Storage
	classifier service.Classifier
	logger     *slog.Logger
}

// NewDecider creates a decision policy over the given learning store and
// classifier.
func NewDecider(storage service.Storage, classifier service.Classifier, logger *slog.Logger) *Decider {
	return &Decider{
		storage:    storage,
		classifier: classifier,
		logger:     logger,
	}
}

// Decide produces the category decision for one transaction.
func (d *Decider) Decide(ctx context.Context, txn model.Transaction, categories []model.Category) model.Decision {
	history, err := d.storage.GetMerchantHistory(ctx, txn.PayeeName)
	if err != nil {
		d.logger.Error("Failed to load merchant history",
			"merchant", txn.PayeeName,
			"error", err)
		return d.fallbackDecision(categories, "merchant history lookup failed")
	}

	if decision, ok := d.decideFromHistory(history, categories); ok {
		d.logger.Debug("Categorized from history",
			"merchant", txn.PayeeName,
			"category", decision.Category,
			"confidence", decision.Confidence)
		return decision
	}

	classification, err := d.classifier.Classify(ctx, txn.PayeeName, txn.Amount, categories, history)
	if err != nil {
		d.logger.Error("Classification failed",
			"merchant", txn.PayeeName,
			"error", err)
		return d.fallbackDecision(categories, "classification failed")
	}

	return model.Decision{
		Category:   classification.Category,
		CategoryID: categoryID(categories, classification.Category),
		Confidence: classification.Confidence,
		Reasoning:  classification.Reasoning,
		Source:     model.SourceClassifier,
	}
}

// decideFromHistory applies the short-circuit: a merchant whose dominant
// category has been used often enough at high enough average confidence is
// categorized without a classifier call.
func (d *Decider) decideFromHistory(history *model.MerchantHistory, categories []model.Category) (model.Decision, bool) {
	if history == nil || history.IsNew || len(history.Entries) == 0 {
		return model.Decision{}, false
	}

	top := history.Entries[0]
	if top.AvgConfidence < historyMinConfidence || top.Count < historyMinUses {
		return model.Decision{}, false
	}

	id := top.CategoryID
	if id == "" {
		id = categoryID(categories, top.CategoryName)
	}

	return model.Decision{
		Category:   top.CategoryName,
		CategoryID: id,
		Confidence: top.AvgConfidence,
		Reasoning:  "consistent merchant history",
		Source:     model.SourceHistory,
	}, true
}

// fallbackDecision picks the miscellaneous-style category so a failed item
// still lands somewhere reviewable instead of blocking the batch.
func (d *Decider) fallbackDecision(categories []model.Category, reason string) model.Decision {
	fallback := fallbackCategory(categories)
	return model.Decision{
		Category:   fallback.Name,
		CategoryID: fallback.ID,
		Confidence: 0,
		Reasoning:  reason,
		Source:     model.SourceError,
	}
}

// fallbackCategory prefers a catch-all category by name, falling back to the
// first category when none matches. Callers guarantee a non-empty list.
func fallbackCategory(categories []model.Category) model.Category {
	for _, cat := range categories {
		lower := strings.ToLower(cat.Name)
		if strings.Contains(lower, "stuff i forgot") ||
			strings.Contains(lower, "miscellaneous") ||
			strings.Contains(lower, "other") {
			return cat
		}
	}
	return categories[0]
}

// AutoApprove reports whether a decision is trustworthy enough to approve the
// transaction without human review. Error-sourced decisions never qualify.
func AutoApprove(decision model.Decision) bool {
	return decision.Confidence >= autoApproveThreshold && decision.Source != model.SourceError
}

func categoryID(categories []model.Category, name string) string {
	for _, cat := range categories {
		if cat.Name == name {
			return cat.ID
		}
	}
	return ""
}
