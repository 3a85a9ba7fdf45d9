package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/canderson26/ynab-mcp-automation/internal/common"
	"github.com/canderson26/ynab-mcp-automation/internal/model"
	"github.com/canderson26/ynab-mcp-automation/internal/service"
)

// Engine orchestrates one categorization run: fetch unapproved transactions,
// decide each one, write the decision back to the ledger, record the outcome
// in the learning store, and send the daily summary.
type Engine struct {
	ledger    service.Ledger
	storage   service.Storage
	decider   *Decider
	notifier  service.Notifier
	logger    *slog.Logger
	sinceDays int
	progress  bool
}

// Config holds construction options for the engine.
type Config struct {
	SinceDays int
	Progress  bool
}

// New creates a batch engine. notifier may be nil when summaries are not
// configured.
func New(cfg Config, ledger service.Ledger, storage service.Storage, decider *Decider, notifier service.Notifier, logger *slog.Logger) *Engine {
	sinceDays := cfg.SinceDays
	if sinceDays == 0 {
		sinceDays = 7
	}
	return &Engine{
		ledger:    ledger,
		storage:   storage,
		decider:   decider,
		notifier:  notifier,
		logger:    logger,
		sinceDays: sinceDays,
		progress:  cfg.Progress,
	}
}

// Run executes one batch. Per-item failures are isolated: they count toward
// stats.Errors and the run continues. Only failures to fetch the working set
// abort the run.
func (e *Engine) Run(ctx context.Context) (*model.RunStats, error) {
	categories, err := e.ledger.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	if len(categories) == 0 {
		return nil, common.ErrNoCategories
	}

	transactions, err := e.ledger.ListUnapprovedTransactions(ctx, e.sinceDays)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	stats := &model.RunStats{}
	if len(transactions) == 0 {
		e.logger.Info("No unapproved transactions to process")
		return stats, nil
	}

	e.logger.Info("Starting categorization run",
		"transactions", len(transactions),
		"categories", len(categories))

	var bar *progressbar.ProgressBar
	if e.progress {
		bar = progressbar.NewOptions(len(transactions),
			progressbar.OptionSetDescription("Categorizing"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	details := make([]model.ProcessedTransaction, 0, len(transactions))
	for _, txn := range transactions {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		detail, ok := e.processOne(ctx, txn, categories, stats)
		if ok {
			details = append(details, detail)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	e.logger.Info("Categorization run complete",
		"processed", stats.Processed,
		"approved", stats.Approved,
		"pending", stats.Pending,
		"errors", stats.Errors)

	if e.notifier != nil {
		if err := e.notifier.SendDailySummary(ctx, *stats, details, time.Now()); err != nil {
			e.logger.Warn("Failed to send daily summary", "error", err)
		}
	}

	return stats, nil
}

// processOne runs the full pipeline for a single transaction. The ledger
// write and the learning-store write are tracked separately: a failed ledger
// write is an error for the item, while a failed store write only loses the
// learning signal for an already-applied categorization.
func (e *Engine) processOne(ctx context.Context, txn model.Transaction, categories []model.Category, stats *model.RunStats) (model.ProcessedTransaction, bool) {
	decision := e.decider.Decide(ctx, txn, categories)
	approve := AutoApprove(decision)

	memo := fmt.Sprintf("[AI: %s (%.0f%%)]", decision.Category, decision.Confidence*100)
	patch := model.TransactionPatch{
		CategoryID: &decision.CategoryID,
		Memo:       &memo,
		Approved:   &approve,
	}

	if _, err := e.ledger.UpdateTransaction(ctx, txn.ID, patch); err != nil {
		e.logger.Error("Failed to update transaction",
			"transaction_id", txn.ID,
			"payee", txn.PayeeName,
			"error", err)
		stats.Errors++
		return model.ProcessedTransaction{}, false
	}

	record := &model.Categorization{
		MerchantName:  txn.PayeeName,
		CategoryName:  decision.Category,
		CategoryID:    decision.CategoryID,
		TransactionID: txn.ID,
		Confidence:    decision.Confidence,
		Amount:        txn.Amount,
		AutoApproved:  approve,
	}
	if err := e.storage.RecordCategorization(ctx, record); err != nil {
		e.logger.Warn("Categorization applied but not recorded",
			"transaction_id", txn.ID,
			"payee", txn.PayeeName,
			"error", &common.PersistenceError{Operation: "record categorization", Err: err})
	}

	stats.Processed++
	if approve {
		stats.Approved++
	} else {
		stats.Pending++
	}

	return model.ProcessedTransaction{
		Payee:      txn.PayeeName,
		Category:   decision.Category,
		Reasoning:  decision.Reasoning,
		Amount:     txn.Amount,
		Confidence: decision.Confidence,
		Approved:   approve,
	}, true
}
