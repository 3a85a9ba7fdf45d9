package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/canderson26/ynab-mcp-automation/internal/common"
	"github.com/canderson26/ynab-mcp-automation/internal/model"
)

const (
	// correctionDecay is applied to the old category's score on a correction.
	correctionDecay = 0.7
	// correctionBootstrapScore is the trust given to the corrected-to category.
	correctionBootstrapScore = 80.0
	// unknownCategoryScore stands in for categories with no learned score yet.
	unknownCategoryScore = 50.0
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// NormalizeMerchantName lowercases a payee name, strips everything but
// letters, digits and spaces, and collapses whitespace. Idempotent.
func NormalizeMerchantName(name string) string {
	normalized := strings.ToLower(name)
	normalized = nonAlphanumeric.ReplaceAllString(normalized, "")
	normalized = whitespaceRun.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// FindOrCreateMerchant looks a merchant up by normalized name, creating it
// on first sighting.
func (s *SQLiteStorage) FindOrCreateMerchant(ctx context.Context, name string) (*model.Merchant, error) {
	return s.findOrCreateMerchantTx(ctx, s.db, name)
}

func (s *SQLiteStorage) findOrCreateMerchantTx(ctx context.Context, q queryable, name string) (*model.Merchant, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("merchant name cannot be empty")
	}

	normalized := NormalizeMerchantName(name)

	merchant, err := s.findMerchantTx(ctx, q, normalized)
	if err == nil {
		return merchant, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO merchants (name, normalized_name)
		VALUES (?, ?)
	`, name, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to create merchant: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get merchant id: %w", err)
	}

	return &model.Merchant{
		ID:             id,
		Name:           name,
		NormalizedName: normalized,
	}, nil
}

func (s *SQLiteStorage) findMerchantTx(ctx context.Context, q queryable, normalized string) (*model.Merchant, error) {
	var merchant model.Merchant

	err := q.QueryRowContext(ctx, `
		SELECT id, name, normalized_name
		FROM merchants
		WHERE normalized_name = ?
	`, normalized).Scan(&merchant.ID, &merchant.Name, &merchant.NormalizedName)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find merchant: %w", err)
	}

	return &merchant, nil
}

// GetMerchantHistory aggregates a merchant's categorization events by
// category. Unseen merchants return IsNew with empty entries.
func (s *SQLiteStorage) GetMerchantHistory(ctx context.Context, merchantName string) (*model.MerchantHistory, error) {
	merchant, err := s.findMerchantTx(ctx, s.db, NormalizeMerchantName(merchantName))
	if errors.Is(err, common.ErrNotFound) {
		return &model.MerchantHistory{
			MerchantName: merchantName,
			IsNew:        true,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT category_name, COALESCE(category_id, ''), AVG(confidence), COUNT(*)
		FROM categorizations
		WHERE merchant_id = ?
		GROUP BY category_name
		ORDER BY COUNT(*) DESC, AVG(confidence) DESC
	`, merchant.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.CategoryUsage
	total := 0
	for rows.Next() {
		var entry model.CategoryUsage
		if err := rows.Scan(&entry.CategoryName, &entry.CategoryID, &entry.AvgConfidence, &entry.Count); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, entry)
		total += entry.Count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read merchant history: %w", err)
	}

	history := &model.MerchantHistory{
		MerchantID:   merchant.ID,
		MerchantName: merchant.Name,
		Entries:      entries,
		IsNew:        false,
	}

	if total > 0 {
		mostLikely, err := s.mostLikelyCategory(ctx, merchant.ID, entries, total)
		if err != nil {
			return nil, err
		}
		history.MostLikely = mostLikely
	}

	return history, nil
}

// mostLikelyCategory weighs each category's learned score by its share of
// the merchant's events and returns the highest-scoring one.
func (s *SQLiteStorage) mostLikelyCategory(ctx context.Context, merchantID int64, entries []model.CategoryUsage, total int) (*model.LikelyCategory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category_name, confidence_score
		FROM merchant_confidence
		WHERE merchant_id = ?
	`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant confidence: %w", err)
	}
	defer func() { _ = rows.Close() }()

	scores := make(map[string]float64)
	for rows.Next() {
		var category string
		var score float64
		if err := rows.Scan(&category, &score); err != nil {
			return nil, fmt.Errorf("failed to scan confidence: %w", err)
		}
		scores[category] = score
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read merchant confidence: %w", err)
	}

	var mostLikely *model.LikelyCategory
	highest := 0.0
	for _, entry := range entries {
		score, ok := scores[entry.CategoryName]
		if !ok {
			score = unknownCategoryScore
		}
		weighted := score * (float64(entry.Count) / float64(total))
		if weighted > highest {
			highest = weighted
			mostLikely = &model.LikelyCategory{
				CategoryName:    entry.CategoryName,
				ConfidenceScore: score,
				UsageCount:      entry.Count,
			}
		}
	}

	return mostLikely, nil
}

// GetMerchantConfidence returns the learned score for one (merchant, category)
// pair, or ErrNotFound.
func (s *SQLiteStorage) GetMerchantConfidence(ctx context.Context, merchantID int64, categoryName string) (*model.MerchantConfidence, error) {
	return s.getMerchantConfidenceTx(ctx, s.db, merchantID, categoryName)
}

func (s *SQLiteStorage) getMerchantConfidenceTx(ctx context.Context, q queryable, merchantID int64, categoryName string) (*model.MerchantConfidence, error) {
	mc := model.MerchantConfidence{
		MerchantID:   merchantID,
		CategoryName: categoryName,
	}

	err := q.QueryRowContext(ctx, `
		SELECT confidence_score, success_count, correction_count, last_used
		FROM merchant_confidence
		WHERE merchant_id = ? AND category_name = ?
	`, merchantID, categoryName).Scan(&mc.ConfidenceScore, &mc.SuccessCount, &mc.CorrectionCount, &mc.LastUsed)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get merchant confidence: %w", err)
	}

	return &mc, nil
}

// UpdateConfidence blends an observed score (0-100) into the learned score
// for a (merchant, category) pair and returns the new score.
//
// A stronger observation replaces the current score outright; a weaker one
// decays it slowly: current*0.8 + observed*0.2. The success count always
// increments and last_used is refreshed.
func (s *SQLiteStorage) UpdateConfidence(ctx context.Context, merchantID int64, categoryName string, observed float64) (float64, error) {
	return s.updateConfidenceTx(ctx, s.db, merchantID, categoryName, observed)
}

func (s *SQLiteStorage) updateConfidenceTx(ctx context.Context, q queryable, merchantID int64, categoryName string, observed float64) (float64, error) {
	observed = clampScore(observed)
	now := time.Now().UTC()

	current, err := s.getMerchantConfidenceTx(ctx, q, merchantID, categoryName)
	if errors.Is(err, common.ErrNotFound) {
		_, insErr := q.ExecContext(ctx, `
			INSERT INTO merchant_confidence
			(merchant_id, category_name, confidence_score, success_count, correction_count, last_used)
			VALUES (?, ?, ?, 1, 0, ?)
		`, merchantID, categoryName, observed, now)
		if insErr != nil {
			return 0, fmt.Errorf("failed to insert confidence: %w", insErr)
		}
		return observed, nil
	}
	if err != nil {
		return 0, err
	}

	score := current.ConfidenceScore
	if observed > score {
		score = observed
	} else {
		score = score*0.8 + observed*0.2
	}
	score = clampScore(score)

	_, err = q.ExecContext(ctx, `
		UPDATE merchant_confidence
		SET confidence_score = ?, success_count = success_count + 1, last_used = ?
		WHERE merchant_id = ? AND category_name = ?
	`, score, now, merchantID, categoryName)
	if err != nil {
		return 0, fmt.Errorf("failed to update confidence: %w", err)
	}

	return score, nil
}

// RecordCategorization appends one categorization event and, when the event
// was auto-approved, feeds it back into the learned confidence.
func (s *SQLiteStorage) RecordCategorization(ctx context.Context, c *model.Categorization) error {
	if c == nil {
		return fmt.Errorf("categorization cannot be nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	merchant, err := s.findOrCreateMerchantTx(ctx, tx, c.MerchantName)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO categorizations
		(merchant_id, category_name, category_id, confidence, auto_approved, transaction_id, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, merchant.ID, c.CategoryName, c.CategoryID, c.Confidence, c.AutoApproved, c.TransactionID, c.Amount)
	if err != nil {
		return fmt.Errorf("failed to record categorization: %w", err)
	}

	if c.AutoApproved {
		if _, err := s.updateConfidenceTx(ctx, tx, merchant.ID, c.CategoryName, c.Confidence*100); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecordCorrection applies a human override: the old category's trust decays,
// the new category is bootstrapped, and a learning event preserves the prior
// score for auditing.
func (s *SQLiteStorage) RecordCorrection(ctx context.Context, merchantName, oldCategory, newCategory string) (*model.CorrectionResult, error) {
	merchant, err := s.findMerchantTx(ctx, s.db, NormalizeMerchantName(merchantName))
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	confidenceBefore := 0.0
	oldConfidence, err := s.getMerchantConfidenceTx(ctx, tx, merchant.ID, oldCategory)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if oldConfidence != nil {
		confidenceBefore = oldConfidence.ConfidenceScore
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO learning_events
		(merchant_id, event_type, old_category, new_category, confidence_before)
		VALUES (?, 'correction', ?, ?, ?)
	`, merchant.ID, oldCategory, newCategory, confidenceBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to record learning event: %w", err)
	}

	if oldConfidence != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE merchant_confidence
			SET correction_count = correction_count + 1,
			    confidence_score = confidence_score * ?
			WHERE merchant_id = ? AND category_name = ?
		`, correctionDecay, merchant.ID, oldCategory)
		if err != nil {
			return nil, fmt.Errorf("failed to decay old category: %w", err)
		}
	}

	if _, err := s.updateConfidenceTx(ctx, tx, merchant.ID, newCategory, correctionBootstrapScore); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit correction: %w", err)
	}

	return &model.CorrectionResult{
		MerchantID:       merchant.ID,
		ConfidenceBefore: confidenceBefore,
	}, nil
}

// GetMerchantSuggestions lists learned merchant rules at or above minScore,
// strongest first.
func (s *SQLiteStorage) GetMerchantSuggestions(ctx context.Context, minScore float64) ([]model.MerchantSuggestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.name, mc.category_name, mc.confidence_score, mc.success_count, mc.correction_count
		FROM merchant_confidence mc
		JOIN merchants m ON mc.merchant_id = m.id
		WHERE mc.confidence_score >= ?
		ORDER BY mc.confidence_score DESC
	`, minScore)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var suggestions []model.MerchantSuggestion
	for rows.Next() {
		var sg model.MerchantSuggestion
		if err := rows.Scan(&sg.MerchantName, &sg.CategoryName, &sg.ConfidenceScore, &sg.SuccessCount, &sg.CorrectionCount); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		suggestions = append(suggestions, sg)
	}

	return suggestions, rows.Err()
}

// Stats summarizes the confidence store contents.
func (s *SQLiteStorage) Stats(ctx context.Context) (*model.StoreStats, error) {
	var stats model.StoreStats
	var avgConfidence sql.NullFloat64

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM merchants),
			(SELECT COUNT(*) FROM categorizations),
			(SELECT COUNT(*) FROM categorizations WHERE auto_approved = 1),
			(SELECT COUNT(*) FROM learning_events WHERE event_type = 'correction'),
			(SELECT AVG(confidence_score) FROM merchant_confidence)
	`).Scan(&stats.TotalMerchants, &stats.TotalCategorizations, &stats.AutoApprovedCount, &stats.CorrectionCount, &avgConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}

	if avgConfidence.Valid {
		stats.AvgConfidence = avgConfidence.Float64
	}

	return &stats, nil
}
