package model

import "time"

// Merchant is a normalized payee identity derived from free-text payee names.
// Created lazily on first sighting and immutable thereafter.
type Merchant struct {
	ID             int64
	Name           string // as first seen
	NormalizedName string
}

// Categorization is one append-only record of a processed transaction.
// Confidence is on the 0-1 scale.
type Categorization struct {
	CreatedAt     time.Time
	MerchantName  string
	CategoryName  string
	CategoryID    string
	TransactionID string
	Confidence    float64
	Amount        float64
	AutoApproved  bool
}

// MerchantConfidence is the learned trust for a (merchant, category) pair.
// ConfidenceScore is on the 0-100 scale and always clamped to that range.
type MerchantConfidence struct {
	LastUsed        time.Time
	CategoryName    string
	MerchantID      int64
	ConfidenceScore float64
	SuccessCount    int
	CorrectionCount int
}

// LearningEvent records a human correction of a prior categorization.
type LearningEvent struct {
	CreatedAt        time.Time
	EventType        string
	OldCategory      string
	NewCategory      string
	ID               int64
	MerchantID       int64
	ConfidenceBefore float64
}

// CategoryUsage aggregates a merchant's categorization events for one category.
// AvgConfidence is on the 0-1 scale.
type CategoryUsage struct {
	CategoryName  string
	CategoryID    string
	AvgConfidence float64
	Count         int
}

// LikelyCategory is the weighted best guess for a merchant, carrying the raw
// learned score (0-100) and how often the category has been used.
type LikelyCategory struct {
	CategoryName    string
	ConfidenceScore float64
	UsageCount      int
}

// MerchantHistory summarizes everything known about a merchant.
// IsNew is true (with empty Entries) when the merchant has never been seen.
type MerchantHistory struct {
	MostLikely   *LikelyCategory
	MerchantName string
	Entries      []CategoryUsage
	MerchantID   int64
	IsNew        bool
}

// MerchantSuggestion is a high-confidence merchant rule for display.
type MerchantSuggestion struct {
	MerchantName    string
	CategoryName    string
	ConfidenceScore float64
	SuccessCount    int
	CorrectionCount int
}

// CorrectionResult reports the state change applied by a correction.
type CorrectionResult struct {
	MerchantID       int64
	ConfidenceBefore float64
}

// StoreStats summarizes the confidence store contents.
type StoreStats struct {
	TotalMerchants       int
	TotalCategorizations int
	AutoApprovedCount    int
	CorrectionCount      int
	AvgConfidence        float64
}
