package model

// DecisionSource indicates how a categorization decision was made.
type DecisionSource string

const (
	// SourceHistory means the learned merchant history was strong enough to
	// skip the classifier call.
	SourceHistory DecisionSource = "history"
	// SourceClassifier means the external classifier produced the category.
	SourceClassifier DecisionSource = "classifier"
	// SourceError means categorization failed and the fallback category was
	// used with zero confidence.
	SourceError DecisionSource = "error"
)

// Decision is the outcome of the categorization policy for one transaction.
// Confidence is on the 0-1 scale.
type Decision struct {
	Category   string
	CategoryID string
	Reasoning  string
	Source     DecisionSource
	Confidence float64
}

// Classification is the raw result of one classifier call.
// Confidence is on the 0-1 scale.
type Classification struct {
	Category   string
	Confidence float64
	Reasoning  string
}
