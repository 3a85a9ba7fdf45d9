package model

// RunStats aggregates the outcome of one batch categorization run.
type RunStats struct {
	Processed int
	Approved  int
	Pending   int
	Errors    int
}

// ProcessedTransaction is the per-item detail carried into the daily summary.
type ProcessedTransaction struct {
	Payee      string
	Category   string
	Reasoning  string
	Amount     float64
	Confidence float64
	Approved   bool
}
