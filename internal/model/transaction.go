// Package model defines the core domain models used throughout the application.
package model

import "time"

// Transaction represents a single ledger transaction awaiting categorization.
type Transaction struct {
	Date         time.Time
	ID           string
	PayeeName    string
	CategoryName string
	CategoryID   string
	AccountName  string
	Memo         string
	Amount       float64 // dollars; negative for outflows
	Approved     bool
}

// TransactionPatch describes a partial update to a ledger transaction.
// Nil fields are left untouched.
type TransactionPatch struct {
	CategoryID *string
	Memo       *string
	Approved   *bool
}
