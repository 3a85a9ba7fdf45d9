// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound = errors.New("not found")

	// Usage budget errors.
	ErrUsageLimitExceeded = errors.New("usage limit exceeded")

	// Pipeline errors.
	ErrNoCategories = errors.New("no categories available")

	// Classifier errors.
	ErrMalformedResponse = errors.New("malformed classifier response")
)

// ValidationError indicates input that cannot be processed, such as a
// classifier category that does not exist in the ledger.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// ClassifierError wraps a failure from the classification provider.
type ClassifierError struct {
	Err        error
	Provider   string
	Message    string
	StatusCode int
}

func (e *ClassifierError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s classifier error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s classifier error: %s", e.Provider, e.Message)
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}

// LedgerError wraps a failure from the budgeting ledger API.
type LedgerError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *LedgerError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ledger error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ledger error: %s", e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// RateLimited reports whether the ledger rejected the call for rate reasons.
func (e *LedgerError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// NotificationError wraps a failure from the notification channel. Always
// swallowed by the caller.
type NotificationError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *NotificationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("notification error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("notification error: %s", e.Message)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a confidence-store write failure.
type PersistenceError struct {
	Err       error
	Operation string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Operation, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsRetryable determines if an error should trigger a retry. Transient
// failure classes are rate limiting, timeouts and connection resets.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr.RateLimited() || ledgerErr.StatusCode >= http.StatusInternalServerError
	}

	var classifierErr *ClassifierError
	if errors.As(err, &classifierErr) {
		return classifierErr.StatusCode == http.StatusTooManyRequests ||
			classifierErr.StatusCode >= http.StatusInternalServerError
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
