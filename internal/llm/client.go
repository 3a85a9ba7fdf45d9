// Package llm provides the language-model classifier used for transaction
// categorization, with usage gating, retry logic and strict response parsing.
package llm

import (
	"context"
	"strings"
)

// Client defines the interface for LLM providers.
type Client interface {
	Classify(ctx context.Context, prompt string) (ClassificationResponse, error)
}

// ClassificationResponse contains the provider's raw classification result.
// Confidence is on the 0-1 scale.
type ClassificationResponse struct {
	Category   string
	Reasoning  string
	Confidence float64
}

// cleanMarkdownWrapper strips a ```json fence the model sometimes wraps
// around its response.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
