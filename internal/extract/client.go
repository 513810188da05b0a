// Package extract turns jargon-expanded message text into structured
// extraction results using an LLM provider. The provider is a black box:
// this package owns the HTTP plumbing, response parsing, rate limiting, and
// the safe fallback used when a call or its output cannot be salvaged.
package extract

import (
	"context"
)

// Client defines the interface for LLM extraction providers.
type Client interface {
	// Extract sends the expanded text and returns the provider's raw
	// response content, expected to be a JSON document.
	Extract(ctx context.Context, text string) (string, error)
}

// Config holds configuration for the extraction service.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	MaxRetries  int
	RateLimit   int
	Temperature float64
	MaxTokens   int
}
