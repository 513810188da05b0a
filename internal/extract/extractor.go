package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Yuanja/watch-tracker-sub000/internal/common"
	"github.com/Yuanja/watch-tracker-sub000/internal/model"
	"github.com/Yuanja/watch-tracker-sub000/internal/service"
)

// Extractor implements service.Extractor against an LLM provider. A call
// that still fails after retries, or whose output cannot be parsed, yields
// the safe fallback result rather than an error: the pipeline treats a bad
// extraction as "nothing extractable", never as a fatal failure.
type Extractor struct {
	client      Client
	rateLimiter *rateLimiter
	retryOpts   service.RetryOptions
}

// NewExtractor creates an extractor for the configured provider.
func NewExtractor(cfg Config) (*Extractor, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		client, err = newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported extraction provider %q", common.ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction client: %w", err)
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     15 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}

	return &Extractor{
		client:      client,
		rateLimiter: newRateLimiter(cfg.RateLimit),
		retryOpts:   retryOpts,
	}, nil
}

// NewExtractorWithClient wires an extractor around an existing client.
// Used by tests and by deployments with a custom provider.
func NewExtractorWithClient(client Client) *Extractor {
	return &Extractor{
		client:      client,
		rateLimiter: newRateLimiter(0),
		retryOpts:   service.RetryOptions{MaxAttempts: 3},
	}
}

// Extract runs one extraction call with retry and returns a structured
// result. The returned result is never nil.
func (e *Extractor) Extract(ctx context.Context, text string) (*model.ExtractionResult, error) {
	if err := e.rateLimiter.wait(ctx); err != nil {
		return nil, err
	}

	var content string
	retryErr := common.WithRetry(ctx, func() error {
		var callErr error
		content, callErr = e.client.Extract(ctx, text)
		return callErr
	}, e.retryOpts)

	if retryErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("Extraction call failed, using fallback result", "error", retryErr)
		return model.FallbackExtraction(), nil
	}

	result, err := ParseResult(content)
	if err != nil {
		slog.Warn("Extraction response unparseable, using fallback result", "error", err)
		return model.FallbackExtraction(), nil
	}

	return result, nil
}

// Close releases the extractor's background resources.
func (e *Extractor) Close() {
	e.rateLimiter.Close()
}
