// Package engine orchestrates the message processing pipeline: sold-reply
// short circuit, jargon expansion, extraction, confidence routing, review
// queue creation, and post-commit signaling. It also owns the worker pool,
// the catchup driver, and the reprocessing reset.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Yuanja/watch-tracker-sub000/internal/common"
	"github.com/Yuanja/watch-tracker-sub000/internal/jargon"
	"github.com/Yuanja/watch-tracker-sub000/internal/metrics"
	"github.com/Yuanja/watch-tracker-sub000/internal/model"
	"github.com/Yuanja/watch-tracker-sub000/internal/notify"
	"github.com/Yuanja/watch-tracker-sub000/internal/router"
	"github.com/Yuanja/watch-tracker-sub000/internal/service"
	"github.com/Yuanja/watch-tracker-sub000/internal/sold"
)

// errorFieldLimit bounds the error text recorded on a failed message.
const errorFieldLimit = 500

// Engine runs the per-message pipeline. One sqlite transaction covers the
// routing, review items, sold transition, and the processed flag; broadcast,
// notification and embedding are non-fatal side steps.
type Engine struct {
	store          service.Storage
	extractor      service.Extractor
	embedder       service.Embedder
	broadcaster    service.Broadcaster
	router         *router.Router
	matcher        *notify.Matcher
	catchupRunning atomic.Bool
	catchupBatch   int
}

// Options configures an engine. Router holds the routing thresholds;
// Embedder and Broadcaster may be nil, in which case those side steps are
// skipped.
type Options struct {
	Store       service.Storage
	Extractor   service.Extractor
	Embedder    service.Embedder
	Broadcaster service.Broadcaster
	Router      *router.Router
	Matcher     *notify.Matcher

	// CatchupBatch is how many unprocessed messages one catchup pass
	// requests at a time. Defaults to 50.
	CatchupBatch int
}

// New creates a pipeline engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: storage is required", common.ErrMissingConfig)
	}
	if opts.Extractor == nil {
		return nil, fmt.Errorf("%w: extractor is required", common.ErrMissingConfig)
	}
	if opts.Router == nil {
		return nil, fmt.Errorf("%w: router is required", common.ErrMissingConfig)
	}
	if opts.CatchupBatch <= 0 {
		opts.CatchupBatch = 50
	}

	return &Engine{
		store:        opts.Store,
		extractor:    opts.Extractor,
		embedder:     opts.Embedder,
		broadcaster:  opts.Broadcaster,
		router:       opts.Router,
		matcher:      opts.Matcher,
		catchupBatch: opts.CatchupBatch,
	}, nil
}

// ProcessMessage runs the full pipeline for one message and returns the
// listings it produced. Already-processed messages are a no-op. Any failure
// is recorded on the message's error field and the message stays
// unprocessed for the next catchup pass.
func (e *Engine) ProcessMessage(ctx context.Context, id uuid.UUID) ([]model.Listing, error) {
	msg, err := e.store.GetMessageByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	if msg.Processed {
		return nil, nil
	}

	listings, reviews, err := e.process(ctx, msg)
	if err != nil {
		metrics.MessagesFailed.Inc()
		if recordErr := e.store.SetMessageError(ctx, id, common.Truncate(err.Error(), errorFieldLimit)); recordErr != nil {
			slog.Error("Failed to record processing error",
				"message_id", id,
				"error", recordErr,
			)
		}
		return nil, err
	}

	metrics.MessagesProcessed.Inc()
	e.signal(ctx, listings, reviews)
	return listings, nil
}

// process runs the per-message sequence inside one transaction and returns
// the created listings and review items for post-commit signaling.
func (e *Engine) process(ctx context.Context, msg *model.RawMessage) ([]model.Listing, []model.ReviewQueueItem, error) {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	// Re-read under the transaction: the pre-transaction check can race a
	// concurrent worker on the same message, and only this one is the
	// commit gate.
	msg, err = tx.GetMessageByID(ctx, msg.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load message: %w", err)
	}
	if msg.Processed {
		return nil, nil, nil
	}

	if msg.IsBlank() {
		if err := tx.MarkMessageProcessed(ctx, msg.ID); err != nil {
			return nil, nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, nil, fmt.Errorf("failed to commit: %w", err)
		}
		return nil, nil, nil
	}

	if sold.IsSoldReply(msg) {
		listing, err := sold.Apply(ctx, tx, msg)
		if err != nil {
			return nil, nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, nil, fmt.Errorf("failed to commit: %w", err)
		}
		if listing == nil {
			return nil, nil, nil
		}
		return []model.Listing{*listing}, nil, nil
	}

	e.embedMessage(ctx, tx, msg)

	expanded, err := e.expandJargon(ctx, tx, msg.Body)
	if err != nil {
		return nil, nil, err
	}

	extractStart := time.Now()
	result, err := e.extractor.Extract(ctx, expanded)
	metrics.ExtractionDuration.Observe(time.Since(extractStart).Seconds())
	if err != nil {
		return nil, nil, fmt.Errorf("extraction failed: %w", err)
	}

	listings, err := e.router.Route(ctx, tx, msg, result)
	if err != nil {
		return nil, nil, err
	}

	reviews, err := e.queueReviews(ctx, tx, listings)
	if err != nil {
		return nil, nil, err
	}

	e.learnJargon(ctx, tx, result.UnknownTerms)

	if err := tx.MarkMessageProcessed(ctx, msg.ID); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit: %w", err)
	}

	return listings, reviews, nil
}

// embedMessage computes and stores a best-effort embedding of the raw body.
func (e *Engine) embedMessage(ctx context.Context, tx service.Transaction, msg *model.RawMessage) {
	if e.embedder == nil {
		return
	}
	vector, err := e.embedder.Embed(ctx, "message:"+msg.ID.String(), msg.Body)
	if err != nil {
		slog.Warn("Failed to embed message", "message_id", msg.ID, "error", err)
		return
	}
	if err := tx.UpdateMessageEmbedding(ctx, msg.ID, vector); err != nil {
		slog.Warn("Failed to store message embedding", "message_id", msg.ID, "error", err)
	}
}

// expandJargon rewrites the body with verified acronym expansions before it
// reaches the extraction collaborator.
func (e *Engine) expandJargon(ctx context.Context, tx service.Transaction, body string) (string, error) {
	entries, err := tx.GetVerifiedJargon(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load jargon: %w", err)
	}
	return jargon.Expand(body, entries), nil
}

// queueReviews creates one review item per pending_review listing.
func (e *Engine) queueReviews(ctx context.Context, tx service.Transaction, listings []model.Listing) ([]model.ReviewQueueItem, error) {
	var reviews []model.ReviewQueueItem
	for _, listing := range listings {
		if listing.Status != model.StatusPendingReview {
			continue
		}

		snapshot, err := json.Marshal(listing)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot listing for review: %w", err)
		}

		item := model.ReviewQueueItem{
			ID:           uuid.New(),
			ListingID:    listing.ID,
			RawMessageID: listing.RawMessageID,
			Reason:       fmt.Sprintf("confidence %.2f below auto-accept threshold", listing.Confidence),
			Suggested:    string(snapshot),
			Status:       model.ReviewPending,
		}
		if err := tx.SaveReviewItem(ctx, &item); err != nil {
			return nil, fmt.Errorf("failed to save review item: %w", err)
		}
		reviews = append(reviews, item)
	}
	return reviews, nil
}

// learnJargon stores unknown terms as unverified jargon candidates. Storage
// never overwrites an existing entry; failures are logged and skipped.
func (e *Engine) learnJargon(ctx context.Context, tx service.Transaction, terms []string) {
	for _, term := range terms {
		entry := model.JargonEntry{Acronym: term, Verified: false}
		if err := tx.SaveJargonEntry(ctx, &entry); err != nil {
			slog.Warn("Failed to record jargon candidate", "term", term, "error", err)
		}
	}
}

// signal emits post-commit events: new-listing broadcasts and notification
// matching for active listings, new-review-item broadcasts for the rest.
// Every step here is non-fatal.
func (e *Engine) signal(ctx context.Context, listings []model.Listing, reviews []model.ReviewQueueItem) {
	for _, listing := range listings {
		if listing.Status != model.StatusActive {
			continue
		}
		if e.broadcaster != nil {
			if err := e.broadcaster.ListingCreated(ctx, listing); err != nil {
				slog.Warn("Failed to broadcast listing", "listing_id", listing.ID, "error", err)
			}
		}
		if e.matcher != nil {
			if err := e.matcher.Notify(ctx, e.store, listing); err != nil {
				slog.Warn("Notification matching failed", "listing_id", listing.ID, "error", err)
			}
		}
	}

	if e.broadcaster != nil {
		for _, item := range reviews {
			if err := e.broadcaster.ReviewItemCreated(ctx, item); err != nil {
				slog.Warn("Failed to broadcast review item", "review_id", item.ID, "error", err)
			}
		}
	}
}

// ResetExtractions deletes every listing in a re-extractable status together
// with its review items, then clears the processed flag on all messages so
// the next catchup regenerates them. Sold and deleted listings are kept.
func (e *Engine) ResetExtractions(ctx context.Context) (service.ResetStats, error) {
	var stats service.ResetStats

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	listings, reviews, err := tx.DeleteListingsByStatus(ctx, model.ReExtractableStatuses)
	if err != nil {
		return stats, fmt.Errorf("failed to delete listings: %w", err)
	}

	messages, err := tx.ResetProcessedFlags(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to reset processed flags: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("failed to commit reset: %w", err)
	}

	stats.ListingsDeleted = listings
	stats.ReviewItemsDeleted = reviews
	stats.MessagesReset = messages

	slog.Info("Reprocessing reset complete",
		"listings_deleted", stats.ListingsDeleted,
		"review_items_deleted", stats.ReviewItemsDeleted,
		"messages_reset", stats.MessagesReset,
	)
	return stats, nil
}

// Status returns a snapshot of the pipeline for the admin surface.
func (e *Engine) Status(ctx context.Context) (service.PipelineStatus, error) {
	var status service.PipelineStatus

	unprocessed, err := e.store.CountUnprocessedMessages(ctx)
	if err != nil {
		return status, fmt.Errorf("failed to count unprocessed messages: %w", err)
	}
	total, err := e.store.CountMessages(ctx)
	if err != nil {
		return status, fmt.Errorf("failed to count messages: %w", err)
	}
	pending, err := e.store.CountPendingReviewItems(ctx)
	if err != nil {
		return status, fmt.Errorf("failed to count pending reviews: %w", err)
	}

	status.CatchupRunning = e.catchupRunning.Load()
	status.UnprocessedCount = unprocessed
	status.TotalMessages = total
	status.PendingReviewCount = pending
	return status, nil
}
