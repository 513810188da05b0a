// Package router turns an extraction result into zero or more persisted
// listings, deciding between auto-accept and the human review queue based on
// the extraction confidence.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Yuanja/watch-tracker-sub000/internal/common"
	"github.com/Yuanja/watch-tracker-sub000/internal/metrics"
	"github.com/Yuanja/watch-tracker-sub000/internal/model"
	"github.com/Yuanja/watch-tracker-sub000/internal/service"
)

// Default routing thresholds and windows.
const (
	DefaultReviewThreshold = 0.5
	DefaultAutoThreshold   = 0.8
	DefaultExpiryWindow    = 14 * 24 * time.Hour

	// descriptionFallbackLimit bounds the message-body copy used when the
	// collaborator returns an item with no description.
	descriptionFallbackLimit = 200
)

// Config tunes the confidence router.
type Config struct {
	// ReviewThreshold is the confidence below which results are discarded.
	ReviewThreshold float64

	// AutoThreshold is the confidence at or above which listings are
	// accepted without human review.
	AutoThreshold float64

	// ExpiryWindow is how long a new listing stays current.
	ExpiryWindow time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ReviewThreshold == 0 {
		c.ReviewThreshold = DefaultReviewThreshold
	}
	if c.AutoThreshold == 0 {
		c.AutoThreshold = DefaultAutoThreshold
	}
	if c.ExpiryWindow == 0 {
		c.ExpiryWindow = DefaultExpiryWindow
	}
}

// Router creates listings from extraction results.
type Router struct {
	converter service.Converter
	embedder  service.Embedder
	config    Config
}

// New creates a router. The embedder may be nil; embedding is best-effort.
func New(config Config, converter service.Converter, embedder service.Embedder) *Router {
	config.ApplyDefaults()
	return &Router{
		config:    config,
		converter: converter,
		embedder:  embedder,
	}
}

// Route converts an extraction result into persisted listings. Confidence
// below the review threshold discards every item. Each item becomes an
// independent listing sharing the result's intent and confidence. Reference
// misses stay null and never block creation.
func (r *Router) Route(ctx context.Context, store service.Storage, msg *model.RawMessage, result *model.ExtractionResult) ([]model.Listing, error) {
	if result == nil || len(result.Items) == 0 {
		return nil, nil
	}
	if result.Confidence < r.config.ReviewThreshold {
		slog.Info("Discarding low-confidence extraction",
			"message_id", msg.ID,
			"confidence", result.Confidence,
			"items", len(result.Items),
		)
		metrics.ExtractionsDiscarded.Inc()
		return nil, nil
	}

	refs, err := newResolver(ctx, store)
	if err != nil {
		return nil, err
	}

	intent := model.ParseIntent(result.Intent)
	now := time.Now().UTC()
	status := model.StatusPendingReview
	needsReview := true
	if result.Confidence >= r.config.AutoThreshold {
		status = model.StatusActive
		needsReview = false
	}

	listings := make([]model.Listing, 0, len(result.Items))
	for _, item := range result.Items {
		listing := r.buildListing(ctx, refs, msg, result, item)
		listing.Intent = intent
		listing.Status = status
		listing.NeedsReview = needsReview
		listing.CreatedAt = now
		listing.ExpiresAt = now.Add(r.config.ExpiryWindow)

		if err := store.SaveListing(ctx, &listing); err != nil {
			return nil, fmt.Errorf("failed to save listing: %w", err)
		}
		metrics.ListingsCreated.WithLabelValues(string(status)).Inc()

		r.embedDescription(ctx, listing)
		listings = append(listings, listing)
	}

	return listings, nil
}

// buildListing fills one listing from an extracted item. Every reference
// resolves independently; conversion failures leave the USD fields null.
func (r *Router) buildListing(ctx context.Context, refs *resolver, msg *model.RawMessage, result *model.ExtractionResult, item model.ExtractedItem) model.Listing {
	description := item.Description
	if description == "" {
		description = common.Truncate(msg.Body, descriptionFallbackLimit)
	}

	listing := model.Listing{
		ID:             uuid.New(),
		RawMessageID:   msg.ID,
		GroupID:        msg.GroupID,
		Confidence:     result.Confidence,
		Description:    description,
		PartNumber:     item.PartNumber,
		Quantity:       item.Quantity,
		Price:          item.Price,
		Currency:       item.Currency,
		CategoryID:     refs.Category(item.Category),
		ManufacturerID: refs.Manufacturer(item.Manufacturer),
		UnitID:         refs.Unit(item.Unit),
		ConditionID:    refs.Condition(item.Condition),
	}

	if item.Price != nil && item.Currency != "" {
		usd, rate, err := r.converter.ToUSD(ctx, *item.Price, item.Currency, time.Now().UTC())
		if err != nil {
			slog.Warn("Currency conversion failed",
				"currency", item.Currency,
				"amount", *item.Price,
				"error", err,
			)
		} else {
			listing.PriceUSD = &usd
			listing.ExchangeRate = &rate
		}
	}

	return listing
}

// embedDescription computes a best-effort vector for the listing description.
func (r *Router) embedDescription(ctx context.Context, listing model.Listing) {
	if r.embedder == nil || listing.Description == "" {
		return
	}
	if _, err := r.embedder.Embed(ctx, "listing:"+listing.ID.String(), listing.Description); err != nil {
		slog.Warn("Failed to embed listing description",
			"listing_id", listing.ID,
			"error", err,
		)
	}
}
