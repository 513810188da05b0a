// Package broadcast publishes pipeline events over NATS so that downstream
// consumers (web UI, notification senders) learn about new listings and
// review items without polling. Publishing happens after the database
// transaction commits and is never allowed to fail the pipeline.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
)

// Subjects for pipeline events.
const (
	SubjectListingCreated = "listings.new"
	SubjectReviewCreated  = "reviews.new"
	SubjectNotification   = "notifications.matched"
)

// Config holds NATS connection settings.
type Config struct {
	// URL is the NATS server URL, e.g. nats://localhost:4222.
	URL string

	// Name identifies this client on the server.
	Name string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Name == "" {
		c.Name = "watch-tracker"
	}
}

// Publisher broadcasts events over a NATS connection. It implements both
// service.Broadcaster and service.Dispatcher.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher connects to NATS and returns a publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.ApplyDefaults()

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{nc: nc}, nil
}

// ListingCreated announces a newly stored listing.
func (p *Publisher) ListingCreated(ctx context.Context, listing model.Listing) error {
	return p.publish(ctx, SubjectListingCreated, listing)
}

// ReviewItemCreated announces a new review queue item.
func (p *Publisher) ReviewItemCreated(ctx context.Context, item model.ReviewQueueItem) error {
	return p.publish(ctx, SubjectReviewCreated, item)
}

// notificationEvent is the payload published when a listing matches a
// user's notification rule.
type notificationEvent struct {
	RuleID    uuid.UUID     `json:"rule_id"`
	UserID    uuid.UUID     `json:"user_id"`
	RuleText  string        `json:"rule_text"`
	Listing   model.Listing `json:"listing"`
	MatchedAt time.Time     `json:"matched_at"`
}

// Dispatch publishes a notification event for a rule match.
func (p *Publisher) Dispatch(ctx context.Context, rule model.NotificationRule, listing model.Listing) error {
	return p.publish(ctx, SubjectNotification, notificationEvent{
		RuleID:    rule.ID,
		UserID:    rule.UserID,
		RuleText:  rule.Text,
		Listing:   listing,
		MatchedAt: time.Now().UTC(),
	})
}

// Close drains the connection so queued messages are flushed.
func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			slog.Warn("Failed to drain NATS connection", "error", err)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// LogPublisher is a fallback broadcaster used when NATS is not configured.
// It logs events instead of publishing them.
type LogPublisher struct{}

// ListingCreated logs the new listing.
func (LogPublisher) ListingCreated(_ context.Context, listing model.Listing) error {
	slog.Info("Listing created", "listing_id", listing.ID, "intent", listing.Intent, "status", listing.Status)
	return nil
}

// ReviewItemCreated logs the new review item.
func (LogPublisher) ReviewItemCreated(_ context.Context, item model.ReviewQueueItem) error {
	slog.Info("Review item created", "review_id", item.ID, "listing_id", item.ListingID)
	return nil
}

// Dispatch logs the rule match.
func (LogPublisher) Dispatch(_ context.Context, rule model.NotificationRule, listing model.Listing) error {
	slog.Info("Notification rule matched",
		"rule_id", rule.ID,
		"user_id", rule.UserID,
		"listing_id", listing.ID,
	)
	return nil
}
