// Package storage provides the data persistence layer for the tracker application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Yuanja/watch-tracker-sub000/internal/common"
	"github.com/Yuanja/watch-tracker-sub000/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrNilID          = errors.New("id cannot be the zero uuid")
	ErrInvalidStatus  = errors.New("invalid listing status")
	ErrInvalidIntent  = errors.New("invalid intent")
	ErrInvalidMessage = errors.New("invalid message")
	ErrInvalidListing = errors.New("invalid listing")

	// ErrNotFound aliases the shared sentinel so callers can match it
	// without importing this package.
	ErrNotFound = common.ErrNotFound
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateID ensures a uuid parameter is set.
func validateID(id uuid.UUID, paramName string) error {
	if id == uuid.Nil {
		return fmt.Errorf("%w: %s", ErrNilID, paramName)
	}
	return nil
}

// validateMessage validates a raw message before persistence.
func validateMessage(msg *model.RawMessage) error {
	if msg == nil {
		return fmt.Errorf("%w: message", ErrNilParameter)
	}
	if msg.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidMessage)
	}
	if msg.ExternalID == "" {
		return fmt.Errorf("%w: missing external id", ErrInvalidMessage)
	}
	if msg.ReceivedAt.IsZero() {
		return fmt.Errorf("%w: missing received timestamp", ErrInvalidMessage)
	}
	return nil
}

// validateListing validates a listing before persistence.
func validateListing(listing *model.Listing) error {
	if listing == nil {
		return fmt.Errorf("%w: listing", ErrNilParameter)
	}
	if listing.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidListing)
	}
	if listing.RawMessageID == uuid.Nil {
		return fmt.Errorf("%w: missing raw message id", ErrInvalidListing)
	}
	switch listing.Status {
	case model.StatusActive, model.StatusPendingReview, model.StatusExpired,
		model.StatusSold, model.StatusDeleted:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, listing.Status)
	}
	switch listing.Intent {
	case model.IntentSell, model.IntentWant, model.IntentUnknown:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidIntent, listing.Intent)
	}
	return nil
}

// validateReviewItem validates a review queue item before persistence.
func validateReviewItem(item *model.ReviewQueueItem) error {
	if item == nil {
		return fmt.Errorf("%w: review item", ErrNilParameter)
	}
	if item.ID == uuid.Nil || item.ListingID == uuid.Nil {
		return fmt.Errorf("%w: review item ids", ErrNilID)
	}
	return nil
}

// validateJargonEntry validates a jargon entry before persistence.
func validateJargonEntry(entry *model.JargonEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: jargon entry", ErrNilParameter)
	}
	if strings.TrimSpace(entry.Acronym) == "" {
		return fmt.Errorf("%w: acronym", ErrEmptyString)
	}
	return nil
}
