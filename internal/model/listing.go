package model

import (
	"time"

	"github.com/google/uuid"
)

// Intent classifies what the sender wants to do with the item.
type Intent string

// Intent constants.
const (
	IntentSell    Intent = "sell"
	IntentWant    Intent = "want"
	IntentUnknown Intent = "unknown"
)

// ParseIntent maps a free-form intent string from the extraction collaborator
// to a known intent. Unrecognized values map to IntentUnknown.
func ParseIntent(s string) Intent {
	switch Intent(normalize(s)) {
	case IntentSell:
		return IntentSell
	case IntentWant:
		return IntentWant
	default:
		return IntentUnknown
	}
}

// ListingStatus is the lifecycle state of a listing.
type ListingStatus string

// Listing status constants.
const (
	StatusActive        ListingStatus = "active"
	StatusPendingReview ListingStatus = "pending_review"
	StatusExpired       ListingStatus = "expired"
	StatusSold          ListingStatus = "sold"
	StatusDeleted       ListingStatus = "deleted"
)

// ReExtractableStatuses are the statuses a reprocessing reset may delete.
// Sold and deleted listings record real user actions and are never touched.
var ReExtractableStatuses = []ListingStatus{StatusActive, StatusPendingReview, StatusExpired}

// Listing is a structured catalog entry extracted from a raw message.
type Listing struct {
	CreatedAt             time.Time
	ExpiresAt             time.Time
	SoldAt                *time.Time
	CategoryID            *int64
	ManufacturerID        *int64
	UnitID                *int64
	ConditionID           *int64
	Quantity              *int
	Price                 *float64
	PriceUSD              *float64
	ExchangeRate          *float64
	Description           string
	PartNumber            string
	Currency              string
	SoldMessageExternalID string
	BuyerPhone            string
	BuyerName             string
	Intent                Intent
	Status                ListingStatus
	ID                    uuid.UUID
	RawMessageID          uuid.UUID
	GroupID               uuid.UUID
	Confidence            float64
	NeedsReview           bool
}

// Open reports whether the listing can still transition to sold.
func (l *Listing) Open() bool {
	return l.Status == StatusActive || l.Status == StatusPendingReview
}
