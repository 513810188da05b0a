package model

import (
	"time"

	"github.com/google/uuid"
)

// ReviewStatus tracks the lifecycle of a review queue item.
type ReviewStatus string

// Review status constants.
const (
	ReviewPending  ReviewStatus = "pending"
	ReviewResolved ReviewStatus = "resolved"
	ReviewSkipped  ReviewStatus = "skipped"
)

// ReviewQueueItem holds a pending_review listing for human confirmation.
// Created 1:1 with every pending_review listing; resolved or skipped by the
// review surfaces, which live outside this system.
type ReviewQueueItem struct {
	CreatedAt    time.Time
	Reason       string
	Suggested    string // JSON snapshot of the suggested listing values
	Status       ReviewStatus
	ID           uuid.UUID
	ListingID    uuid.UUID
	RawMessageID uuid.UUID
}
