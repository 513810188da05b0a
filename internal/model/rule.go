package model

import (
	"time"

	"github.com/google/uuid"
)

// User is a community member who can own notification rules.
type User struct {
	CreatedAt time.Time
	Phone     string
	Name      string
	ID        uuid.UUID
	Active    bool
}

// NotificationRule is a user-defined alert. Text holds the natural-language
// rule as the user wrote it; the parsed criteria below are what the matcher
// evaluates. An unset criterion is a wildcard. Read-only from the pipeline's
// perspective.
type NotificationRule struct {
	CreatedAt   time.Time
	Text        string
	Keywords    []string
	CategoryIDs []int64
	Intent      *Intent
	MinPrice    *float64
	MaxPrice    *float64
	ID          uuid.UUID
	UserID      uuid.UUID
	Active      bool
}
