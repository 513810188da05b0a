// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Message operations
	SaveMessage(ctx context.Context, msg *model.RawMessage) error
	GetMessageByID(ctx context.Context, id uuid.UUID) (*model.RawMessage, error)
	GetMessageByExternalID(ctx context.Context, externalID string) (*model.RawMessage, error)
	GetUnprocessedMessages(ctx context.Context, limit int) ([]model.RawMessage, error)
	CountUnprocessedMessages(ctx context.Context) (int, error)
	CountMessages(ctx context.Context) (int, error)
	MarkMessageProcessed(ctx context.Context, id uuid.UUID) error
	SetMessageError(ctx context.Context, id uuid.UUID, errText string) error
	UpdateMessageEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
	ResetProcessedFlags(ctx context.Context) (int64, error)

	// Listing operations
	SaveListing(ctx context.Context, listing *model.Listing) error
	GetListingByID(ctx context.Context, id uuid.UUID) (*model.Listing, error)
	GetListingByMessageExternalID(ctx context.Context, externalID string) (*model.Listing, error)
	GetListingsByStatus(ctx context.Context, status model.ListingStatus, limit int) ([]model.Listing, error)
	DeleteListingsByStatus(ctx context.Context, statuses []model.ListingStatus) (int64, int64, error)

	// Review queue operations
	SaveReviewItem(ctx context.Context, item *model.ReviewQueueItem) error
	GetPendingReviewItems(ctx context.Context, limit int) ([]model.ReviewQueueItem, error)
	CountPendingReviewItems(ctx context.Context) (int, error)

	// Notification rules
	SaveUser(ctx context.Context, user *model.User) error
	SaveRule(ctx context.Context, rule *model.NotificationRule) error
	GetActiveRules(ctx context.Context) ([]model.NotificationRule, error)

	// Reference data
	GetCategories(ctx context.Context) ([]model.Category, error)
	GetManufacturers(ctx context.Context) ([]model.Manufacturer, error)
	GetUnits(ctx context.Context) ([]model.Unit, error)
	GetConditions(ctx context.Context) ([]model.Condition, error)
	SaveCategory(ctx context.Context, category *model.Category) error
	SaveManufacturer(ctx context.Context, manufacturer *model.Manufacturer) error
	SaveUnit(ctx context.Context, unit *model.Unit) error
	SaveCondition(ctx context.Context, condition *model.Condition) error

	// Jargon operations
	GetVerifiedJargon(ctx context.Context) ([]model.JargonEntry, error)
	SaveJargonEntry(ctx context.Context, entry *model.JargonEntry) error

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}

// Extractor turns jargon-expanded message text into a structured result.
// Implementations must never return a nil result alongside a nil error.
type Extractor interface {
	Extract(ctx context.Context, text string) (*model.ExtractionResult, error)
}

// Embedder computes a semantic embedding for a document and records it for
// similarity search. Failures are always non-fatal to the pipeline.
type Embedder interface {
	Embed(ctx context.Context, id, text string) ([]float32, error)
}

// Converter turns an amount in a source currency into US dollars.
type Converter interface {
	ToUSD(ctx context.Context, amount float64, currency string, at time.Time) (usd, rate float64, err error)
}

// Dispatcher delivers one notification for a rule that matched a listing.
// Fire-and-forget from the pipeline's perspective.
type Dispatcher interface {
	Dispatch(ctx context.Context, rule model.NotificationRule, listing model.Listing) error
}

// Broadcaster emits real-time signals to connected clients. Responses are
// never consumed; failures are logged and ignored.
type Broadcaster interface {
	ListingCreated(ctx context.Context, listing model.Listing) error
	ReviewItemCreated(ctx context.Context, item model.ReviewQueueItem) error
}

// CatchupStats shows the results of one catchup run.
type CatchupStats struct {
	Processed int
	Failed    int
	Duration  time.Duration
}

// ResetStats shows the results of a reprocessing reset.
type ResetStats struct {
	ListingsDeleted    int64
	ReviewItemsDeleted int64
	MessagesReset      int64
}

// PipelineStatus is a snapshot of the pipeline for the admin surface.
type PipelineStatus struct {
	CatchupRunning     bool
	UnprocessedCount   int
	TotalMessages      int
	PendingReviewCount int
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
