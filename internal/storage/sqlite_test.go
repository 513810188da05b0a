package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
)

func setupTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testMessage() *model.RawMessage {
	return &model.RawMessage{
		ID:          uuid.New(),
		GroupID:     uuid.New(),
		ExternalID:  "ext-" + uuid.NewString(),
		SenderPhone: "+15550001111",
		SenderName:  "Seller",
		Body:        "FS: Parker valves",
		ReceivedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := setupTestStorage(t)
	require.NoError(t, store.Migrate(context.Background()))

	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestSaveAndGetMessage(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	msg := testMessage()
	msg.MediaURL = "https://example.com/photo.jpg"
	msg.ReplyToExternalID = "ext-parent"
	require.NoError(t, store.SaveMessage(ctx, msg))

	byID, err := store.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ExternalID, byID.ExternalID)
	assert.Equal(t, msg.Body, byID.Body)
	assert.Equal(t, msg.MediaURL, byID.MediaURL)
	assert.Equal(t, msg.ReplyToExternalID, byID.ReplyToExternalID)
	assert.False(t, byID.Processed)

	byExternal, err := store.GetMessageByExternalID(ctx, msg.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, byExternal.ID)
}

func TestGetMessageNotFound(t *testing.T) {
	store := setupTestStorage(t)

	_, err := store.GetMessageByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetMessageByExternalID(context.Background(), "ext-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveMessageUpsertByExternalID(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	msg := testMessage()
	require.NoError(t, store.SaveMessage(ctx, msg))

	// Re-recording the same external message must not duplicate it.
	dup := *msg
	dup.ID = uuid.New()
	require.NoError(t, store.SaveMessage(ctx, &dup))

	total, err := store.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestMarkMessageProcessed(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	msg := testMessage()
	require.NoError(t, store.SaveMessage(ctx, msg))
	require.NoError(t, store.SetMessageError(ctx, msg.ID, "transient failure"))

	saved, err := store.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "transient failure", saved.ProcessingError)

	require.NoError(t, store.MarkMessageProcessed(ctx, msg.ID))
	saved, err = store.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, saved.Processed)
	assert.Empty(t, saved.ProcessingError, "success clears the recorded error")

	assert.ErrorIs(t, store.MarkMessageProcessed(ctx, uuid.New()), ErrNotFound)
}

func TestGetUnprocessedMessagesOldestFirst(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var oldest *model.RawMessage
	for i := 0; i < 3; i++ {
		msg := testMessage()
		msg.ReceivedAt = base.Add(time.Duration(i) * time.Minute)
		if i == 0 {
			oldest = msg
		}
		require.NoError(t, store.SaveMessage(ctx, msg))
	}

	processed := testMessage()
	require.NoError(t, store.SaveMessage(ctx, processed))
	require.NoError(t, store.MarkMessageProcessed(ctx, processed.ID))

	unprocessed, err := store.GetUnprocessedMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unprocessed, 3)
	assert.Equal(t, oldest.ID, unprocessed[0].ID)

	count, err := store.CountUnprocessedMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestUpdateMessageEmbedding(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	msg := testMessage()
	require.NoError(t, store.SaveMessage(ctx, msg))
	require.NoError(t, store.UpdateMessageEmbedding(ctx, msg.ID, []float32{0.25, -0.5, 1}))

	saved, err := store.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, saved.Embedding, 3)
	assert.InDelta(t, -0.5, saved.Embedding[1], 0.0001)
}

func saveTestListing(t *testing.T, store *SQLiteStorage, msg *model.RawMessage, status model.ListingStatus) *model.Listing {
	t.Helper()
	categoryID := int64(1)
	price := 45.0
	usd := 45.0
	rate := 1.0
	quantity := 10

	listing := &model.Listing{
		ID:           uuid.New(),
		RawMessageID: msg.ID,
		GroupID:      msg.GroupID,
		Intent:       model.IntentSell,
		Confidence:   0.85,
		Description:  "Parker 2-way valves",
		CategoryID:   &categoryID,
		PartNumber:   "PV-200",
		Quantity:     &quantity,
		Price:        &price,
		Currency:     "USD",
		PriceUSD:     &usd,
		ExchangeRate: &rate,
		Status:       status,
		CreatedAt:    time.Now().UTC(),
		ExpiresAt:    time.Now().UTC().Add(14 * 24 * time.Hour),
	}
	require.NoError(t, store.SaveListing(context.Background(), listing))
	return listing
}

func TestSaveAndGetListing(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	msg := testMessage()
	require.NoError(t, store.SaveMessage(ctx, msg))
	listing := saveTestListing(t, store, msg, model.StatusActive)

	saved, err := store.GetListingByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.Description, saved.Description)
	assert.Equal(t, model.IntentSell, saved.Intent)
	require.NotNil(t, saved.CategoryID)
	assert.Equal(t, int64(1), *saved.CategoryID)
	assert.Nil(t, saved.ManufacturerID, "unresolved references stay null")
	require.NotNil(t, saved.Quantity)
	assert.Equal(t, 10, *saved.Quantity)
	require.NotNil(t, saved.PriceUSD)
	assert.InDelta(t, 45.0, *saved.PriceUSD, 0.001)
	assert.Nil(t, saved.SoldAt)
}

func TestGetListingByMessageExternalID(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	msg := testMessage()
	require.NoError(t, store.SaveMessage(ctx, msg))
	listing := saveTestListing(t, store, msg, model.StatusActive)

	found, err := store.GetListingByMessageExternalID(ctx, msg.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, listing.ID, found.ID)

	_, err = store.GetListingByMessageExternalID(ctx, "ext-nothing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveListingUpdatesStatus(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	msg := testMessage()
	require.NoError(t, store.SaveMessage(ctx, msg))
	listing := saveTestListing(t, store, msg, model.StatusActive)

	now := time.Now().UTC()
	listing.Status = model.StatusSold
	listing.SoldAt = &now
	listing.SoldMessageExternalID = "ext-sold"
	listing.BuyerPhone = "+15550009999"
	listing.BuyerName = "Buyer"
	require.NoError(t, store.SaveListing(ctx, listing))

	saved, err := store.GetListingByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSold, saved.Status)
	require.NotNil(t, saved.SoldAt)
	assert.Equal(t, "ext-sold", saved.SoldMessageExternalID)
	assert.Equal(t, "+15550009999", saved.BuyerPhone)
}

func TestGetListingsByStatus(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		msg := testMessage()
		require.NoError(t, store.SaveMessage(ctx, msg))
		saveTestListing(t, store, msg, model.StatusActive)
	}
	msg := testMessage()
	require.NoError(t, store.SaveMessage(ctx, msg))
	saveTestListing(t, store, msg, model.StatusPendingReview)

	active, err := store.GetListingsByStatus(ctx, model.StatusActive, 10)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	pending, err := store.GetListingsByStatus(ctx, model.StatusPendingReview, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestDeleteListingsByStatus(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	msgActive := testMessage()
	require.NoError(t, store.SaveMessage(ctx, msgActive))
	saveTestListing(t, store, msgActive, model.StatusActive)

	msgPending := testMessage()
	require.NoError(t, store.SaveMessage(ctx, msgPending))
	pending := saveTestListing(t, store, msgPending, model.StatusPendingReview)
	require.NoError(t, store.SaveReviewItem(ctx, &model.ReviewQueueItem{
		ID:           uuid.New(),
		ListingID:    pending.ID,
		RawMessageID: msgPending.ID,
		Reason:       "confidence 0.65 below auto-accept threshold",
		Suggested:    "{}",
	}))

	msgSold := testMessage()
	require.NoError(t, store.SaveMessage(ctx, msgSold))
	sold := saveTestListing(t, store, msgSold, model.StatusSold)

	listings, reviews, err := store.DeleteListingsByStatus(ctx, model.ReExtractableStatuses)
	require.NoError(t, err)
	assert.Equal(t, int64(2), listings)
	assert.Equal(t, int64(1), reviews)

	// Sold listings survive.
	_, err = store.GetListingByID(ctx, sold.ID)
	require.NoError(t, err)
	_, err = store.GetListingByID(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetProcessedFlags(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg := testMessage()
		require.NoError(t, store.SaveMessage(ctx, msg))
		require.NoError(t, store.MarkMessageProcessed(ctx, msg.ID))
	}

	reset, err := store.ResetProcessedFlags(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), reset)

	count, err := store.CountUnprocessedMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestReviewQueue(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	msg := testMessage()
	require.NoError(t, store.SaveMessage(ctx, msg))
	listing := saveTestListing(t, store, msg, model.StatusPendingReview)

	item := &model.ReviewQueueItem{
		ID:           uuid.New(),
		ListingID:    listing.ID,
		RawMessageID: msg.ID,
		Reason:       "confidence 0.65 below auto-accept threshold",
		Suggested:    `{"description":"Parker 2-way valves"}`,
	}
	require.NoError(t, store.SaveReviewItem(ctx, item))

	items, err := store.GetPendingReviewItems(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.ReviewPending, items[0].Status, "status defaults to pending")
	assert.Equal(t, listing.ID, items[0].ListingID)

	count, err := store.CountPendingReviewItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	item.Status = model.ReviewResolved
	require.NoError(t, store.SaveReviewItem(ctx, item))
	count, err = store.CountPendingReviewItems(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRulesAndUsers(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	active := &model.User{ID: uuid.New(), Phone: "+15550002222", Name: "Dana", Active: true}
	inactive := &model.User{ID: uuid.New(), Phone: "+15550003333", Name: "Riley", Active: false}
	require.NoError(t, store.SaveUser(ctx, active))
	require.NoError(t, store.SaveUser(ctx, inactive))

	sell := model.IntentSell
	minPrice := 50.0
	rule := &model.NotificationRule{
		ID:          uuid.New(),
		UserID:      active.ID,
		Text:        "parker valves over $50",
		Intent:      &sell,
		Keywords:    []string{"parker", "valve"},
		CategoryIDs: []int64{1, 2},
		MinPrice:    &minPrice,
		Active:      true,
	}
	require.NoError(t, store.SaveRule(ctx, rule))

	// Rules of inactive owners and inactive rules are excluded.
	require.NoError(t, store.SaveRule(ctx, &model.NotificationRule{
		ID: uuid.New(), UserID: inactive.ID, Text: "anything", Active: true,
	}))
	require.NoError(t, store.SaveRule(ctx, &model.NotificationRule{
		ID: uuid.New(), UserID: active.ID, Text: "disabled", Active: false,
	}))

	rules, err := store.GetActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	got := rules[0]
	assert.Equal(t, rule.ID, got.ID)
	assert.Equal(t, []string{"parker", "valve"}, got.Keywords)
	assert.Equal(t, []int64{1, 2}, got.CategoryIDs)
	require.NotNil(t, got.Intent)
	assert.Equal(t, model.IntentSell, *got.Intent)
	require.NotNil(t, got.MinPrice)
	assert.InDelta(t, 50.0, *got.MinPrice, 0.001)
	assert.Nil(t, got.MaxPrice)
}

func TestReferenceData(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	category := &model.Category{Name: "Valves", Active: true}
	require.NoError(t, store.SaveCategory(ctx, category))
	assert.NotZero(t, category.ID)

	manufacturer := &model.Manufacturer{Name: "Parker Hannifin", Aliases: []string{"Parker", "PH"}}
	require.NoError(t, store.SaveManufacturer(ctx, manufacturer))

	unit := &model.Unit{Name: "pieces", Abbrev: "pcs"}
	require.NoError(t, store.SaveUnit(ctx, unit))

	condition := &model.Condition{Name: "New Old Stock", Abbrev: "NOS", Active: true}
	require.NoError(t, store.SaveCondition(ctx, condition))

	categories, err := store.GetCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)

	manufacturers, err := store.GetManufacturers(ctx)
	require.NoError(t, err)
	require.Len(t, manufacturers, 1)
	assert.Equal(t, []string{"Parker", "PH"}, manufacturers[0].Aliases)

	units, err := store.GetUnits(ctx)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "pcs", units[0].Abbrev)

	conditions, err := store.GetConditions(ctx)
	require.NoError(t, err)
	require.Len(t, conditions, 1)

	// Upsert by name keeps a single row.
	require.NoError(t, store.SaveCategory(ctx, &model.Category{Name: "valves", Active: true}))
	categories, err = store.GetCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 1, "names collate case-insensitively")
}

func TestJargonStore(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	verified := &model.JargonEntry{Acronym: "NOS", Expansion: "New Old Stock", Verified: true}
	require.NoError(t, store.SaveJargonEntry(ctx, verified))

	candidate := &model.JargonEntry{Acronym: "BNIB", Verified: false}
	require.NoError(t, store.SaveJargonEntry(ctx, candidate))

	entries, err := store.GetVerifiedJargon(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "NOS", entries[0].Acronym)

	// An unverified save never clobbers a verified entry.
	require.NoError(t, store.SaveJargonEntry(ctx, &model.JargonEntry{Acronym: "NOS", Verified: false}))
	entries, err = store.GetVerifiedJargon(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "New Old Stock", entries[0].Expansion)
}

func TestTransactionCommitAndRollback(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	msg := testMessage()
	require.NoError(t, store.SaveMessage(ctx, msg))

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.MarkMessageProcessed(ctx, msg.ID))
	require.NoError(t, tx.Rollback())

	saved, err := store.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, saved.Processed, "rolled-back changes do not persist")

	tx, err = store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.MarkMessageProcessed(ctx, msg.ID))
	require.NoError(t, tx.Commit())

	saved, err = store.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, saved.Processed)
}

func TestValidation(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	err := store.SaveMessage(ctx, &model.RawMessage{ID: uuid.New()})
	assert.Error(t, err, "missing external id is rejected")

	err = store.SaveListing(ctx, &model.Listing{
		ID:           uuid.New(),
		RawMessageID: uuid.New(),
		Status:       "bogus",
		Intent:       model.IntentSell,
		Description:  "x",
	})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
