package sold

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
	"github.com/Yuanja/watch-tracker-sub000/internal/service"
	"github.com/Yuanja/watch-tracker-sub000/internal/storage"
)

func TestIsSoldReply(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		replyTo string
		want    bool
	}{
		{name: "plain sold", body: "sold", replyTo: "ext-1", want: true},
		{name: "capitalized with bang", body: "Sold!", replyTo: "ext-1", want: true},
		{name: "all caps", body: "SOLD", replyTo: "ext-1", want: true},
		{name: "trailing period", body: "sold.", replyTo: "ext-1", want: true},
		{name: "surrounding whitespace", body: "  sold!  ", replyTo: "ext-1", want: true},
		{name: "multiple bangs", body: "sold!!!", replyTo: "ext-1", want: true},
		{name: "not a reply", body: "sold", replyTo: "", want: false},
		{name: "extra words", body: "Sold out of stock", replyTo: "ext-1", want: false},
		{name: "leading words", body: "item sold", replyTo: "ext-1", want: false},
		{name: "question", body: "sold?", replyTo: "ext-1", want: false},
		{name: "unrelated reply", body: "still available?", replyTo: "ext-1", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &model.RawMessage{Body: tt.body, ReplyToExternalID: tt.replyTo}
			assert.Equal(t, tt.want, IsSoldReply(msg))
		})
	}
}

func setupStorage(t *testing.T) service.Storage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedListing(t *testing.T, store service.Storage, status model.ListingStatus, sellerPhone string) (*model.RawMessage, *model.Listing) {
	t.Helper()
	ctx := context.Background()

	original := &model.RawMessage{
		ID:          uuid.New(),
		GroupID:     uuid.New(),
		ExternalID:  "ext-" + uuid.NewString(),
		SenderPhone: sellerPhone,
		SenderName:  "Seller",
		Body:        "FS: Parker valves",
		ReceivedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.SaveMessage(ctx, original))

	listing := &model.Listing{
		ID:           uuid.New(),
		RawMessageID: original.ID,
		GroupID:      original.GroupID,
		Intent:       model.IntentSell,
		Confidence:   0.9,
		Description:  "Parker valves",
		Status:       status,
		CreatedAt:    time.Now().UTC(),
		ExpiresAt:    time.Now().UTC().Add(24 * time.Hour),
	}
	require.NoError(t, store.SaveListing(ctx, listing))
	return original, listing
}

func soldReply(original *model.RawMessage, senderPhone string) *model.RawMessage {
	return &model.RawMessage{
		ID:                uuid.New(),
		GroupID:           original.GroupID,
		ExternalID:        "ext-" + uuid.NewString(),
		SenderPhone:       senderPhone,
		SenderName:        "Buyer",
		Body:              "Sold!",
		ReplyToExternalID: original.ExternalID,
		ReceivedAt:        time.Now().UTC(),
	}
}

func TestApplyMarksOpenListingSold(t *testing.T) {
	store := setupStorage(t)
	ctx := context.Background()

	original, listing := seedListing(t, store, model.StatusActive, "+15550001111")
	reply := soldReply(original, "+15550009999")
	require.NoError(t, store.SaveMessage(ctx, reply))

	got, err := Apply(ctx, store, reply)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, model.StatusSold, got.Status)
	require.NotNil(t, got.SoldAt)
	assert.Equal(t, reply.ExternalID, got.SoldMessageExternalID)
	assert.Equal(t, "+15550009999", got.BuyerPhone)
	assert.Equal(t, "Buyer", got.BuyerName)

	saved, err := store.GetListingByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSold, saved.Status)

	msg, err := store.GetMessageByID(ctx, reply.ID)
	require.NoError(t, err)
	assert.True(t, msg.Processed)
}

func TestApplySellerConfirmationRecordsNoBuyer(t *testing.T) {
	store := setupStorage(t)
	ctx := context.Background()

	original, _ := seedListing(t, store, model.StatusPendingReview, "+15550001111")
	reply := soldReply(original, "+15550001111")
	require.NoError(t, store.SaveMessage(ctx, reply))

	got, err := Apply(ctx, store, reply)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, model.StatusSold, got.Status)
	assert.Empty(t, got.BuyerPhone)
	assert.Empty(t, got.BuyerName)
}

func TestApplyNonOpenListingUnchanged(t *testing.T) {
	store := setupStorage(t)
	ctx := context.Background()

	original, listing := seedListing(t, store, model.StatusExpired, "+15550001111")
	reply := soldReply(original, "+15550009999")
	require.NoError(t, store.SaveMessage(ctx, reply))

	got, err := Apply(ctx, store, reply)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StatusExpired, got.Status)
	assert.Nil(t, got.SoldAt)

	saved, err := store.GetListingByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, saved.Status)

	msg, err := store.GetMessageByID(ctx, reply.ID)
	require.NoError(t, err)
	assert.True(t, msg.Processed)
}

func TestApplyNoListingConsumesReply(t *testing.T) {
	store := setupStorage(t)
	ctx := context.Background()

	original := &model.RawMessage{
		ID:         uuid.New(),
		GroupID:    uuid.New(),
		ExternalID: "ext-no-listing",
		Body:       "just chatting",
		ReceivedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveMessage(ctx, original))

	reply := soldReply(original, "+15550009999")
	require.NoError(t, store.SaveMessage(ctx, reply))

	got, err := Apply(ctx, store, reply)
	require.NoError(t, err)
	assert.Nil(t, got)

	msg, err := store.GetMessageByID(ctx, reply.ID)
	require.NoError(t, err)
	assert.True(t, msg.Processed)
}
