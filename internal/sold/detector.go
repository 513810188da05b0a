// Package sold detects "sold" confirmation replies and transitions the
// referenced listing without invoking the extraction collaborator.
package sold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/Yuanja/watch-tracker-sub000/internal/common"
	"github.com/Yuanja/watch-tracker-sub000/internal/metrics"
	"github.com/Yuanja/watch-tracker-sub000/internal/model"
	"github.com/Yuanja/watch-tracker-sub000/internal/service"
)

// soldPattern matches a reply whose entire body is the word "sold",
// optionally followed by exclamation marks or periods. Anything more, such
// as "sold out of stock", is a regular message and goes through extraction.
var soldPattern = regexp.MustCompile(`^\s*(?i:sold)[!.]*\s*$`)

// IsSoldReply reports whether the message is a sold confirmation: a reply
// to another message whose body is just "sold".
func IsSoldReply(msg *model.RawMessage) bool {
	return msg.IsReply() && soldPattern.MatchString(msg.Body)
}

// Apply handles a sold confirmation. It looks up the listing created from
// the replied-to message, transitions it to sold when it is still open, and
// marks the reply processed. Replies to messages without a listing are
// consumed silently; replies to closed listings leave the status unchanged.
func Apply(ctx context.Context, store service.Storage, msg *model.RawMessage) (*model.Listing, error) {
	listing, err := store.GetListingByMessageExternalID(ctx, msg.ReplyToExternalID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			slog.Info("Sold reply references no listing",
				"message_id", msg.ID,
				"reply_to", msg.ReplyToExternalID,
			)
			if err := store.MarkMessageProcessed(ctx, msg.ID); err != nil {
				return nil, fmt.Errorf("failed to mark sold reply processed: %w", err)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up listing for sold reply: %w", err)
	}

	if !listing.Open() {
		slog.Info("Sold reply for non-open listing",
			"listing_id", listing.ID,
			"status", listing.Status,
		)
		if err := store.MarkMessageProcessed(ctx, msg.ID); err != nil {
			return nil, fmt.Errorf("failed to mark sold reply processed: %w", err)
		}
		return listing, nil
	}

	now := time.Now().UTC()
	listing.Status = model.StatusSold
	listing.SoldAt = &now
	listing.SoldMessageExternalID = msg.ExternalID

	// Record the buyer only when someone other than the seller confirmed.
	seller, err := store.GetMessageByID(ctx, listing.RawMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load originating message: %w", err)
	}
	if msg.SenderPhone != "" && msg.SenderPhone != seller.SenderPhone {
		listing.BuyerPhone = msg.SenderPhone
		listing.BuyerName = msg.SenderName
	}

	if err := store.SaveListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("failed to mark listing sold: %w", err)
	}
	if err := store.MarkMessageProcessed(ctx, msg.ID); err != nil {
		return nil, fmt.Errorf("failed to mark sold reply processed: %w", err)
	}

	slog.Info("Listing marked sold",
		"listing_id", listing.ID,
		"sold_message", msg.ExternalID,
		"buyer_recorded", listing.BuyerPhone != "",
	)
	metrics.SoldTransitions.Inc()

	return listing, nil
}
