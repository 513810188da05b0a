package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
)

// SaveListing inserts or replaces a listing.
func (s *SQLiteStorage) SaveListing(ctx context.Context, listing *model.Listing) error {
	return s.saveListing(ctx, s.db, listing)
}

func (s *SQLiteStorage) saveListing(ctx context.Context, q querier, listing *model.Listing) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateListing(listing); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO listings (
			id, raw_message_id, group_id, intent, confidence, description,
			category_id, manufacturer_id, unit_id, condition_id,
			part_number, quantity, price, currency, price_usd, exchange_rate,
			status, needs_review, expires_at, sold_at,
			sold_message_external_id, buyer_phone, buyer_name, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			needs_review = excluded.needs_review,
			sold_at = excluded.sold_at,
			sold_message_external_id = excluded.sold_message_external_id,
			buyer_phone = excluded.buyer_phone,
			buyer_name = excluded.buyer_name,
			price_usd = excluded.price_usd,
			exchange_rate = excluded.exchange_rate
	`,
		listing.ID.String(), listing.RawMessageID.String(), listing.GroupID.String(),
		string(listing.Intent), listing.Confidence, listing.Description,
		listing.CategoryID, listing.ManufacturerID, listing.UnitID, listing.ConditionID,
		listing.PartNumber, listing.Quantity, listing.Price, listing.Currency,
		listing.PriceUSD, listing.ExchangeRate,
		string(listing.Status), listing.NeedsReview, listing.ExpiresAt, listing.SoldAt,
		listing.SoldMessageExternalID, listing.BuyerPhone, listing.BuyerName,
		listing.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save listing: %w", err)
	}
	return nil
}

// GetListingByID retrieves a listing by id.
func (s *SQLiteStorage) GetListingByID(ctx context.Context, id uuid.UUID) (*model.Listing, error) {
	return s.getListingByID(ctx, s.db, id)
}

func (s *SQLiteStorage) getListingByID(ctx context.Context, q querier, id uuid.UUID) (*model.Listing, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	row := q.QueryRowContext(ctx, listingSelect+` WHERE l.id = ?`, id.String())
	listing, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: listing %s", ErrNotFound, id)
	}
	return listing, err
}

// GetListingByMessageExternalID finds the listing whose originating message
// has the given chat-platform id. Used by the sold-reply detector to resolve
// a reply target. When a message produced several listings the most recent
// one wins.
func (s *SQLiteStorage) GetListingByMessageExternalID(ctx context.Context, externalID string) (*model.Listing, error) {
	return s.getListingByMessageExternalID(ctx, s.db, externalID)
}

func (s *SQLiteStorage) getListingByMessageExternalID(ctx context.Context, q querier, externalID string) (*model.Listing, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(externalID, "externalID"); err != nil {
		return nil, err
	}

	row := q.QueryRowContext(ctx, listingSelect+`
		JOIN messages m ON m.id = l.raw_message_id
		WHERE m.external_id = ?
		ORDER BY l.created_at DESC
		LIMIT 1`, externalID)
	listing, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: listing for message %s", ErrNotFound, externalID)
	}
	return listing, err
}

// GetListingsByStatus returns listings in the given status, newest first.
func (s *SQLiteStorage) GetListingsByStatus(ctx context.Context, status model.ListingStatus, limit int) ([]model.Listing, error) {
	return s.getListingsByStatus(ctx, s.db, status, limit)
}

func (s *SQLiteStorage) getListingsByStatus(ctx context.Context, q querier, status model.ListingStatus, limit int) ([]model.Listing, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.QueryContext(ctx, listingSelect+`
		WHERE l.status = ?
		ORDER BY l.created_at DESC
		LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var listings []model.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *listing)
	}
	return listings, rows.Err()
}

// DeleteListingsByStatus hard-deletes every listing in the given statuses
// along with their dependent review items, and returns both counts. Only the
// reprocessing reset calls this; sold and deleted listings are never passed.
func (s *SQLiteStorage) DeleteListingsByStatus(ctx context.Context, statuses []model.ListingStatus) (int64, int64, error) {
	return s.deleteListingsByStatus(ctx, s.db, statuses)
}

func (s *SQLiteStorage) deleteListingsByStatus(ctx context.Context, q querier, statuses []model.ListingStatus) (int64, int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, 0, err
	}
	if len(statuses) == 0 {
		return 0, 0, fmt.Errorf("%w: statuses", ErrNilParameter)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}

	res, err := q.ExecContext(ctx, fmt.Sprintf( //nolint:gosec // placeholders only
		`DELETE FROM review_queue WHERE listing_id IN (
			SELECT id FROM listings WHERE status IN (%s))`, placeholders), args...)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete review items: %w", err)
	}
	reviewsDeleted, err := res.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count deleted review items: %w", err)
	}

	res, err = q.ExecContext(ctx, fmt.Sprintf( //nolint:gosec // placeholders only
		`DELETE FROM listings WHERE status IN (%s)`, placeholders), args...)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete listings: %w", err)
	}
	listingsDeleted, err := res.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count deleted listings: %w", err)
	}

	return listingsDeleted, reviewsDeleted, nil
}

const listingSelect = `
	SELECT l.id, l.raw_message_id, l.group_id, l.intent, l.confidence, l.description,
	       l.category_id, l.manufacturer_id, l.unit_id, l.condition_id,
	       l.part_number, l.quantity, l.price, l.currency, l.price_usd, l.exchange_rate,
	       l.status, l.needs_review, l.expires_at, l.sold_at,
	       l.sold_message_external_id, l.buyer_phone, l.buyer_name, l.created_at
	FROM listings l`

func scanListing(row rowScanner) (*model.Listing, error) {
	var (
		listing                      model.Listing
		idStr, msgStr, groupStr      string
		intent, status               string
		partNumber, currency         sql.NullString
		soldExternalID, buyerPhone   sql.NullString
		buyerName                    sql.NullString
		quantity                     sql.NullInt64
		expiresAt, soldAt, createdAt sql.NullTime
	)

	err := row.Scan(&idStr, &msgStr, &groupStr, &intent, &listing.Confidence,
		&listing.Description, &listing.CategoryID, &listing.ManufacturerID,
		&listing.UnitID, &listing.ConditionID, &partNumber, &quantity,
		&listing.Price, &currency, &listing.PriceUSD, &listing.ExchangeRate,
		&status, &listing.NeedsReview, &expiresAt, &soldAt,
		&soldExternalID, &buyerPhone, &buyerName, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan listing: %w", err)
	}

	listing.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing id: %w", err)
	}
	listing.RawMessageID, err = uuid.Parse(msgStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse raw message id: %w", err)
	}
	listing.GroupID, err = uuid.Parse(groupStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse group id: %w", err)
	}

	listing.Intent = model.Intent(intent)
	listing.Status = model.ListingStatus(status)
	listing.PartNumber = partNumber.String
	listing.Currency = currency.String
	listing.SoldMessageExternalID = soldExternalID.String
	listing.BuyerPhone = buyerPhone.String
	listing.BuyerName = buyerName.String

	if quantity.Valid {
		n := int(quantity.Int64)
		listing.Quantity = &n
	}
	if expiresAt.Valid {
		listing.ExpiresAt = expiresAt.Time
	}
	if soldAt.Valid {
		t := soldAt.Time
		listing.SoldAt = &t
	}
	if createdAt.Valid {
		listing.CreatedAt = createdAt.Time
	}

	return &listing, nil
}
