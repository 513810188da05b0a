package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
)

// SaveReviewItem inserts or replaces a review queue item.
func (s *SQLiteStorage) SaveReviewItem(ctx context.Context, item *model.ReviewQueueItem) error {
	return s.saveReviewItem(ctx, s.db, item)
}

func (s *SQLiteStorage) saveReviewItem(ctx context.Context, q querier, item *model.ReviewQueueItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateReviewItem(item); err != nil {
		return err
	}

	status := item.Status
	if status == "" {
		status = model.ReviewPending
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO review_queue (id, listing_id, raw_message_id, reason, suggested, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status
	`,
		item.ID.String(), item.ListingID.String(), item.RawMessageID.String(),
		item.Reason, item.Suggested, string(status))
	if err != nil {
		return fmt.Errorf("failed to save review item: %w", err)
	}
	return nil
}

// GetPendingReviewItems returns pending review items, oldest first.
func (s *SQLiteStorage) GetPendingReviewItems(ctx context.Context, limit int) ([]model.ReviewQueueItem, error) {
	return s.getPendingReviewItems(ctx, s.db, limit)
}

func (s *SQLiteStorage) getPendingReviewItems(ctx context.Context, q querier, limit int) ([]model.ReviewQueueItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, listing_id, raw_message_id, reason, suggested, status, created_at
		FROM review_queue
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT ?`, string(model.ReviewPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query review items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.ReviewQueueItem
	for rows.Next() {
		var (
			item              model.ReviewQueueItem
			idStr, listingStr string
			msgStr, status    string
			reason, suggested sql.NullString
			createdAt         sql.NullTime
		)
		if err := rows.Scan(&idStr, &listingStr, &msgStr, &reason, &suggested, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan review item: %w", err)
		}

		if item.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("failed to parse review item id: %w", err)
		}
		if item.ListingID, err = uuid.Parse(listingStr); err != nil {
			return nil, fmt.Errorf("failed to parse listing id: %w", err)
		}
		if item.RawMessageID, err = uuid.Parse(msgStr); err != nil {
			return nil, fmt.Errorf("failed to parse raw message id: %w", err)
		}

		item.Reason = reason.String
		item.Suggested = suggested.String
		item.Status = model.ReviewStatus(status)
		if createdAt.Valid {
			item.CreatedAt = createdAt.Time
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountPendingReviewItems returns the number of items awaiting review.
func (s *SQLiteStorage) CountPendingReviewItems(ctx context.Context) (int, error) {
	return s.countPendingReviewItems(ctx, s.db)
}

func (s *SQLiteStorage) countPendingReviewItems(ctx context.Context, q querier) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM review_queue WHERE status = ?`,
		string(model.ReviewPending)).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to count review items: %w", err)
	}
	return count, nil
}
