package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
)

// SaveMessage inserts or replaces a raw message.
func (s *SQLiteStorage) SaveMessage(ctx context.Context, msg *model.RawMessage) error {
	return s.saveMessage(ctx, s.db, msg)
}

func (s *SQLiteStorage) saveMessage(ctx context.Context, q querier, msg *model.RawMessage) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMessage(msg); err != nil {
		return err
	}

	embedding, err := encodeEmbedding(msg.Embedding)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO messages (
			id, group_id, external_id, sender_phone, sender_name, body,
			media_url, reply_to_external_id, received_at, embedding,
			processed, processing_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			processed = excluded.processed,
			processing_error = excluded.processing_error,
			embedding = excluded.embedding
	`,
		msg.ID.String(), msg.GroupID.String(), msg.ExternalID,
		msg.SenderPhone, msg.SenderName, msg.Body,
		msg.MediaURL, msg.ReplyToExternalID, msg.ReceivedAt, embedding,
		msg.Processed, msg.ProcessingError)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetMessageByID retrieves a message by its internal id.
func (s *SQLiteStorage) GetMessageByID(ctx context.Context, id uuid.UUID) (*model.RawMessage, error) {
	return s.getMessageByID(ctx, s.db, id)
}

func (s *SQLiteStorage) getMessageByID(ctx context.Context, q querier, id uuid.UUID) (*model.RawMessage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	row := q.QueryRowContext(ctx, messageSelect+` WHERE id = ?`, id.String())
	return scanMessage(row)
}

// GetMessageByExternalID retrieves a message by its chat-platform id.
func (s *SQLiteStorage) GetMessageByExternalID(ctx context.Context, externalID string) (*model.RawMessage, error) {
	return s.getMessageByExternalID(ctx, s.db, externalID)
}

func (s *SQLiteStorage) getMessageByExternalID(ctx context.Context, q querier, externalID string) (*model.RawMessage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(externalID, "externalID"); err != nil {
		return nil, err
	}

	row := q.QueryRowContext(ctx, messageSelect+` WHERE external_id = ?`, externalID)
	return scanMessage(row)
}

// GetUnprocessedMessages returns the oldest unprocessed messages, up to limit.
// Catchup always re-queries from the start of the unprocessed set; completed
// messages drop out as their processed flag is set.
func (s *SQLiteStorage) GetUnprocessedMessages(ctx context.Context, limit int) ([]model.RawMessage, error) {
	return s.getUnprocessedMessages(ctx, s.db, limit)
}

func (s *SQLiteStorage) getUnprocessedMessages(ctx context.Context, q querier, limit int) ([]model.RawMessage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := q.QueryContext(ctx, messageSelect+`
		WHERE processed = 0
		ORDER BY received_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []model.RawMessage
	for rows.Next() {
		msg, err := scanMessageRows(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// CountUnprocessedMessages returns the size of the unprocessed backlog.
func (s *SQLiteStorage) CountUnprocessedMessages(ctx context.Context) (int, error) {
	return s.countMessages(ctx, s.db, false)
}

// CountMessages returns the total number of recorded messages.
func (s *SQLiteStorage) CountMessages(ctx context.Context) (int, error) {
	return s.countMessages(ctx, s.db, true)
}

func (s *SQLiteStorage) countMessages(ctx context.Context, q querier, all bool) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM messages`
	if !all {
		query += ` WHERE processed = 0`
	}

	var count int
	if err := q.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// MarkMessageProcessed sets the processed flag and clears any prior error.
func (s *SQLiteStorage) MarkMessageProcessed(ctx context.Context, id uuid.UUID) error {
	return s.markMessageProcessed(ctx, s.db, id)
}

func (s *SQLiteStorage) markMessageProcessed(ctx context.Context, q querier, id uuid.UUID) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	res, err := q.ExecContext(ctx,
		`UPDATE messages SET processed = 1, processing_error = NULL WHERE id = ?`,
		id.String())
	if err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	return nil
}

// SetMessageError records a processing failure on the message. The processed
// flag is left clear so the next catchup pass retries it.
func (s *SQLiteStorage) SetMessageError(ctx context.Context, id uuid.UUID, errText string) error {
	return s.setMessageError(ctx, s.db, id, errText)
}

func (s *SQLiteStorage) setMessageError(ctx context.Context, q querier, id uuid.UUID, errText string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx,
		`UPDATE messages SET processing_error = ? WHERE id = ?`,
		errText, id.String())
	if err != nil {
		return fmt.Errorf("failed to set message error: %w", err)
	}
	return nil
}

// UpdateMessageEmbedding stores the semantic embedding for a message.
func (s *SQLiteStorage) UpdateMessageEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	return s.updateMessageEmbedding(ctx, s.db, id, embedding)
}

func (s *SQLiteStorage) updateMessageEmbedding(ctx context.Context, q querier, id uuid.UUID, embedding []float32) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	encoded, err := encodeEmbedding(embedding)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx,
		`UPDATE messages SET embedding = ? WHERE id = ?`, encoded, id.String())
	if err != nil {
		return fmt.Errorf("failed to update message embedding: %w", err)
	}
	return nil
}

// ResetProcessedFlags clears the processed flag on every message so the next
// catchup pass regenerates listings. Part of the reprocessing reset.
func (s *SQLiteStorage) ResetProcessedFlags(ctx context.Context) (int64, error) {
	return s.resetProcessedFlags(ctx, s.db)
}

func (s *SQLiteStorage) resetProcessedFlags(ctx context.Context, q querier) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	res, err := q.ExecContext(ctx,
		`UPDATE messages SET processed = 0, processing_error = NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset processed flags: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset messages: %w", err)
	}
	return n, nil
}

const messageSelect = `
	SELECT id, group_id, external_id, sender_phone, sender_name, body,
	       media_url, reply_to_external_id, received_at, embedding,
	       processed, processing_error
	FROM messages`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row *sql.Row) (*model.RawMessage, error) {
	msg, err := scanMessageRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message", ErrNotFound)
	}
	return msg, err
}

func scanMessageRows(row rowScanner) (*model.RawMessage, error) {
	var (
		msg                model.RawMessage
		idStr, groupStr    string
		phone, name, media sql.NullString
		replyTo, embedding sql.NullString
		processingError    sql.NullString
		receivedAt         time.Time
	)

	err := row.Scan(&idStr, &groupStr, &msg.ExternalID, &phone, &name, &msg.Body,
		&media, &replyTo, &receivedAt, &embedding, &msg.Processed, &processingError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	msg.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message id: %w", err)
	}
	msg.GroupID, err = uuid.Parse(groupStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse group id: %w", err)
	}

	msg.SenderPhone = phone.String
	msg.SenderName = name.String
	msg.MediaURL = media.String
	msg.ReplyToExternalID = replyTo.String
	msg.ProcessingError = processingError.String
	msg.ReceivedAt = receivedAt

	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &msg.Embedding); err != nil {
			return nil, fmt.Errorf("failed to decode embedding: %w", err)
		}
	}

	return &msg, nil
}

func encodeEmbedding(embedding []float32) (any, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding: %w", err)
	}
	return string(encoded), nil
}
