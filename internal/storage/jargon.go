package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
)

// GetVerifiedJargon returns the verified entries, the only ones the expander
// ever applies.
func (s *SQLiteStorage) GetVerifiedJargon(ctx context.Context) ([]model.JargonEntry, error) {
	return s.getVerifiedJargon(ctx, s.db)
}

func (s *SQLiteStorage) getVerifiedJargon(ctx context.Context, q querier) ([]model.JargonEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, acronym, expansion, verified, created_at
		FROM jargon
		WHERE verified = 1
		ORDER BY acronym`)
	if err != nil {
		return nil, fmt.Errorf("failed to query jargon: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.JargonEntry
	for rows.Next() {
		var (
			entry     model.JargonEntry
			createdAt sql.NullTime
		)
		if err := rows.Scan(&entry.ID, &entry.Acronym, &entry.Expansion,
			&entry.Verified, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan jargon entry: %w", err)
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SaveJargonEntry upserts a jargon entry. Unknown terms learned from the
// extraction output insert as unverified and never overwrite an existing
// entry's expansion or verified flag.
func (s *SQLiteStorage) SaveJargonEntry(ctx context.Context, entry *model.JargonEntry) error {
	return s.saveJargonEntry(ctx, s.db, entry)
}

func (s *SQLiteStorage) saveJargonEntry(ctx context.Context, q querier, entry *model.JargonEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateJargonEntry(entry); err != nil {
		return err
	}

	var res sql.Result
	var err error
	if entry.Verified {
		res, err = q.ExecContext(ctx, `
			INSERT INTO jargon (acronym, expansion, verified) VALUES (?, ?, 1)
			ON CONFLICT(acronym) DO UPDATE SET
				expansion = excluded.expansion,
				verified = 1
		`, entry.Acronym, entry.Expansion)
	} else {
		res, err = q.ExecContext(ctx, `
			INSERT OR IGNORE INTO jargon (acronym, expansion, verified) VALUES (?, ?, 0)
		`, entry.Acronym, entry.Expansion)
	}
	if err != nil {
		return fmt.Errorf("failed to save jargon entry: %w", err)
	}
	if entry.ID == 0 {
		entry.ID, _ = res.LastInsertId()
	}
	return nil
}
