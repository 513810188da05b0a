package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema: messages, listings, review queue",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS messages (
					id TEXT PRIMARY KEY,
					group_id TEXT NOT NULL,
					external_id TEXT UNIQUE NOT NULL,
					sender_phone TEXT,
					sender_name TEXT,
					body TEXT NOT NULL DEFAULT '',
					media_url TEXT,
					reply_to_external_id TEXT,
					received_at DATETIME NOT NULL,
					embedding TEXT,
					processed INTEGER NOT NULL DEFAULT 0,
					processing_error TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_messages_unprocessed ON messages(processed, received_at)`,

				`CREATE TABLE IF NOT EXISTS listings (
					id TEXT PRIMARY KEY,
					raw_message_id TEXT NOT NULL,
					group_id TEXT NOT NULL,
					intent TEXT NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					description TEXT NOT NULL DEFAULT '',
					category_id INTEGER,
					manufacturer_id INTEGER,
					unit_id INTEGER,
					condition_id INTEGER,
					part_number TEXT,
					quantity INTEGER,
					price REAL,
					currency TEXT,
					price_usd REAL,
					exchange_rate REAL,
					status TEXT NOT NULL,
					needs_review INTEGER NOT NULL DEFAULT 0,
					expires_at DATETIME,
					sold_at DATETIME,
					sold_message_external_id TEXT,
					buyer_phone TEXT,
					buyer_name TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (raw_message_id) REFERENCES messages(id)
				)`,
				`CREATE INDEX idx_listings_status ON listings(status)`,
				`CREATE INDEX idx_listings_message ON listings(raw_message_id)`,

				`CREATE TABLE IF NOT EXISTS review_queue (
					id TEXT PRIMARY KEY,
					listing_id TEXT NOT NULL,
					raw_message_id TEXT NOT NULL,
					reason TEXT,
					suggested TEXT,
					status TEXT NOT NULL DEFAULT 'pending',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (listing_id) REFERENCES listings(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_review_queue_status ON review_queue(status)`,
				`CREATE INDEX idx_review_queue_listing ON review_queue(listing_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Users and notification rules",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					phone TEXT UNIQUE NOT NULL,
					name TEXT,
					active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS notification_rules (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					rule_text TEXT NOT NULL DEFAULT '',
					intent TEXT,
					keywords TEXT,
					category_ids TEXT,
					min_price REAL,
					max_price REAL,
					active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (user_id) REFERENCES users(id)
				)`,
				`CREATE INDEX idx_notification_rules_active ON notification_rules(active)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Reference data: categories, manufacturers, units, conditions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT UNIQUE NOT NULL COLLATE NOCASE,
					active INTEGER NOT NULL DEFAULT 1
				)`,

				`CREATE TABLE IF NOT EXISTS manufacturers (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT UNIQUE NOT NULL COLLATE NOCASE,
					aliases TEXT
				)`,

				`CREATE TABLE IF NOT EXISTS units (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT UNIQUE NOT NULL COLLATE NOCASE,
					abbrev TEXT
				)`,

				`CREATE TABLE IF NOT EXISTS conditions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT UNIQUE NOT NULL COLLATE NOCASE,
					abbrev TEXT,
					active INTEGER NOT NULL DEFAULT 1
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "Jargon dictionary",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS jargon (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					acronym TEXT UNIQUE NOT NULL COLLATE NOCASE,
					expansion TEXT NOT NULL DEFAULT '',
					verified INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_jargon_verified ON jargon(verified)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// SchemaVersion returns the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies any pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= ExpectedSchemaVersion {
		slog.Debug("Database schema up to date", "version", currentVersion)
		return nil
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		slog.Info("Applying migration",
			"version", migration.Version,
			"description", migration.Description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		// PRAGMA doesn't support placeholders
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set schema version %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	slog.Info("Database migrations complete", "version", ExpectedSchemaVersion)
	return nil
}
