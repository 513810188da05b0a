package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
	"github.com/Yuanja/watch-tracker-sub000/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// the same query helpers can run standalone or inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction. Every
// Storage method runs against the wrapped transaction; with a single SQLite
// connection, touching the base storage while a transaction is open would
// deadlock.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTransaction) SaveMessage(ctx context.Context, msg *model.RawMessage) error {
	return t.storage.saveMessage(ctx, t.tx, msg)
}

func (t *sqliteTransaction) GetMessageByID(ctx context.Context, id uuid.UUID) (*model.RawMessage, error) {
	return t.storage.getMessageByID(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetMessageByExternalID(ctx context.Context, externalID string) (*model.RawMessage, error) {
	return t.storage.getMessageByExternalID(ctx, t.tx, externalID)
}

func (t *sqliteTransaction) GetUnprocessedMessages(ctx context.Context, limit int) ([]model.RawMessage, error) {
	return t.storage.getUnprocessedMessages(ctx, t.tx, limit)
}

func (t *sqliteTransaction) CountUnprocessedMessages(ctx context.Context) (int, error) {
	return t.storage.countMessages(ctx, t.tx, false)
}

func (t *sqliteTransaction) CountMessages(ctx context.Context) (int, error) {
	return t.storage.countMessages(ctx, t.tx, true)
}

func (t *sqliteTransaction) MarkMessageProcessed(ctx context.Context, id uuid.UUID) error {
	return t.storage.markMessageProcessed(ctx, t.tx, id)
}

func (t *sqliteTransaction) SetMessageError(ctx context.Context, id uuid.UUID, errText string) error {
	return t.storage.setMessageError(ctx, t.tx, id, errText)
}

func (t *sqliteTransaction) UpdateMessageEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	return t.storage.updateMessageEmbedding(ctx, t.tx, id, embedding)
}

func (t *sqliteTransaction) ResetProcessedFlags(ctx context.Context) (int64, error) {
	return t.storage.resetProcessedFlags(ctx, t.tx)
}

func (t *sqliteTransaction) SaveListing(ctx context.Context, listing *model.Listing) error {
	return t.storage.saveListing(ctx, t.tx, listing)
}

func (t *sqliteTransaction) GetListingByID(ctx context.Context, id uuid.UUID) (*model.Listing, error) {
	return t.storage.getListingByID(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetListingByMessageExternalID(ctx context.Context, externalID string) (*model.Listing, error) {
	return t.storage.getListingByMessageExternalID(ctx, t.tx, externalID)
}

func (t *sqliteTransaction) GetListingsByStatus(ctx context.Context, status model.ListingStatus, limit int) ([]model.Listing, error) {
	return t.storage.getListingsByStatus(ctx, t.tx, status, limit)
}

func (t *sqliteTransaction) DeleteListingsByStatus(ctx context.Context, statuses []model.ListingStatus) (int64, int64, error) {
	return t.storage.deleteListingsByStatus(ctx, t.tx, statuses)
}

func (t *sqliteTransaction) SaveReviewItem(ctx context.Context, item *model.ReviewQueueItem) error {
	return t.storage.saveReviewItem(ctx, t.tx, item)
}

func (t *sqliteTransaction) GetPendingReviewItems(ctx context.Context, limit int) ([]model.ReviewQueueItem, error) {
	return t.storage.getPendingReviewItems(ctx, t.tx, limit)
}

func (t *sqliteTransaction) CountPendingReviewItems(ctx context.Context) (int, error) {
	return t.storage.countPendingReviewItems(ctx, t.tx)
}

func (t *sqliteTransaction) SaveUser(ctx context.Context, user *model.User) error {
	return t.storage.saveUser(ctx, t.tx, user)
}

func (t *sqliteTransaction) SaveRule(ctx context.Context, rule *model.NotificationRule) error {
	return t.storage.saveRule(ctx, t.tx, rule)
}

func (t *sqliteTransaction) GetActiveRules(ctx context.Context) ([]model.NotificationRule, error) {
	return t.storage.getActiveRules(ctx, t.tx)
}

func (t *sqliteTransaction) GetCategories(ctx context.Context) ([]model.Category, error) {
	return t.storage.getCategories(ctx, t.tx)
}

func (t *sqliteTransaction) GetManufacturers(ctx context.Context) ([]model.Manufacturer, error) {
	return t.storage.getManufacturers(ctx, t.tx)
}

func (t *sqliteTransaction) GetUnits(ctx context.Context) ([]model.Unit, error) {
	return t.storage.getUnits(ctx, t.tx)
}

func (t *sqliteTransaction) GetConditions(ctx context.Context) ([]model.Condition, error) {
	return t.storage.getConditions(ctx, t.tx)
}

func (t *sqliteTransaction) SaveCategory(ctx context.Context, category *model.Category) error {
	return t.storage.saveCategory(ctx, t.tx, category)
}

func (t *sqliteTransaction) SaveManufacturer(ctx context.Context, manufacturer *model.Manufacturer) error {
	return t.storage.saveManufacturer(ctx, t.tx, manufacturer)
}

func (t *sqliteTransaction) SaveUnit(ctx context.Context, unit *model.Unit) error {
	return t.storage.saveUnit(ctx, t.tx, unit)
}

func (t *sqliteTransaction) SaveCondition(ctx context.Context, condition *model.Condition) error {
	return t.storage.saveCondition(ctx, t.tx, condition)
}

func (t *sqliteTransaction) GetVerifiedJargon(ctx context.Context) ([]model.JargonEntry, error) {
	return t.storage.getVerifiedJargon(ctx, t.tx)
}

func (t *sqliteTransaction) SaveJargonEntry(ctx context.Context, entry *model.JargonEntry) error {
	return t.storage.saveJargonEntry(ctx, t.tx, entry)
}

func (t *sqliteTransaction) Migrate(_ context.Context) error {
	// Migrations should not be run within a transaction
	return fmt.Errorf("migrations cannot be run within a transaction")
}

func (t *sqliteTransaction) BeginTx(_ context.Context) (service.Transaction, error) {
	// Nested transactions not supported
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *sqliteTransaction) Close() error {
	// Transactions should be committed or rolled back, not closed
	return fmt.Errorf("transactions must be committed or rolled back, not closed")
}
