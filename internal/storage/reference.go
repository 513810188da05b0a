package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
)

// Reference data is managed by admin surfaces outside this system. The
// pipeline reads full lists once per message and resolves against them in
// memory; the tables are small.

// GetCategories returns all categories.
func (s *SQLiteStorage) GetCategories(ctx context.Context) ([]model.Category, error) {
	return s.getCategories(ctx, s.db)
}

func (s *SQLiteStorage) getCategories(ctx context.Context, q querier) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `SELECT id, name, active FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Active); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// SaveCategory inserts or updates a category by name.
func (s *SQLiteStorage) SaveCategory(ctx context.Context, category *model.Category) error {
	return s.saveCategory(ctx, s.db, category)
}

func (s *SQLiteStorage) saveCategory(ctx context.Context, q querier, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if category == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	if err := validateString(category.Name, "category.Name"); err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO categories (name, active) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET active = excluded.active
	`, category.Name, category.Active)
	if err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}
	if category.ID == 0 {
		category.ID, _ = res.LastInsertId()
	}
	return nil
}

// GetManufacturers returns all manufacturers with their alias lists.
func (s *SQLiteStorage) GetManufacturers(ctx context.Context) ([]model.Manufacturer, error) {
	return s.getManufacturers(ctx, s.db)
}

func (s *SQLiteStorage) getManufacturers(ctx context.Context, q querier) ([]model.Manufacturer, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `SELECT id, name, aliases FROM manufacturers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query manufacturers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var manufacturers []model.Manufacturer
	for rows.Next() {
		var (
			m       model.Manufacturer
			aliases sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Name, &aliases); err != nil {
			return nil, fmt.Errorf("failed to scan manufacturer: %w", err)
		}
		if aliases.Valid && aliases.String != "" {
			if err := json.Unmarshal([]byte(aliases.String), &m.Aliases); err != nil {
				return nil, fmt.Errorf("failed to decode manufacturer aliases: %w", err)
			}
		}
		manufacturers = append(manufacturers, m)
	}
	return manufacturers, rows.Err()
}

// SaveManufacturer inserts or updates a manufacturer by name.
func (s *SQLiteStorage) SaveManufacturer(ctx context.Context, manufacturer *model.Manufacturer) error {
	return s.saveManufacturer(ctx, s.db, manufacturer)
}

func (s *SQLiteStorage) saveManufacturer(ctx context.Context, q querier, manufacturer *model.Manufacturer) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if manufacturer == nil {
		return fmt.Errorf("%w: manufacturer", ErrNilParameter)
	}
	if err := validateString(manufacturer.Name, "manufacturer.Name"); err != nil {
		return err
	}

	aliases, err := json.Marshal(manufacturer.Aliases)
	if err != nil {
		return fmt.Errorf("failed to encode manufacturer aliases: %w", err)
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO manufacturers (name, aliases) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET aliases = excluded.aliases
	`, manufacturer.Name, string(aliases))
	if err != nil {
		return fmt.Errorf("failed to save manufacturer: %w", err)
	}
	if manufacturer.ID == 0 {
		manufacturer.ID, _ = res.LastInsertId()
	}
	return nil
}

// GetUnits returns all quantity units.
func (s *SQLiteStorage) GetUnits(ctx context.Context) ([]model.Unit, error) {
	return s.getUnits(ctx, s.db)
}

func (s *SQLiteStorage) getUnits(ctx context.Context, q querier) ([]model.Unit, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `SELECT id, name, abbrev FROM units ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var units []model.Unit
	for rows.Next() {
		var (
			u      model.Unit
			abbrev sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Name, &abbrev); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		u.Abbrev = abbrev.String
		units = append(units, u)
	}
	return units, rows.Err()
}

// SaveUnit inserts or updates a unit by name.
func (s *SQLiteStorage) SaveUnit(ctx context.Context, unit *model.Unit) error {
	return s.saveUnit(ctx, s.db, unit)
}

func (s *SQLiteStorage) saveUnit(ctx context.Context, q querier, unit *model.Unit) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if unit == nil {
		return fmt.Errorf("%w: unit", ErrNilParameter)
	}
	if err := validateString(unit.Name, "unit.Name"); err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO units (name, abbrev) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET abbrev = excluded.abbrev
	`, unit.Name, unit.Abbrev)
	if err != nil {
		return fmt.Errorf("failed to save unit: %w", err)
	}
	if unit.ID == 0 {
		unit.ID, _ = res.LastInsertId()
	}
	return nil
}

// GetConditions returns all item conditions.
func (s *SQLiteStorage) GetConditions(ctx context.Context) ([]model.Condition, error) {
	return s.getConditions(ctx, s.db)
}

func (s *SQLiteStorage) getConditions(ctx context.Context, q querier) ([]model.Condition, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `SELECT id, name, abbrev, active FROM conditions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query conditions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conditions []model.Condition
	for rows.Next() {
		var (
			c      model.Condition
			abbrev sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &abbrev, &c.Active); err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}
		c.Abbrev = abbrev.String
		conditions = append(conditions, c)
	}
	return conditions, rows.Err()
}

// SaveCondition inserts or updates a condition by name.
func (s *SQLiteStorage) SaveCondition(ctx context.Context, condition *model.Condition) error {
	return s.saveCondition(ctx, s.db, condition)
}

func (s *SQLiteStorage) saveCondition(ctx context.Context, q querier, condition *model.Condition) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if condition == nil {
		return fmt.Errorf("%w: condition", ErrNilParameter)
	}
	if err := validateString(condition.Name, "condition.Name"); err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO conditions (name, abbrev, active) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			abbrev = excluded.abbrev,
			active = excluded.active
	`, condition.Name, condition.Abbrev, condition.Active)
	if err != nil {
		return fmt.Errorf("failed to save condition: %w", err)
	}
	if condition.ID == 0 {
		condition.ID, _ = res.LastInsertId()
	}
	return nil
}
