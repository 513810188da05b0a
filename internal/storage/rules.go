package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
)

// SaveUser inserts or replaces a user.
func (s *SQLiteStorage) SaveUser(ctx context.Context, user *model.User) error {
	return s.saveUser(ctx, s.db, user)
}

func (s *SQLiteStorage) saveUser(ctx context.Context, q querier, user *model.User) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: user", ErrNilParameter)
	}
	if err := validateID(user.ID, "user.ID"); err != nil {
		return err
	}
	if err := validateString(user.Phone, "user.Phone"); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, phone, name, active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			name = excluded.name,
			active = excluded.active
	`, user.ID.String(), user.Phone, user.Name, user.Active)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// SaveRule inserts or replaces a notification rule.
func (s *SQLiteStorage) SaveRule(ctx context.Context, rule *model.NotificationRule) error {
	return s.saveRule(ctx, s.db, rule)
}

func (s *SQLiteStorage) saveRule(ctx context.Context, q querier, rule *model.NotificationRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := validateID(rule.ID, "rule.ID"); err != nil {
		return err
	}
	if err := validateID(rule.UserID, "rule.UserID"); err != nil {
		return err
	}

	keywords, err := json.Marshal(rule.Keywords)
	if err != nil {
		return fmt.Errorf("failed to encode rule keywords: %w", err)
	}
	categoryIDs, err := json.Marshal(rule.CategoryIDs)
	if err != nil {
		return fmt.Errorf("failed to encode rule categories: %w", err)
	}

	var intent any
	if rule.Intent != nil {
		intent = string(*rule.Intent)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO notification_rules (
			id, user_id, rule_text, intent, keywords, category_ids,
			min_price, max_price, active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rule_text = excluded.rule_text,
			intent = excluded.intent,
			keywords = excluded.keywords,
			category_ids = excluded.category_ids,
			min_price = excluded.min_price,
			max_price = excluded.max_price,
			active = excluded.active
	`, rule.ID.String(), rule.UserID.String(), rule.Text, intent,
		string(keywords), string(categoryIDs), rule.MinPrice, rule.MaxPrice, rule.Active)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

// GetActiveRules returns every active rule whose owning user is active.
func (s *SQLiteStorage) GetActiveRules(ctx context.Context) ([]model.NotificationRule, error) {
	return s.getActiveRules(ctx, s.db)
}

func (s *SQLiteStorage) getActiveRules(ctx context.Context, q querier) ([]model.NotificationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT r.id, r.user_id, r.rule_text, r.intent, r.keywords,
		       r.category_ids, r.min_price, r.max_price, r.created_at
		FROM notification_rules r
		JOIN users u ON u.id = r.user_id
		WHERE r.active = 1 AND u.active = 1
		ORDER BY r.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.NotificationRule
	for rows.Next() {
		var (
			rule                  model.NotificationRule
			idStr, userStr        string
			intent                sql.NullString
			keywords, categoryIDs sql.NullString
			createdAt             sql.NullTime
		)
		if err := rows.Scan(&idStr, &userStr, &rule.Text, &intent, &keywords,
			&categoryIDs, &rule.MinPrice, &rule.MaxPrice, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		if rule.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("failed to parse rule id: %w", err)
		}
		if rule.UserID, err = uuid.Parse(userStr); err != nil {
			return nil, fmt.Errorf("failed to parse rule user id: %w", err)
		}

		if intent.Valid && intent.String != "" {
			parsed := model.ParseIntent(intent.String)
			rule.Intent = &parsed
		}
		if keywords.Valid && keywords.String != "" {
			if err := json.Unmarshal([]byte(keywords.String), &rule.Keywords); err != nil {
				return nil, fmt.Errorf("failed to decode rule keywords: %w", err)
			}
		}
		if categoryIDs.Valid && categoryIDs.String != "" {
			if err := json.Unmarshal([]byte(categoryIDs.String), &rule.CategoryIDs); err != nil {
				return nil, fmt.Errorf("failed to decode rule categories: %w", err)
			}
		}
		if createdAt.Valid {
			rule.CreatedAt = createdAt.Time
		}
		rule.Active = true
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
