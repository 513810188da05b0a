// Package notify evaluates user notification rules against newly accepted
// listings and dispatches one notification per match. Matching runs after
// the listing transaction commits and never fails the pipeline.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Yuanja/watch-tracker-sub000/internal/metrics"
	"github.com/Yuanja/watch-tracker-sub000/internal/model"
	"github.com/Yuanja/watch-tracker-sub000/internal/service"
)

// Matcher matches listings against active notification rules.
type Matcher struct {
	dispatcher service.Dispatcher
}

// NewMatcher creates a matcher that delivers through the given dispatcher.
func NewMatcher(dispatcher service.Dispatcher) *Matcher {
	return &Matcher{dispatcher: dispatcher}
}

// Notify loads the active rules of active users and dispatches one
// notification per rule the listing satisfies. Dispatch failures are logged
// and do not stop evaluation of the remaining rules.
func (m *Matcher) Notify(ctx context.Context, store service.Storage, listing model.Listing) error {
	rules, err := store.GetActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load notification rules: %w", err)
	}

	for _, rule := range rules {
		if !Matches(rule, listing) {
			continue
		}

		slog.Info("Notification rule matched",
			"rule_id", rule.ID,
			"user_id", rule.UserID,
			"listing_id", listing.ID,
		)
		metrics.NotificationsDispatched.Inc()

		if err := m.dispatcher.Dispatch(ctx, rule, listing); err != nil {
			slog.Warn("Failed to dispatch notification",
				"rule_id", rule.ID,
				"listing_id", listing.ID,
				"error", err,
			)
		}
	}

	return nil
}

// Matches reports whether a listing satisfies every criterion the rule sets.
// An absent criterion is a wildcard. A rule with a category constraint fails
// on listings whose category did not resolve; a price bound fails on
// listings without a price.
func Matches(rule model.NotificationRule, listing model.Listing) bool {
	if rule.Intent != nil && listing.Intent != *rule.Intent {
		return false
	}

	if len(rule.Keywords) > 0 && !matchesKeyword(rule.Keywords, listing.Description) {
		return false
	}

	if len(rule.CategoryIDs) > 0 {
		if listing.CategoryID == nil {
			return false
		}
		if !slices.Contains(rule.CategoryIDs, *listing.CategoryID) {
			return false
		}
	}

	if rule.MinPrice != nil || rule.MaxPrice != nil {
		if listing.Price == nil {
			return false
		}
		if rule.MinPrice != nil && *listing.Price < *rule.MinPrice {
			return false
		}
		if rule.MaxPrice != nil && *listing.Price > *rule.MaxPrice {
			return false
		}
	}

	return true
}

// matchesKeyword reports whether any keyword appears in the description,
// case-insensitively.
func matchesKeyword(keywords []string, description string) bool {
	lower := strings.ToLower(description)
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" && strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
