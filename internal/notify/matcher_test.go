package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
	"github.com/Yuanja/watch-tracker-sub000/internal/storage"
)

func ptr[T any](v T) *T { return &v }

func TestMatches(t *testing.T) {
	category := int64(3)
	price := 150.0
	sell := model.IntentSell

	listing := model.Listing{
		ID:          uuid.New(),
		Intent:      model.IntentSell,
		Description: "Parker 2-way brass valves, NOS",
		CategoryID:  &category,
		Price:       &price,
	}

	tests := []struct {
		name    string
		rule    model.NotificationRule
		listing model.Listing
		want    bool
	}{
		{
			name:    "empty rule matches everything",
			rule:    model.NotificationRule{},
			listing: listing,
			want:    true,
		},
		{
			name:    "intent match",
			rule:    model.NotificationRule{Intent: &sell},
			listing: listing,
			want:    true,
		},
		{
			name: "intent mismatch",
			rule: model.NotificationRule{Intent: ptr(model.IntentWant)},

			listing: listing,
			want:    false,
		},
		{
			name:    "keyword case-insensitive substring",
			rule:    model.NotificationRule{Keywords: []string{"BRASS"}},
			listing: listing,
			want:    true,
		},
		{
			name:    "any keyword suffices",
			rule:    model.NotificationRule{Keywords: []string{"chronograph", "valve"}},
			listing: listing,
			want:    true,
		},
		{
			name:    "no keyword matches",
			rule:    model.NotificationRule{Keywords: []string{"chronograph", "bezel"}},
			listing: listing,
			want:    false,
		},
		{
			name:    "category membership",
			rule:    model.NotificationRule{CategoryIDs: []int64{1, 3}},
			listing: listing,
			want:    true,
		},
		{
			name:    "category not in set",
			rule:    model.NotificationRule{CategoryIDs: []int64{1, 2}},
			listing: listing,
			want:    false,
		},
		{
			name:    "unresolved category fails category rule",
			rule:    model.NotificationRule{CategoryIDs: []int64{3}},
			listing: model.Listing{Intent: model.IntentSell, Description: "valves"},
			want:    false,
		},
		{
			name:    "price within bounds",
			rule:    model.NotificationRule{MinPrice: ptr(100.0), MaxPrice: ptr(200.0)},
			listing: listing,
			want:    true,
		},
		{
			name:    "price below min",
			rule:    model.NotificationRule{MinPrice: ptr(200.0)},
			listing: listing,
			want:    false,
		},
		{
			name:    "price above max",
			rule:    model.NotificationRule{MaxPrice: ptr(100.0)},
			listing: listing,
			want:    false,
		},
		{
			name:    "null price fails any price bound",
			rule:    model.NotificationRule{MaxPrice: ptr(1000.0)},
			listing: model.Listing{Intent: model.IntentSell, Description: "valves"},
			want:    false,
		},
		{
			name: "all criteria AND together",
			rule: model.NotificationRule{
				Intent:      &sell,
				Keywords:    []string{"valve"},
				CategoryIDs: []int64{3},
				MinPrice:    ptr(100.0),
				MaxPrice:    ptr(200.0),
			},
			listing: listing,
			want:    true,
		},
		{
			name: "one failing criterion fails the rule",
			rule: model.NotificationRule{
				Intent:   &sell,
				Keywords: []string{"valve"},
				MinPrice: ptr(500.0),
			},
			listing: listing,
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.rule, tt.listing))
		})
	}
}

// recordingDispatcher captures dispatched rule/listing pairs.
type recordingDispatcher struct {
	mu       sync.Mutex
	ruleIDs  []uuid.UUID
	err      error
	failures int
}

func (d *recordingDispatcher) Dispatch(_ context.Context, rule model.NotificationRule, _ model.Listing) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		d.failures++
		return d.err
	}
	d.ruleIDs = append(d.ruleIDs, rule.ID)
	return nil
}

func TestNotifyDispatchesMatchesOnly(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	defer store.Close()

	ctx := context.Background()

	owner := &model.User{ID: uuid.New(), Phone: "+15550001111", Name: "Dana", Active: true}
	inactiveOwner := &model.User{ID: uuid.New(), Phone: "+15550002222", Name: "Riley", Active: false}
	require.NoError(t, store.SaveUser(ctx, owner))
	require.NoError(t, store.SaveUser(ctx, inactiveOwner))

	matching := &model.NotificationRule{
		ID:       uuid.New(),
		UserID:   owner.ID,
		Text:     "valves under $200",
		Keywords: []string{"valve"},
		MaxPrice: ptr(200.0),
		Active:   true,
	}
	nonMatching := &model.NotificationRule{
		ID:       uuid.New(),
		UserID:   owner.ID,
		Text:     "dive watches",
		Keywords: []string{"dive watch"},
		Active:   true,
	}
	inactiveOwned := &model.NotificationRule{
		ID:       uuid.New(),
		UserID:   inactiveOwner.ID,
		Text:     "valves",
		Keywords: []string{"valve"},
		Active:   true,
	}
	require.NoError(t, store.SaveRule(ctx, matching))
	require.NoError(t, store.SaveRule(ctx, nonMatching))
	require.NoError(t, store.SaveRule(ctx, inactiveOwned))

	listing := model.Listing{
		ID:          uuid.New(),
		Intent:      model.IntentSell,
		Description: "Parker 2-way brass valves",
		Price:       ptr(150.0),
	}

	dispatcher := &recordingDispatcher{}
	matcher := NewMatcher(dispatcher)
	require.NoError(t, matcher.Notify(ctx, store, listing))

	require.Len(t, dispatcher.ruleIDs, 1)
	assert.Equal(t, matching.ID, dispatcher.ruleIDs[0])
}

func TestNotifyDispatchFailureDoesNotPropagate(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	defer store.Close()

	ctx := context.Background()

	owner := &model.User{ID: uuid.New(), Phone: "+15550001111", Name: "Dana", Active: true}
	require.NoError(t, store.SaveUser(ctx, owner))
	require.NoError(t, store.SaveRule(ctx, &model.NotificationRule{
		ID:       uuid.New(),
		UserID:   owner.ID,
		Text:     "anything",
		Active:   true,
		Keywords: []string{"valve"},
	}))

	dispatcher := &recordingDispatcher{err: errors.New("broker down")}
	matcher := NewMatcher(dispatcher)

	listing := model.Listing{ID: uuid.New(), Description: "brass valves"}
	require.NoError(t, matcher.Notify(ctx, store, listing))
	assert.Equal(t, 1, dispatcher.failures)
}
