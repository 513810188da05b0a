package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
	"github.com/Yuanja/watch-tracker-sub000/internal/service"
)

// mockExtractor records the text it receives and returns a canned result.
type mockExtractor struct {
	mu     sync.Mutex
	calls  []string
	result *model.ExtractionResult
	err    error
	fn     func(text string) (*model.ExtractionResult, error)
}

func (m *mockExtractor) Extract(_ context.Context, text string) (*model.ExtractionResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	m.mu.Unlock()

	if m.fn != nil {
		return m.fn(text)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return model.FallbackExtraction(), nil
}

func (m *mockExtractor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockExtractor) lastCall() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	return m.calls[len(m.calls)-1]
}

// mockEmbedder returns a fixed vector, or an error when set.
type mockEmbedder struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls int
}

func (m *mockEmbedder) Embed(_ context.Context, id, _ string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.ids = append(m.ids, id)
	if m.err != nil {
		return nil, m.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// recordingBroadcaster captures emitted signals.
type recordingBroadcaster struct {
	mu       sync.Mutex
	listings []uuid.UUID
	reviews  []uuid.UUID
	err      error
}

func (b *recordingBroadcaster) ListingCreated(_ context.Context, listing model.Listing) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.listings = append(b.listings, listing.ID)
	return nil
}

func (b *recordingBroadcaster) ReviewItemCreated(_ context.Context, item model.ReviewQueueItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.reviews = append(b.reviews, item.ID)
	return nil
}

// rendezvousStorage holds every GetMessageByID call at a barrier so that
// concurrent workers all observe the message in the same pre-transaction
// state before any of them proceeds.
type rendezvousStorage struct {
	service.Storage
	arrived chan struct{}
	release chan struct{}
}

func (s *rendezvousStorage) GetMessageByID(ctx context.Context, id uuid.UUID) (*model.RawMessage, error) {
	msg, err := s.Storage.GetMessageByID(ctx, id)
	s.arrived <- struct{}{}
	<-s.release
	return msg, err
}

// recordingDispatcher captures notification dispatches.
type recordingDispatcher struct {
	mu      sync.Mutex
	ruleIDs []uuid.UUID
}

func (d *recordingDispatcher) Dispatch(_ context.Context, rule model.NotificationRule, _ model.Listing) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ruleIDs = append(d.ruleIDs, rule.ID)
	return nil
}
