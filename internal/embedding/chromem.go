// Package embedding computes and stores semantic vectors for messages and
// listing descriptions using the chromem-go embedded vector database.
// Embedding is always a best-effort side step of the pipeline; callers log
// and continue on failure.
package embedding

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"

	"github.com/Yuanja/watch-tracker-sub000/internal/common"
)

// Config holds configuration for the embedding store.
type Config struct {
	// Path is the directory for persistent storage. Empty means in-memory.
	Path string

	// Collection is the collection name documents are stored under.
	Collection string

	// OpenAIAPIKey authenticates the embedding function.
	OpenAIAPIKey string

	// Compress enables gzip compression for persisted data.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "tracker_documents"
	}
}

// Store wraps a chromem collection and its embedding function.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	embed      chromem.EmbeddingFunc
}

// NewStore creates an embedding store. With an empty path the store is
// in-memory only, which is what the tests use.
func NewStore(cfg Config) (*Store, error) {
	cfg.ApplyDefaults()
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: embedding API key is required", common.ErrMissingConfig)
	}

	var db *chromem.DB
	var err error
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open embedding store: %w", err)
		}
	}

	embed := chromem.NewEmbeddingFuncOpenAI(cfg.OpenAIAPIKey, chromem.EmbeddingModelOpenAI3Small)
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding collection: %w", err)
	}

	return &Store{
		db:         db,
		collection: collection,
		embed:      embed,
	}, nil
}

// NewStoreWithFunc creates an in-memory store around a custom embedding
// function. Used by tests.
func NewStoreWithFunc(collection string, embed chromem.EmbeddingFunc) (*Store, error) {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding collection: %w", err)
	}
	return &Store{db: db, collection: col, embed: embed}, nil
}

// Embed computes the vector for a document, records it for similarity
// search, and returns it.
func (s *Store) Embed(ctx context.Context, id, text string) ([]float32, error) {
	vector, err := s.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to compute embedding: %w", err)
	}

	err = s.collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   text,
		Embedding: vector,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store embedding: %w", err)
	}

	return vector, nil
}

// Search returns the ids of the n documents most similar to the query text.
func (s *Store) Search(ctx context.Context, query string, n int) ([]string, error) {
	if n <= 0 {
		n = 10
	}
	if count := s.collection.Count(); n > count {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := s.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}

	ids := make([]string, len(results))
	for i, result := range results {
		ids[i] = result.ID
	}
	return ids, nil
}
