package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Yuanja/watch-tracker-sub000/internal/broadcast"
	"github.com/Yuanja/watch-tracker-sub000/internal/currency"
	"github.com/Yuanja/watch-tracker-sub000/internal/embedding"
	"github.com/Yuanja/watch-tracker-sub000/internal/engine"
	"github.com/Yuanja/watch-tracker-sub000/internal/extract"
	"github.com/Yuanja/watch-tracker-sub000/internal/notify"
	"github.com/Yuanja/watch-tracker-sub000/internal/router"
	"github.com/Yuanja/watch-tracker-sub000/internal/service"
	"github.com/Yuanja/watch-tracker-sub000/internal/storage"
)

// expandPath expands a leading tilde and environment variables.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// initStorage opens the database and runs migrations.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".local", "share", "tracker", "tracker.db")
	}
	dbPath = expandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// initExtractor builds the LLM extraction client from config.
func initExtractor() (*extract.Extractor, error) {
	return extract.NewExtractor(extract.Config{
		Provider:    viper.GetString("llm.provider"),
		APIKey:      viper.GetString("llm.api_key"),
		Model:       viper.GetString("llm.model"),
		BaseURL:     viper.GetString("llm.base_url"),
		MaxRetries:  viper.GetInt("llm.max_retries"),
		RateLimit:   viper.GetInt("llm.rate_limit"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
	})
}

// pipeline bundles everything a running command needs, with a Close that
// releases the pieces in order.
type pipeline struct {
	store     service.Storage
	extractor *extract.Extractor
	publisher *broadcast.Publisher
	engine    *engine.Engine
	pool      *engine.Pool
}

// initPipeline assembles the full engine: storage, extractor, currency,
// optional NATS and embedding, router, matcher, and the worker pool.
func initPipeline(ctx context.Context) (*pipeline, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, err
	}

	extractor, err := initExtractor()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var broadcaster service.Broadcaster
	var dispatcher service.Dispatcher
	var publisher *broadcast.Publisher
	if viper.GetBool("nats.enabled") {
		publisher, err = broadcast.NewPublisher(broadcast.Config{
			URL: viper.GetString("nats.url"),
		})
		if err != nil {
			// Broadcast is a side channel; run without it rather than fail.
			slog.Warn("NATS unavailable, falling back to log publisher", "error", err)
			broadcaster = broadcast.LogPublisher{}
			dispatcher = broadcast.LogPublisher{}
		} else {
			broadcaster = publisher
			dispatcher = publisher
		}
	} else {
		broadcaster = broadcast.LogPublisher{}
		dispatcher = broadcast.LogPublisher{}
	}

	var embedder service.Embedder
	if key := viper.GetString("embedding.api_key"); key != "" {
		embStore, err := embedding.NewStore(embedding.Config{
			Path:         expandPath(viper.GetString("embedding.path")),
			OpenAIAPIKey: key,
		})
		if err != nil {
			slog.Warn("Embedding store unavailable, continuing without embeddings", "error", err)
		} else {
			embedder = embStore
		}
	}

	routerCfg := router.Config{
		ReviewThreshold: viper.GetFloat64("router.review_threshold"),
		AutoThreshold:   viper.GetFloat64("router.auto_threshold"),
		ExpiryWindow:    viper.GetDuration("router.expiry_window"),
	}

	eng, err := engine.New(engine.Options{
		Store:        store,
		Extractor:    extractor,
		Embedder:     embedder,
		Broadcaster:  broadcaster,
		Router:       router.New(routerCfg, currency.NewConverter(), embedder),
		Matcher:      notify.NewMatcher(dispatcher),
		CatchupBatch: viper.GetInt("catchup.batch"),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	pool := engine.NewPool(eng,
		viper.GetInt("workers.count"),
		viper.GetInt("workers.queue"),
	)

	return &pipeline{
		store:     store,
		extractor: extractor,
		publisher: publisher,
		engine:    eng,
		pool:      pool,
	}, nil
}

// close shuts the pipeline down: stop accepting work, flush, release.
func (p *pipeline) close() {
	p.pool.Close()
	if p.publisher != nil {
		p.publisher.Close()
	}
	p.extractor.Close()
	if err := p.store.Close(); err != nil {
		slog.Warn("Failed to close storage", "error", err)
	}
}
