package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Yuanja/watch-tracker-sub000/internal/common"
	"github.com/Yuanja/watch-tracker-sub000/internal/metrics"
	"github.com/Yuanja/watch-tracker-sub000/internal/service"
)

// progressInterval is how often catchup logs a progress line.
const progressInterval = 10 * time.Second

// Catchup processes the unprocessed backlog, oldest first, in batches.
// Exactly one catchup runs at a time; a second call returns
// common.ErrCatchupRunning immediately. The unprocessed set is re-queried
// from the start each batch so messages recorded mid-run are picked up.
// Messages that fail within this run are skipped for the rest of it.
func (e *Engine) Catchup(ctx context.Context) (service.CatchupStats, error) {
	var stats service.CatchupStats

	if !e.catchupRunning.CompareAndSwap(false, true) {
		return stats, common.ErrCatchupRunning
	}
	defer e.catchupRunning.Store(false)

	start := time.Now()
	failed := make(map[uuid.UUID]bool)
	lastProgress := start

	slog.Info("Catchup started", "batch_size", e.catchupBatch)

	for {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			metrics.CatchupRuns.WithLabelValues("canceled").Inc()
			return stats, err
		}

		// Request enough extra to make progress past failed messages,
		// which stay unprocessed and reappear at the head of the query.
		batch, err := e.store.GetUnprocessedMessages(ctx, e.catchupBatch+len(failed))
		if err != nil {
			stats.Duration = time.Since(start)
			metrics.CatchupRuns.WithLabelValues("error").Inc()
			return stats, err
		}

		advanced := false
		for _, msg := range batch {
			if failed[msg.ID] {
				continue
			}
			if err := ctx.Err(); err != nil {
				stats.Duration = time.Since(start)
				metrics.CatchupRuns.WithLabelValues("canceled").Inc()
				return stats, err
			}

			if _, err := e.ProcessMessage(ctx, msg.ID); err != nil {
				slog.Warn("Catchup message failed",
					"message_id", msg.ID,
					"external_id", msg.ExternalID,
					"error", err,
				)
				failed[msg.ID] = true
				stats.Failed++
			} else {
				stats.Processed++
			}
			advanced = true

			if time.Since(lastProgress) >= progressInterval {
				slog.Info("Catchup progress",
					"processed", stats.Processed,
					"failed", stats.Failed,
				)
				lastProgress = time.Now()
			}
		}

		if !advanced {
			break
		}
	}

	stats.Duration = time.Since(start)
	metrics.CatchupRuns.WithLabelValues("completed").Inc()
	slog.Info("Catchup complete",
		"processed", stats.Processed,
		"failed", stats.Failed,
		"duration", stats.Duration,
	)
	return stats, nil
}

// CatchupRunning reports whether a catchup pass is currently in flight.
func (e *Engine) CatchupRunning() bool {
	return e.catchupRunning.Load()
}

// RunPeriodicCatchup triggers a catchup through the worker pool whenever
// unprocessed messages exist, until the context is canceled. The catchup's
// own single-flight guard makes overlapping triggers harmless.
func (e *Engine) RunPeriodicCatchup(ctx context.Context, pool *Pool, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := e.store.CountUnprocessedMessages(ctx)
			if err != nil {
				slog.Warn("Failed to count unprocessed messages", "error", err)
				continue
			}
			if count == 0 {
				continue
			}

			slog.Info("Scheduling catchup", "unprocessed", count)
			pool.Submit(func() {
				if _, err := e.Catchup(ctx); err != nil {
					if errors.Is(err, common.ErrCatchupRunning) {
						slog.Warn("Catchup already running, skipping trigger")
						return
					}
					slog.Error("Scheduled catchup failed", "error", err)
				}
			})
		}
	}
}
