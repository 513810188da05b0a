package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Yuanja/watch-tracker-sub000/internal/service"
)

func catchupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catchup",
		Short: "Process the unprocessed message backlog",
		Long: `Sweep every unprocessed message through the pipeline, oldest
first. Messages that fail are skipped for this run and retried next time.`,
		RunE: runCatchup,
	}
}

func runCatchup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	p, err := initPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	total, err := p.store.CountUnprocessedMessages(ctx)
	if err != nil {
		return fmt.Errorf("failed to count backlog: %w", err)
	}
	if total == 0 {
		fmt.Println("Backlog is empty, nothing to do.")
		return nil
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Processing backlog..."),
	)

	done := make(chan struct{})
	var stats service.CatchupStats
	var runErr error
	go func() {
		defer close(done)
		stats, runErr = p.engine.Catchup(ctx)
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			_ = bar.Finish()
			fmt.Println()
			if runErr != nil {
				return runErr
			}
			slog.Info("Catchup finished",
				"processed", stats.Processed,
				"failed", stats.Failed,
				"duration", stats.Duration,
			)
			return nil
		case <-ticker.C:
			remaining, err := p.store.CountUnprocessedMessages(ctx)
			if err != nil {
				continue
			}
			if completed := total - remaining; completed > 0 {
				_ = bar.Set(completed)
			}
		}
	}
}
