package main

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <message-id>",
		Short: "Process a single message synchronously",
		Long: `Run the full pipeline for one recorded message and print the
listings it produced. Already-processed messages are a no-op.`,
		Args: cobra.ExactArgs(1),
		RunE: runProcess,
	}
}

func runProcess(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", args[0], err)
	}

	ctx := cmd.Context()
	p, err := initPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	listings, err := p.engine.ProcessMessage(ctx, id)
	if err != nil {
		return err
	}

	if len(listings) == 0 {
		fmt.Println("No listings created.")
		return nil
	}

	for _, listing := range listings {
		slog.Info("Listing",
			"id", listing.ID,
			"intent", listing.Intent,
			"status", listing.Status,
			"confidence", listing.Confidence,
			"description", listing.Description,
		)
	}
	fmt.Printf("Created %d listing(s).\n", len(listings))
	return nil
}
