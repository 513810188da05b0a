package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete extracted listings and reprocess everything",
		Long: `Delete every listing in a re-extractable status (active,
pending_review, expired) together with its review items, then clear the
processed flag on all messages. Sold and deleted listings are kept. The next
catchup regenerates the rest from scratch.`,
		RunE: runReset,
	}

	cmd.Flags().Bool("yes", false, "skip the confirmation prompt")
	return cmd
}

func runReset(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		fmt.Print("This deletes all re-extractable listings and reprocesses every message. Continue? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	p, err := initPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	stats, err := p.engine.ResetExtractions(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d listings and %d review items; %d messages queued for reprocessing.\n",
		stats.ListingsDeleted, stats.ReviewItemsDeleted, stats.MessagesReset)
	fmt.Println("Run 'tracker catchup' to regenerate listings.")
	return nil
}
