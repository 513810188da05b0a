package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Yuanja/watch-tracker-sub000/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline service",
		Long: `Start the admin HTTP server, the worker pool, and the periodic
catchup scheduler. The service processes messages as they are triggered and
sweeps the unprocessed backlog on an interval.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", ":8080", "HTTP listen address")
	cmd.Flags().Duration("catchup-interval", 5*time.Minute, "periodic catchup interval")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("catchup.interval", cmd.Flags().Lookup("catchup-interval"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	p, err := initPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	go p.engine.RunPeriodicCatchup(ctx, p.pool, viper.GetDuration("catchup.interval"))

	srv := server.New(server.Config{
		Addr: viper.GetString("server.addr"),
	}, p.engine, p.pool)

	return srv.Run(ctx)
}
