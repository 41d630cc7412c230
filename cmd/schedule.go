package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meridian-group/econwatch/internal/ingest"
	"github.com/meridian-group/econwatch/internal/schedule"
	"github.com/meridian-group/econwatch/internal/scorer"
	"github.com/meridian-group/econwatch/internal/source"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the periodic ingestion and evaluation loop",
	Long:  "Starts the cron loop defined by schedule.ingest and schedule.evaluate, pulling every configured source and sweeping the scorers. Runs until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		adapters := make([]source.Adapter, 0, len(cfg.Sources))
		for _, srcCfg := range cfg.Sources {
			adapter, err := source.NewFromConfig(srcCfg)
			if err != nil {
				return err
			}
			adapters = append(adapters, adapter)
		}

		coord := ingest.New(st, cfg.Ingest)
		engine := scorer.NewEngine(st, cfg.Scorer)

		sched, err := schedule.New(coord, engine, adapters, cfg.Schedule)
		if err != nil {
			return err
		}

		sched.Run(ctx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
