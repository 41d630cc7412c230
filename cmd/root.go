package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-group/econwatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "econwatch",
	Short: "Economic indicator surveillance pipeline",
	Long:  "Ingests economic indicators from official and independent sources, tracks revisions, scores anomalies against crisis thresholds, and keeps an immutable audit ledger over every change.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
