package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brushhour/fieldclock/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fieldclock",
	Short: "Geofenced clock-in/out with offline-first sync",
	Long:  "Verifies a painter is on site before a clock action, queues the action durably, and syncs it to the clock backend when connectivity allows.",
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
