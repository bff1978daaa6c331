package main

import (
	"github.com/spf13/cobra"

	"github.com/brushhour/fieldclock/internal/model"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the offline sync queue",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context(), model.LocationReading{})
		if err != nil {
			return err
		}
		defer e.Close()

		ops, err := e.Store.ListOperations(cmd.Context())
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			cmd.Println("queue is empty")
			return nil
		}
		cmd.Printf("%d pending operation(s):\n", len(ops))
		for _, op := range ops {
			last := "never"
			if op.LastAttemptAt != nil {
				last = op.LastAttemptAt.Local().Format("2006-01-02 15:04:05")
			}
			cmd.Printf("  %s  %-9s  enqueued %s  retries %d  last attempt %s\n",
				op.EventID, op.Type, op.EnqueuedAt.Local().Format("2006-01-02 15:04:05"), op.RetryCount, last)
		}
		return nil
	},
}

var queueReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Force a drain pass, ignoring backoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context(), model.LocationReading{})
		if err != nil {
			return err
		}
		defer e.Close()

		stats := e.Queue.Replay(cmd.Context())
		cmd.Printf("attempted %d, sent %d, failed %d\n", stats.Attempted, stats.Sent, stats.Failed)
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every pending operation (destructive)",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context(), model.LocationReading{})
		if err != nil {
			return err
		}
		defer e.Close()

		n, err := e.Queue.Clear(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("dropped %d operation(s)\n", n)
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueStatusCmd, queueReplayCmd, queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}
