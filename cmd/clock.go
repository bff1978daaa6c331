package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brushhour/fieldclock/internal/model"
	"github.com/brushhour/fieldclock/internal/orchestrator"
)

var (
	clockJobID    string
	clockEntryID  string
	clockNotes    string
	clockLat      float64
	clockLng      float64
	clockAccuracy float64
	clockWiFi     bool
	clockNetwork  bool
)

var clockCmd = &cobra.Command{
	Use:   "clock",
	Short: "Clock in or out of a job site",
}

var clockInCmd = &cobra.Command{
	Use:   "in",
	Short: "Clock in to a job site",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("clock"); err != nil {
			return err
		}
		if clockJobID == "" {
			return fmt.Errorf("--job is required")
		}

		e, err := initEnv(cmd.Context(), deviceFix())
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.Orch.ClockIn(cmd.Context(), orchestrator.ClockInInput{
			WorkerID: cfg.Worker.ID,
			JobID:    clockJobID,
			Notes:    clockNotes,
		})
		if err != nil {
			return err
		}
		printResult(cmd, res)
		return nil
	},
}

var clockOutCmd = &cobra.Command{
	Use:   "out",
	Short: "Clock out of the current shift",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("clock"); err != nil {
			return err
		}
		if clockJobID == "" || clockEntryID == "" {
			return fmt.Errorf("--job and --entry are required")
		}

		e, err := initEnv(cmd.Context(), deviceFix())
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.Orch.ClockOut(cmd.Context(), orchestrator.ClockOutInput{
			WorkerID:    cfg.Worker.ID,
			JobID:       clockJobID,
			TimeEntryID: clockEntryID,
		})
		if err != nil {
			return err
		}
		printResult(cmd, res)
		return nil
	},
}

// deviceFix builds the location reading the host integration hands us. On a
// phone this comes from the OS location service; the CLI takes it as flags.
func deviceFix() model.LocationReading {
	return model.LocationReading{
		Latitude:       clockLat,
		Longitude:      clockLng,
		AccuracyMeters: clockAccuracy,
		CapturedAt:     time.Now(),
		Satellite:      true,
		WiFi:           clockWiFi,
		Network:        clockNetwork,
	}
}

func printResult(cmd *cobra.Command, res model.ClockResult) {
	switch res.Status {
	case model.ClockConfirmed:
		if res.TimeEntryID != "" {
			cmd.Printf("confirmed: time entry %s\n", res.TimeEntryID)
		} else {
			cmd.Println("confirmed")
		}
		if res.Warning != "" {
			cmd.Printf("warning: %s\n", res.Warning)
		}
	case model.ClockPendingSync:
		cmd.Printf("accepted, pending sync (event %s)\n", res.EventID)
	case model.ClockRejected:
		if res.Message != "" {
			cmd.Println(res.Message)
		}
		if res.Verdict != nil && res.Verdict.Actionable() {
			cmd.Printf("to escalate: fieldclock override request --event %s --job %s --reason \"...\"\n",
				res.EventID, clockJobID)
		}
	}
	zap.L().Info("clock action finished",
		zap.String("status", string(res.Status)),
		zap.String("event_id", res.EventID),
	)
}

func init() {
	for _, c := range []*cobra.Command{clockInCmd, clockOutCmd} {
		c.Flags().StringVar(&clockJobID, "job", "", "job site id")
		c.Flags().Float64Var(&clockLat, "lat", 0, "device latitude")
		c.Flags().Float64Var(&clockLng, "lng", 0, "device longitude")
		c.Flags().Float64Var(&clockAccuracy, "accuracy", 15, "fix accuracy in meters")
		c.Flags().BoolVar(&clockWiFi, "wifi", true, "WiFi contributed to the fix")
		c.Flags().BoolVar(&clockNetwork, "network", false, "cell network contributed to the fix")
	}
	clockInCmd.Flags().StringVar(&clockNotes, "notes", "", "notes for the time entry")
	clockOutCmd.Flags().StringVar(&clockEntryID, "entry", "", "time entry id to close")

	clockCmd.AddCommand(clockInCmd, clockOutCmd)
	rootCmd.AddCommand(clockCmd)
}
