package main

import (
	"github.com/spf13/cobra"

	"github.com/brushhour/fieldclock/internal/export"
	"github.com/brushhour/fieldclock/internal/model"
)

var auditOut string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and export geofence evaluation trails",
}

var auditShowCmd = &cobra.Command{
	Use:   "show <event-id>",
	Short: "Show every verdict recorded for a clock event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context(), model.LocationReading{})
		if err != nil {
			return err
		}
		defer e.Close()

		verdicts, err := e.Eval.HistoricalEvaluations(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(verdicts) == 0 {
			cmd.Println("no evaluations recorded for this event")
			return nil
		}
		for i, v := range verdicts {
			cmd.Printf("  %d. %s  distance %.1fm  radius %.1fm  at %s\n",
				i+1, v.Kind, v.DistanceMeters, v.RadiusMeters, v.EvaluatedAt.Local().Format("2006-01-02 15:04:05"))
			if v.Override != nil {
				cmd.Printf("     approved by %s: %s\n", v.Override.ApproverID, v.Override.Reason)
			}
		}
		return nil
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export <event-id>...",
	Short: "Export evaluation trails and the sync backlog to XLSX",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context(), model.LocationReading{})
		if err != nil {
			return err
		}
		defer e.Close()

		if err := export.WriteAuditWorkbook(cmd.Context(), e.Store, args, auditOut); err != nil {
			return err
		}
		cmd.Printf("wrote %s\n", auditOut)
		return nil
	},
}

func init() {
	auditExportCmd.Flags().StringVar(&auditOut, "out", "audit.xlsx", "output workbook path")
	auditCmd.AddCommand(auditShowCmd, auditExportCmd)
	rootCmd.AddCommand(auditCmd)
}
