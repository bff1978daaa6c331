package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brushhour/fieldclock/internal/model"
)

var (
	overrideEventID    string
	overrideJobID      string
	overrideReason     string
	overrideSupervisor string
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Request and resolve supervisor overrides",
}

var overrideRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Escalate a rejected clock attempt to your supervisor",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("clock"); err != nil {
			return err
		}
		if overrideEventID == "" || overrideJobID == "" || overrideReason == "" {
			return fmt.Errorf("--event, --job and --reason are required")
		}
		supervisor := overrideSupervisor
		if supervisor == "" {
			supervisor = cfg.Worker.SupervisorID
		}
		if supervisor == "" {
			return fmt.Errorf("no supervisor configured; set worker.supervisor_id or pass --supervisor")
		}

		e, err := initEnv(cmd.Context(), deviceFix())
		if err != nil {
			return err
		}
		defer e.Close()

		req, err := e.Orch.RequestOverride(cmd.Context(), overrideEventID, cfg.Worker.ID, overrideJobID, supervisor, overrideReason)
		if err != nil {
			return err
		}
		cmd.Printf("override %s requested, waiting on %s\n", req.ID, req.SupervisorID)
		return nil
	},
}

var overrideListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending overrides for a supervisor",
	RunE: func(cmd *cobra.Command, args []string) error {
		supervisor := overrideSupervisor
		if supervisor == "" {
			supervisor = cfg.Worker.SupervisorID
		}
		if supervisor == "" {
			return fmt.Errorf("--supervisor is required")
		}

		e, err := initEnv(cmd.Context(), model.LocationReading{})
		if err != nil {
			return err
		}
		defer e.Close()

		reqs, err := e.Eval.PendingOverrides(cmd.Context(), supervisor)
		if err != nil {
			return err
		}
		if len(reqs) == 0 {
			cmd.Println("no pending overrides")
			return nil
		}
		for _, r := range reqs {
			cmd.Printf("  %s  worker %s  job %s  %q  requested %s\n",
				r.ID, r.WorkerID, r.JobID, r.Reason, r.RequestedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var overrideApproveCmd = &cobra.Command{
	Use:   "approve <override-id>",
	Short: "Approve a pending override and sync the unblocked clock-in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		supervisor := overrideSupervisor
		if supervisor == "" {
			return fmt.Errorf("--supervisor is required")
		}

		e, err := initEnv(cmd.Context(), model.LocationReading{})
		if err != nil {
			return err
		}
		defer e.Close()

		if _, err := e.Eval.ApproveOverride(cmd.Context(), args[0], supervisor); err != nil {
			return err
		}
		res, err := e.Orch.ResumeApproved(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printResult(cmd, res)
		return nil
	},
}

var overrideDenyCmd = &cobra.Command{
	Use:   "deny <override-id>",
	Short: "Deny a pending override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		supervisor := overrideSupervisor
		if supervisor == "" {
			return fmt.Errorf("--supervisor is required")
		}
		if overrideReason == "" {
			return fmt.Errorf("--reason is required")
		}

		e, err := initEnv(cmd.Context(), model.LocationReading{})
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Eval.DenyOverride(cmd.Context(), args[0], supervisor, overrideReason); err != nil {
			return err
		}
		cmd.Println("override denied")
		return nil
	},
}

func init() {
	overrideRequestCmd.Flags().StringVar(&overrideEventID, "event", "", "event id of the rejected clock attempt")
	overrideRequestCmd.Flags().StringVar(&overrideJobID, "job", "", "job site id")
	overrideRequestCmd.Flags().Float64Var(&clockLat, "lat", 0, "device latitude")
	overrideRequestCmd.Flags().Float64Var(&clockLng, "lng", 0, "device longitude")
	overrideRequestCmd.Flags().Float64Var(&clockAccuracy, "accuracy", 15, "fix accuracy in meters")

	for _, c := range []*cobra.Command{overrideRequestCmd, overrideListCmd, overrideApproveCmd, overrideDenyCmd} {
		c.Flags().StringVar(&overrideSupervisor, "supervisor", "", "supervisor id")
		c.Flags().StringVar(&overrideReason, "reason", "", "reason text")
	}

	overrideCmd.AddCommand(overrideRequestCmd, overrideListCmd, overrideApproveCmd, overrideDenyCmd)
	rootCmd.AddCommand(overrideCmd)
}
