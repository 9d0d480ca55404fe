package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/multimax/hourbank/api"
	"github.com/multimax/hourbank/ledger"
)

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().Int64("collaborator", 0, "Reconcile only this collaborator")
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation sweep and exit",
	Long: `Recomputes the automatic credits of every active collaborator (or one,
with --collaborator) and repairs any drift. Safe to run repeatedly.`,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if id, _ := cmd.Flags().GetInt64("collaborator"); id > 0 {
		res, err := a.service.Reconcile(cmd.Context(), ledger.CollaboratorID(id))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "collaborator %d: desired=%d actual=%d granted=%d removed=%d compensations=%d\n",
			id, res.Desired, res.Actual, res.Granted, res.CreditsRemoved, res.Compensations)
		return nil
	}

	res := api.NewSweepScheduler(a.service, 0, a.logger).RunNow(cmd.Context())
	fmt.Fprintf(out, "swept %d collaborators: %d changed, %d failed\n", res.Collaborators, res.Changed, res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d reconciliations failed", res.Failed)
	}
	return nil
}
