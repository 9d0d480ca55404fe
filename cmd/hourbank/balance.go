package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/multimax/hourbank/ledger"
)

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().String("start", "", "Window start (YYYY-MM-DD)")
	balanceCmd.Flags().String("end", "", "Window end (YYYY-MM-DD)")
}

var balanceCmd = &cobra.Command{
	Use:   "balance COLLABORATOR_ID",
	Short: "Print a collaborator's balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

func runBalance(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid collaborator id %q", args[0])
	}

	var window ledger.Window
	if s, _ := cmd.Flags().GetString("start"); s != "" {
		if window.Start, err = ledger.ParseDate(s); err != nil {
			return err
		}
	}
	if s, _ := cmd.Flags().GetString("end"); s != "" {
		if window.End, err = ledger.ParseDate(s); err != nil {
			return err
		}
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.service.Collaborator(cmd.Context(), ledger.CollaboratorID(id))
	if err != nil {
		return err
	}
	snap, err := a.service.GetBalance(cmd.Context(), c.ID, window)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "collaborator\t%d %s\n", c.ID, c.Name)
	fmt.Fprintf(tw, "total hours\t%s\n", snap.TotalHours.String())
	fmt.Fprintf(tw, "days from hours\t%d (residual %sh)\n", snap.DaysFromHours, snap.ResidualHours.String())
	fmt.Fprintf(tw, "manual credits\t%d\n", snap.ManualCredits)
	fmt.Fprintf(tw, "used days\t%d\n", snap.UsedDays)
	fmt.Fprintf(tw, "conversions\t%d applied of %d\n", snap.AppliedConversions, snap.RawConversions)
	fmt.Fprintf(tw, "amount paid\t%s\n", snap.AmountPaid.StringFixed(2))
	fmt.Fprintf(tw, "balance\t%d days\n", snap.BalanceDays)
	return tw.Flush()
}
