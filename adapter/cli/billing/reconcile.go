package billing

import (
	"fmt"

	"github.com/felixgeelhaar/carepay/adapter/cli"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Apply pending entitlement grants",
	Long: `Grant the purchased plan for every performed transaction whose grant
is still pending. Safe to repeat; the worker runs the same pass on a timer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.GrantReconciler == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Reconcile requires database connection.")
			return nil
		}

		report, err := app.GrantReconciler.RunOnce(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d, granted %d, failed %d.\n",
			report.Scanned, report.Granted, report.Failed)
		if report.Failed > 0 {
			return fmt.Errorf("%d grants failed", report.Failed)
		}
		return nil
	},
}
