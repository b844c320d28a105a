// Package principal holds the commands that manage billing principals.
package principal

import (
	"fmt"

	"github.com/felixgeelhaar/carepay/adapter/cli"
	"github.com/spf13/cobra"
)

// Cmd is the principal command group.
var Cmd = &cobra.Command{
	Use:   "principal",
	Short: "Manage principals known to billing",
}

var upsertEmail string

var upsertCmd = &cobra.Command{
	Use:   "upsert <id>",
	Short: "Register a principal or update its email",
	Long: `Register a principal on the free plan, or update the email of an
existing one. The plan and subscription status are never changed here.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Principal upsert requires database connection.")
			return nil
		}

		p, err := app.BillingService.UpsertPrincipal(cmd.Context(), args[0], upsertEmail)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Principal %s: %s (%s)\n", p.ID(), p.Plan(), p.SubscriptionStatus())
		return nil
	},
}

func init() {
	upsertCmd.Flags().StringVar(&upsertEmail, "email", "", "contact email")
	Cmd.AddCommand(upsertCmd)
}
