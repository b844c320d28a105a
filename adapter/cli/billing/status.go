package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/carepay/adapter/cli"
	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
	"github.com/spf13/cobra"
)

var statusPrincipal string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a principal's plan and subscription",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Billing status requires database connection.")
			return nil
		}
		if statusPrincipal == "" {
			return fmt.Errorf("--principal is required")
		}

		status, err := app.BillingService.GetStatus(cmd.Context(), statusPrincipal)
		if errors.Is(err, identity.ErrPrincipalNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "Principal %s not found.\n", statusPrincipal)
			return nil
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		p := status.Principal
		fmt.Fprintf(out, "Principal: %s\n", p.ID())
		if !p.Email().IsZero() {
			fmt.Fprintf(out, "Email: %s\n", p.Email())
		}
		fmt.Fprintf(out, "Plan: %s (%s)\n", p.Plan(), p.SubscriptionStatus())

		sub := status.Subscription
		if sub == nil {
			fmt.Fprintln(out, "No subscription found.")
			return nil
		}
		if sub.TransactionID != "" {
			fmt.Fprintf(out, "Funded by: %s transaction %s\n", sub.Provider, sub.TransactionID)
		}
		if sub.CurrentPeriodEnd != nil {
			fmt.Fprintf(out, "Renews: %s\n", sub.CurrentPeriodEnd.Local().Format(time.RFC1123))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusPrincipal, "principal", "", "principal id")
}
