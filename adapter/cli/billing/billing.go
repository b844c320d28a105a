package billing

import "github.com/spf13/cobra"

// Cmd is the billing command group.
var Cmd = &cobra.Command{
	Use:   "billing",
	Short: "Inspect payments and entitlements",
	Long:  `Inspect Payme transactions, principal entitlements and pending grants.`,
}

func init() {
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(transactionsCmd)
	Cmd.AddCommand(reconcileCmd)
	Cmd.AddCommand(checkoutCmd)
	Cmd.AddCommand(webhookCmd)
}
