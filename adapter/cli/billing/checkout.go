package billing

import (
	"fmt"

	"github.com/felixgeelhaar/carepay/adapter/cli"
	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
	"github.com/spf13/cobra"
)

var (
	checkoutPrincipal string
	checkoutPlan      string
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout-url",
	Short: "Print the Payme checkout link for a plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Config == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Checkout link requires configuration.")
			return nil
		}

		plan, err := identity.ParsePlan(checkoutPlan)
		if err != nil {
			return err
		}

		link, err := domain.CheckoutLink(
			app.Config.PaymeCheckoutURL,
			app.Config.PaymeMerchantID,
			checkoutPrincipal,
			plan,
			app.Prices,
		)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), link)
		return nil
	},
}

func init() {
	checkoutCmd.Flags().StringVar(&checkoutPrincipal, "principal", "", "principal id placed in the account payload")
	checkoutCmd.Flags().StringVar(&checkoutPlan, "plan", string(identity.PlanPro), "plan to purchase")
}
