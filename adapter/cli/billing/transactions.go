package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/felixgeelhaar/carepay/adapter/cli"
	"github.com/felixgeelhaar/carepay/internal/billing/application/queries"
	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	"github.com/spf13/cobra"
)

var (
	listPrincipal string
	listState     string
	listLimit     int
	outputJSON    bool
)

var transactionsCmd = &cobra.Command{
	Use:     "transactions",
	Aliases: []string{"tx"},
	Short:   "Inspect the transaction ledger",
}

var transactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transactions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.ListTransactionsHandler == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Listing transactions requires database connection.")
			return nil
		}

		query := queries.ListTransactionsQuery{
			PrincipalID: listPrincipal,
			Limit:       listLimit,
		}
		if listState != "" {
			state, err := domain.ParseState(listState)
			if err != nil {
				return err
			}
			query.State = &state
		}

		list, err := app.ListTransactionsHandler.Handle(cmd.Context(), query)
		if err != nil {
			return err
		}
		if outputJSON {
			return writeJSON(cmd.OutOrStdout(), list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No transactions found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPRINCIPAL\tPLAN\tAMOUNT\tSTATE\tGRANT\tCREATED")
		for _, t := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				t.ID, t.PrincipalID, t.Plan, t.Amount, t.StateName, t.GrantStatus,
				t.CreatedAt.Local().Format(time.DateTime),
			)
		}
		return w.Flush()
	},
}

var transactionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.GetTransactionHandler == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Showing a transaction requires database connection.")
			return nil
		}

		t, err := app.GetTransactionHandler.Handle(cmd.Context(), queries.CheckTransactionQuery{ID: args[0]})
		if errors.Is(err, domain.ErrTransactionNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "Transaction %s not found.\n", args[0])
			return nil
		}
		if err != nil {
			return err
		}
		if outputJSON {
			return writeJSON(cmd.OutOrStdout(), t)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ID:        %s\n", t.ID)
		fmt.Fprintf(out, "Principal: %s\n", t.PrincipalID)
		fmt.Fprintf(out, "Plan:      %s\n", t.Plan)
		fmt.Fprintf(out, "Amount:    %d\n", t.Amount)
		fmt.Fprintf(out, "State:     %s (%d)\n", t.StateName, t.State)
		fmt.Fprintf(out, "Grant:     %s\n", t.GrantStatus)
		fmt.Fprintf(out, "Created:   %s\n", t.CreatedAt.Local().Format(time.RFC1123))
		if t.PerformedAt != nil {
			fmt.Fprintf(out, "Performed: %s\n", t.PerformedAt.Local().Format(time.RFC1123))
		}
		if t.CancelledAt != nil {
			fmt.Fprintf(out, "Cancelled: %s\n", t.CancelledAt.Local().Format(time.RFC1123))
		}
		if t.CancelReason != nil {
			fmt.Fprintf(out, "Reason:    %d\n", *t.CancelReason)
		}
		return nil
	},
}

var transactionsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Count transactions by state",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.SummaryHandler == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Transaction summary requires database connection.")
			return nil
		}

		summary, err := app.SummaryHandler.Handle(cmd.Context(), queries.SummaryQuery{})
		if err != nil {
			return err
		}
		if outputJSON {
			return writeJSON(cmd.OutOrStdout(), summary)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Total: %d\n", summary.Total)

		states := make([]string, 0, len(summary.ByState))
		for state := range summary.ByState {
			states = append(states, state)
		}
		sort.Strings(states)
		for _, state := range states {
			fmt.Fprintf(out, "  %-26s %d\n", state, summary.ByState[state])
		}

		fmt.Fprintf(out, "Captured: %d\n", summary.CapturedAmount)
		fmt.Fprintf(out, "Pending grants: %d\n", summary.PendingGrants)
		if summary.PendingGrants > 0 {
			fmt.Fprintln(out, "Run 'carepay billing reconcile' to apply them.")
		}
		return nil
	},
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	transactionsCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print JSON")

	transactionsListCmd.Flags().StringVar(&listPrincipal, "principal", "", "only this principal's transactions")
	transactionsListCmd.Flags().StringVar(&listState, "state", "", "state name or code (created, performed, cancelled, cancelled_after_perform)")
	transactionsListCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum rows")

	transactionsCmd.AddCommand(transactionsListCmd)
	transactionsCmd.AddCommand(transactionsShowCmd)
	transactionsCmd.AddCommand(transactionsSummaryCmd)
}
