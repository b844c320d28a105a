package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/felixgeelhaar/carepay/pkg/observability"
	"github.com/spf13/cobra"
)

var healthTimeout time.Duration

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database and Redis connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.Health == nil {
			return fmt.Errorf("app not initialized")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
		defer cancel()

		health := app.Health.GetOverallHealth(ctx)
		out := cmd.OutOrStdout()

		names := make([]string, 0, len(health.Checks))
		for name := range health.Checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			result := health.Checks[name]
			fmt.Fprintf(out, "%-10s %s", name, result.Status)
			if result.Message != "" {
				fmt.Fprintf(out, " (%s)", result.Message)
			}
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "overall    %s\n", health.Status)

		if health.Status == observability.HealthStatusUnhealthy {
			return fmt.Errorf("unhealthy")
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 5*time.Second, "time allowed for all checks")
	rootCmd.AddCommand(healthCmd)
}
