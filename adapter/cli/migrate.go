package cli

import (
	"fmt"

	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/migrations"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.Container == nil || app.Container.DBConn == nil {
			return fmt.Errorf("migrate requires database connection")
		}

		if err := migrations.Run(cmd.Context(), app.Container.DBConn, app.Container.Logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s).\n", app.Container.DBDriver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
