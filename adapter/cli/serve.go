package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/felixgeelhaar/carepay/adapter/api"
	"github.com/spf13/cobra"
)

var (
	serveAddr            string
	serveShutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Payme callback API",
	Long: `Serve the merchant callback endpoint at /api/payment/payme together
with /health, /readyz and /metrics. Stops gracefully on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.Container == nil {
			return fmt.Errorf("serve requires database connection")
		}

		cfg := api.DefaultServerConfig()
		if app.Config != nil && app.Config.HTTPAddr != "" {
			cfg.Addr = app.Config.HTTPAddr
		}
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}

		server := api.NewServerFromContainer(cfg, app.Container)

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-cmd.Context().Done():
		case err := <-errCh:
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()
		return server.Shutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to HTTP_ADDR)")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")
	rootCmd.AddCommand(serveCmd)
}
