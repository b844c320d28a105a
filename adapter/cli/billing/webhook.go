package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/carepay/adapter/api"
	"github.com/felixgeelhaar/carepay/adapter/cli"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/security"
	"github.com/spf13/cobra"
)

var (
	webhookEventPath string
	webhookURL       string
)

var webhookClient = &http.Client{Timeout: 10 * time.Second}

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Send a saved Payme callback to a running server",
	Long: `Post a JSON-RPC callback body to the merchant endpoint with the
configured Payme credentials and print the response.

Examples:
  carepay billing webhook --event ./check_transaction.json
  carepay billing webhook --event ./create.json --url http://localhost:8080/api/payment/payme`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if webhookEventPath == "" {
			return errors.New("event path is required")
		}

		payload, err := security.SafeReadFile(webhookEventPath)
		if err != nil {
			return err
		}

		var envelope api.Request
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return fmt.Errorf("invalid callback payload: %w", err)
		}
		if envelope.Method == "" {
			return errors.New("callback payload has no method")
		}

		target := webhookURL
		var secret string
		if app := cli.GetApp(); app != nil && app.Config != nil {
			secret = app.Config.PaymeSecretKey
			if target == "" {
				target = "http://" + strings.Replace(app.Config.HTTPAddr, "0.0.0.0", "localhost", 1) + api.PaymePath
			}
		}
		if target == "" {
			return errors.New("--url is required without configuration")
		}

		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, target, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if secret != "" {
			req.Header.Set("Authorization", security.NewBasicCredentials(api.PaymeLogin, secret).Header())
		}

		resp, err := webhookClient.Do(req)
		if err != nil {
			return fmt.Errorf("send %s: %w", envelope.Method, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s -> HTTP %d\n", envelope.Method, resp.StatusCode)
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(body)))
		return nil
	},
}

func init() {
	webhookCmd.Flags().StringVar(&webhookEventPath, "event", "", "path to callback JSON")
	webhookCmd.Flags().StringVar(&webhookURL, "url", "", "callback endpoint (defaults to HTTP_ADDR)")
}
