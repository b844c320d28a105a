// Command carepay serves the Payme merchant callback and the operator CLI.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/carepay/adapter/cli"
	cliBilling "github.com/felixgeelhaar/carepay/adapter/cli/billing"
	cliPrincipal "github.com/felixgeelhaar/carepay/adapter/cli/principal"
	"github.com/felixgeelhaar/carepay/internal/app"
	billingDomain "github.com/felixgeelhaar/carepay/internal/billing/domain"
	"github.com/felixgeelhaar/carepay/pkg/config"
	"github.com/felixgeelhaar/carepay/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx)
	stop()
	os.Exit(code)
}

func run(ctx context.Context) int {
	logger := observability.LoggerFromEnv()

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("failed to load config, using development mode", "error", err)
		cfg = &config.Config{AppEnv: "development", PlanPrices: "free:0,pro:999"}
	}
	logger = observability.NewLogger(observability.LogConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat, cli.Version))
	cli.SetLogger(logger)

	cliApp, closeFn, err := newCLIApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		return 1
	}
	defer closeFn()

	cli.SetApp(cliApp)
	cli.AddCommand(cliBilling.Cmd)
	cli.AddCommand(cliPrincipal.Cmd)

	if err := cli.Execute(ctx); err != nil {
		return 1
	}
	return 0
}

// newCLIApp wires the full container. In development a missing database
// degrades to a config-only app so checkout and version still work.
func newCLIApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cli.App, func(), error) {
	container, err := app.NewContainer(ctx, cfg, logger)
	if err == nil {
		return cli.NewApp(container), container.Close, nil
	}
	if !cfg.IsDevelopment() {
		return nil, nil, err
	}

	logger.Warn("database unavailable, running in limited mode", "error", err)
	limited := &cli.App{Config: cfg}
	if prices, perr := billingDomain.NewPriceTable(cfg.PriceTable()); perr == nil {
		limited.Prices = prices
	}
	return limited, func() {}, nil
}
