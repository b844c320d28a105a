package cli

import (
	container "github.com/felixgeelhaar/carepay/internal/app"
	billingApp "github.com/felixgeelhaar/carepay/internal/billing/application"
	billingCommands "github.com/felixgeelhaar/carepay/internal/billing/application/commands"
	billingQueries "github.com/felixgeelhaar/carepay/internal/billing/application/queries"
	billingDomain "github.com/felixgeelhaar/carepay/internal/billing/domain"
	"github.com/felixgeelhaar/carepay/pkg/config"
	"github.com/felixgeelhaar/carepay/pkg/observability"
)

// App holds the CLI application dependencies.
type App struct {
	Config *config.Config

	// Container owns the connections. serve and migrate need it; the
	// remaining commands only use the handlers below.
	Container *container.Container

	// Billing Query Handlers
	ListTransactionsHandler *billingQueries.ListTransactionsHandler
	GetTransactionHandler   *billingQueries.GetTransactionHandler
	SummaryHandler          *billingQueries.SummaryHandler

	// Billing Command Handlers
	GrantReconciler *billingCommands.GrantReconciler

	BillingService *billingApp.Service
	Prices         billingDomain.PriceTable
	Health         *observability.HealthRegistry
}

// NewApp creates a new CLI application from a wired container.
func NewApp(c *container.Container) *App {
	return &App{
		Config:                  c.Config,
		Container:               c,
		ListTransactionsHandler: c.ListTransactionsHandler,
		GetTransactionHandler:   c.GetTransactionHandler,
		SummaryHandler:          c.SummaryHandler,
		GrantReconciler:         c.GrantReconciler,
		BillingService:          c.BillingService,
		Prices:                  c.Prices,
		Health:                  c.Health,
	}
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
