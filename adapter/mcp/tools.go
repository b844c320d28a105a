// Package mcp exposes the billing ledger to MCP clients: transaction
// inspection, principal status, checkout links and grant reconciliation.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/carepay/adapter/cli"
	"github.com/felixgeelhaar/carepay/internal/billing/application/queries"
	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
	"github.com/felixgeelhaar/mcp-go"
)

// maxListLimit caps billing.transactions.list.
const maxListLimit = 200

// ToolDependencies provides handlers for MCP tools.
type ToolDependencies struct {
	App *cli.App
}

type listTransactionsInput struct {
	PrincipalID string `json:"principal_id,omitempty"`
	State       string `json:"state,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

type transactionInput struct {
	ID string `json:"id" jsonschema:"required"`
}

type principalInput struct {
	PrincipalID string `json:"principal_id" jsonschema:"required"`
}

type checkoutInput struct {
	PrincipalID string `json:"principal_id" jsonschema:"required"`
	Plan        string `json:"plan,omitempty"`
}

type statusOutput struct {
	PrincipalID        string              `json:"principal_id"`
	Email              string              `json:"email,omitempty"`
	Plan               string              `json:"plan"`
	SubscriptionStatus string              `json:"subscription_status"`
	Subscription       *subscriptionOutput `json:"subscription,omitempty"`
}

type subscriptionOutput struct {
	Status           string `json:"status"`
	Provider         string `json:"provider,omitempty"`
	TransactionID    string `json:"transaction_id,omitempty"`
	CurrentPeriodEnd int64  `json:"current_period_end,omitempty"`
}

// tools holds the handlers registered on the server.
type tools struct {
	app *cli.App
}

// RegisterTools registers the billing and health tools.
func RegisterTools(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	if deps.App == nil {
		return errors.New("app is required")
	}
	t := tools{app: deps.App}

	srv.Tool("billing.transactions.list").
		Description("List payment transactions, newest first. Filter by principal_id or state (created, performed, cancelled, cancelled_after_perform).").
		Handler(t.listTransactions)

	srv.Tool("billing.transactions.show").
		Description("Show one payment transaction by gateway id").
		Handler(t.showTransaction)

	srv.Tool("billing.transactions.summary").
		Description("Count transactions per state with captured revenue and pending grants").
		Handler(t.summary)

	srv.Tool("billing.status").
		Description("Get a principal's plan and subscription").
		Handler(t.status)

	srv.Tool("billing.checkout_url").
		Description("Build the Payme checkout link for a principal and plan").
		Handler(t.checkoutURL)

	srv.Tool("billing.reconcile").
		Description("Apply pending entitlement grants of performed transactions").
		Handler(t.reconcile)

	srv.Tool("cli.health").
		Description("Check database and Redis connectivity").
		Handler(t.health)

	return nil
}

func (t tools) listTransactions(ctx context.Context, input listTransactionsInput) ([]queries.TransactionDTO, error) {
	if t.app.ListTransactionsHandler == nil {
		return nil, errors.New("listing transactions requires database connection")
	}

	query := queries.ListTransactionsQuery{
		PrincipalID: strings.TrimSpace(input.PrincipalID),
		Limit:       input.Limit,
	}
	if query.Limit <= 0 || query.Limit > maxListLimit {
		query.Limit = maxListLimit
	}
	if input.State != "" {
		state, err := domain.ParseState(input.State)
		if err != nil {
			return nil, err
		}
		query.State = &state
	}
	return t.app.ListTransactionsHandler.Handle(ctx, query)
}

func (t tools) showTransaction(ctx context.Context, input transactionInput) (*queries.TransactionDTO, error) {
	if t.app.GetTransactionHandler == nil {
		return nil, errors.New("showing a transaction requires database connection")
	}
	if input.ID == "" {
		return nil, errors.New("id is required")
	}
	return t.app.GetTransactionHandler.Handle(ctx, queries.CheckTransactionQuery{ID: input.ID})
}

func (t tools) summary(ctx context.Context, _ struct{}) (queries.SummaryDTO, error) {
	if t.app.SummaryHandler == nil {
		return queries.SummaryDTO{}, errors.New("transaction summary requires database connection")
	}
	return t.app.SummaryHandler.Handle(ctx, queries.SummaryQuery{})
}

func (t tools) status(ctx context.Context, input principalInput) (*statusOutput, error) {
	if t.app.BillingService == nil {
		return nil, errors.New("billing status requires database connection")
	}
	if input.PrincipalID == "" {
		return nil, errors.New("principal_id is required")
	}

	status, err := t.app.BillingService.GetStatus(ctx, input.PrincipalID)
	if err != nil {
		return nil, err
	}

	p := status.Principal
	out := &statusOutput{
		PrincipalID:        p.ID(),
		Plan:               string(p.Plan()),
		SubscriptionStatus: string(p.SubscriptionStatus()),
	}
	if !p.Email().IsZero() {
		out.Email = p.Email().String()
	}
	if sub := status.Subscription; sub != nil {
		out.Subscription = &subscriptionOutput{
			Status:        string(sub.Status),
			Provider:      sub.Provider,
			TransactionID: sub.TransactionID,
		}
		if sub.CurrentPeriodEnd != nil {
			out.Subscription.CurrentPeriodEnd = sub.CurrentPeriodEnd.UnixMilli()
		}
	}
	return out, nil
}

func (t tools) checkoutURL(_ context.Context, input checkoutInput) (map[string]any, error) {
	if t.app.Config == nil {
		return nil, errors.New("checkout link requires configuration")
	}
	if input.Plan == "" {
		input.Plan = string(identity.PlanPro)
	}
	plan, err := identity.ParsePlan(input.Plan)
	if err != nil {
		return nil, err
	}

	link, err := domain.CheckoutLink(
		t.app.Config.PaymeCheckoutURL,
		t.app.Config.PaymeMerchantID,
		input.PrincipalID,
		plan,
		t.app.Prices,
	)
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": link, "plan": string(plan)}, nil
}

func (t tools) reconcile(ctx context.Context, _ struct{}) (map[string]any, error) {
	if t.app.GrantReconciler == nil {
		return nil, errors.New("reconcile requires database connection")
	}

	report, err := t.app.GrantReconciler.RunOnce(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"scanned": report.Scanned,
		"granted": report.Granted,
		"failed":  report.Failed,
	}
	if report.Failed > 0 {
		return out, fmt.Errorf("%d grants failed", report.Failed)
	}
	return out, nil
}

func (t tools) health(ctx context.Context, _ struct{}) (map[string]any, error) {
	if t.app.Health == nil {
		return nil, errors.New("app not initialized")
	}

	health := t.app.Health.GetOverallHealth(ctx)
	checks := make(map[string]string, len(health.Checks))
	for name, result := range health.Checks {
		checks[name] = string(result.Status)
	}
	return map[string]any{"status": string(health.Status), "checks": checks}, nil
}
