package mcp

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/carepay/adapter/cli"
	"github.com/felixgeelhaar/carepay/internal/app"
	"github.com/felixgeelhaar/carepay/internal/billing/application/commands"
	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	"github.com/felixgeelhaar/carepay/pkg/config"
	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTools wires a SQLite container with principal u1 on pro through tx-1.
func newTestTools(t *testing.T) tools {
	t.Helper()

	cfg := &config.Config{
		AppEnv:               "test",
		DatabaseDriver:       "sqlite",
		SQLitePath:           filepath.Join(t.TempDir(), "mcp.db"),
		RateLimitBackend:     "memory",
		RateLimitWindow:      time.Hour,
		RateLimitMax:         10,
		PaymeMerchantID:      "merchant-1",
		PaymeCheckoutURL:     "https://checkout.paycom.uz",
		PaymeCancelPerformed: "refund",
		PlanPrices:           "free:0,pro:999",
		SubscriptionPeriod:   720 * time.Hour,
		ReconcileInterval:    time.Minute,
		ReconcileBatchSize:   10,
	}

	ctx := context.Background()
	c, err := app.NewContainer(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	_, err = c.BillingService.UpsertPrincipal(ctx, "u1", "u1@example.com")
	require.NoError(t, err)
	_, err = c.CreateTransactionHandler.Handle(ctx, commands.CreateTransactionCommand{
		ID:          "tx-1",
		PrincipalID: "u1",
		Plan:        "pro",
		Amount:      999,
		Time:        time.Now().UnixMilli(),
		Provider:    domain.ProviderPayme,
	})
	require.NoError(t, err)
	_, err = c.PerformTransactionHandler.Handle(ctx, commands.PerformTransactionCommand{ID: "tx-1"})
	require.NoError(t, err)

	return tools{app: cli.NewApp(c)}
}

func TestRegisterTools_ListTools(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{
		Name:    "test",
		Version: "1.0.0",
		Capabilities: mcp.Capabilities{
			Tools: true,
		},
	})
	require.NoError(t, RegisterTools(srv, ToolDependencies{App: &cli.App{}}))

	tc := testutil.NewTestClient(t, srv)
	defer tc.Close()

	listed, err := tc.ListTools()
	require.NoError(t, err)

	names := make(map[any]bool, len(listed))
	for _, tool := range listed {
		names[tool["name"]] = true
	}
	for _, name := range []string{
		"billing.transactions.list",
		"billing.transactions.show",
		"billing.transactions.summary",
		"billing.status",
		"billing.checkout_url",
		"billing.reconcile",
		"cli.health",
	} {
		assert.True(t, names[name], "%s should be registered", name)
	}
}

func TestRegisterTools_RequiresApp(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{Name: "test", Version: "1.0.0"})
	assert.Error(t, RegisterTools(srv, ToolDependencies{}))
	assert.Error(t, RegisterTools(nil, ToolDependencies{App: &cli.App{}}))
}

func TestTools_WithoutDatabase(t *testing.T) {
	tl := tools{app: &cli.App{}}
	ctx := context.Background()

	_, err := tl.listTransactions(ctx, listTransactionsInput{})
	assert.ErrorContains(t, err, "requires database connection")
	_, err = tl.showTransaction(ctx, transactionInput{ID: "tx-1"})
	assert.ErrorContains(t, err, "requires database connection")
	_, err = tl.summary(ctx, struct{}{})
	assert.ErrorContains(t, err, "requires database connection")
	_, err = tl.status(ctx, principalInput{PrincipalID: "u1"})
	assert.ErrorContains(t, err, "requires database connection")
	_, err = tl.reconcile(ctx, struct{}{})
	assert.ErrorContains(t, err, "requires database connection")
	_, err = tl.checkoutURL(ctx, checkoutInput{PrincipalID: "u1"})
	assert.ErrorContains(t, err, "requires configuration")
}

func TestTools_Transactions(t *testing.T) {
	tl := newTestTools(t)
	ctx := context.Background()

	list, err := tl.listTransactions(ctx, listTransactionsInput{PrincipalID: "u1", State: "performed"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tx-1", list[0].ID)

	list, err = tl.listTransactions(ctx, listTransactionsInput{State: "created"})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = tl.listTransactions(ctx, listTransactionsInput{State: "settled"})
	assert.Error(t, err)

	tx, err := tl.showTransaction(ctx, transactionInput{ID: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(999), tx.Amount)

	_, err = tl.showTransaction(ctx, transactionInput{ID: "missing"})
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	_, err = tl.showTransaction(ctx, transactionInput{})
	assert.Error(t, err)

	summary, err := tl.summary(ctx, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, int64(999), summary.CapturedAmount)
	assert.Zero(t, summary.PendingGrants)
}

func TestTools_Status(t *testing.T) {
	tl := newTestTools(t)
	ctx := context.Background()

	status, err := tl.status(ctx, principalInput{PrincipalID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", status.PrincipalID)
	assert.Equal(t, "u1@example.com", status.Email)
	assert.Equal(t, "pro", status.Plan)
	assert.Equal(t, "active", status.SubscriptionStatus)
	require.NotNil(t, status.Subscription)
	assert.Equal(t, "tx-1", status.Subscription.TransactionID)
	assert.Positive(t, status.Subscription.CurrentPeriodEnd)

	_, err = tl.status(ctx, principalInput{})
	assert.Error(t, err)
}

func TestTools_CheckoutReconcileHealth(t *testing.T) {
	tl := newTestTools(t)
	ctx := context.Background()

	link, err := tl.checkoutURL(ctx, checkoutInput{PrincipalID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "pro", link["plan"])
	assert.Contains(t, link["url"], "https://checkout.paycom.uz/merchant-1?")

	_, err = tl.checkoutURL(ctx, checkoutInput{PrincipalID: "u1", Plan: "gold"})
	assert.Error(t, err)

	report, err := tl.reconcile(ctx, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, 0, report["scanned"])

	health, err := tl.health(ctx, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "healthy", health["status"])
	assert.Contains(t, health["checks"], "database")
}
