package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/carepay/internal/app"
	"github.com/felixgeelhaar/carepay/internal/billing/application/queries"
	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
	"github.com/felixgeelhaar/carepay/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type rpcResponse struct {
	Result map[string]any `json:"result"`
	Error  *RPCError      `json:"error"`
	ID     json.Number    `json:"id"`
}

type testEnv struct {
	container *app.Container
	handler   http.Handler
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{
		AppEnv:               "test",
		DatabaseDriver:       "sqlite",
		SQLitePath:           filepath.Join(t.TempDir(), "api.db"),
		RateLimitBackend:     "memory",
		RateLimitWindow:      time.Hour,
		RateLimitMax:         1000,
		PaymeSecretKey:       testSecret,
		PaymeCancelPerformed: "refund",
		PlanPrices:           "free:0,pro:999",
		SubscriptionPeriod:   720 * time.Hour,
		ReconcileInterval:    time.Minute,
		ReconcileBatchSize:   10,
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := app.NewContainer(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	_, err = c.BillingService.UpsertPrincipal(context.Background(), "u1", "u1@example.com")
	require.NoError(t, err)

	server := NewServerFromContainer(DefaultServerConfig(), c)
	return &testEnv{container: c, handler: server.Handler()}
}

func authHeader(secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(PaymeLogin+":"+secret))
}

func (e *testEnv) call(t *testing.T, body string, header http.Header) (int, rpcResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, PaymePath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader(testSecret))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var resp rpcResponse
	dec := json.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&resp), rec.Body.String())
	return rec.Code, resp
}

func (e *testEnv) rpc(t *testing.T, id int, method string, params any) rpcResponse {
	t.Helper()
	body, err := json.Marshal(map[string]any{"method": method, "params": params, "id": id})
	require.NoError(t, err)
	status, resp := e.call(t, string(body), nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, json.Number(jsonInt(id)), resp.ID)
	return resp
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func num(t *testing.T, v any) int64 {
	t.Helper()
	n, ok := v.(json.Number)
	require.True(t, ok, "expected number, got %T", v)
	i, err := n.Int64()
	require.NoError(t, err)
	return i
}

func listAll() queries.ListTransactionsQuery {
	return queries.ListTransactionsQuery{Limit: 100}
}

func account(userID, plan string) map[string]any {
	return map[string]any{"user_id": userID, "plan": plan}
}

func TestPayme_PurchaseLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	create := map[string]any{"id": "tx1", "account": account("u1", "pro"), "amount": 999, "time": 1700000000000}

	resp := env.rpc(t, 1, MethodCreateTransaction, create)
	require.Nil(t, resp.Error)
	assert.Equal(t, int64(1700000000000), num(t, resp.Result["create_time"]))
	assert.Equal(t, "tx1", resp.Result["transaction"])
	assert.Equal(t, int64(1), num(t, resp.Result["state"]))

	t.Run("create replay is idempotent", func(t *testing.T) {
		replay := env.rpc(t, 2, MethodCreateTransaction, create)
		require.Nil(t, replay.Error)
		assert.Equal(t, resp.Result, replay.Result)

		list, err := env.container.ListTransactionsHandler.Handle(ctx, listAll())
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	perform := env.rpc(t, 3, MethodPerformTransaction, map[string]any{"id": "tx1"})
	require.Nil(t, perform.Error)
	assert.Equal(t, int64(2), num(t, perform.Result["state"]))
	performTime := num(t, perform.Result["perform_time"])
	assert.Positive(t, performTime)

	p, err := env.container.BillingService.GetPrincipal(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, identity.PlanPro, p.Plan())
	assert.Equal(t, identity.SubscriptionActive, p.SubscriptionStatus())

	t.Run("perform replay returns original time", func(t *testing.T) {
		replay := env.rpc(t, 4, MethodPerformTransaction, map[string]any{"id": "tx1"})
		require.Nil(t, replay.Error)
		assert.Equal(t, performTime, num(t, replay.Result["perform_time"]))
		assert.Equal(t, int64(2), num(t, replay.Result["state"]))
	})

	cancel := env.rpc(t, 5, MethodCancelTransaction, map[string]any{"id": "tx1", "reason": 1})
	require.Nil(t, cancel.Error)
	assert.Equal(t, int64(-2), num(t, cancel.Result["state"]))
	cancelTime := num(t, cancel.Result["cancel_time"])

	p, err = env.container.BillingService.GetPrincipal(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, identity.PlanFree, p.Plan())
	assert.Equal(t, identity.SubscriptionCanceled, p.SubscriptionStatus())

	t.Run("cancel replay keeps first cancellation", func(t *testing.T) {
		replay := env.rpc(t, 6, MethodCancelTransaction, map[string]any{"id": "tx1", "reason": 3})
		require.Nil(t, replay.Error)
		assert.Equal(t, cancelTime, num(t, replay.Result["cancel_time"]))
		assert.Equal(t, int64(-2), num(t, replay.Result["state"]))
	})

	t.Run("check transaction reports every timestamp", func(t *testing.T) {
		check := env.rpc(t, 7, MethodCheckTransaction, map[string]any{"id": "tx1"})
		require.Nil(t, check.Error)
		assert.Equal(t, int64(1700000000000), num(t, check.Result["create_time"]))
		assert.Equal(t, performTime, num(t, check.Result["perform_time"]))
		assert.Equal(t, cancelTime, num(t, check.Result["cancel_time"]))
		assert.Equal(t, int64(-2), num(t, check.Result["state"]))
		assert.Equal(t, int64(1), num(t, check.Result["reason"]))
	})

	t.Run("perform after cancel is refused", func(t *testing.T) {
		again := env.rpc(t, 8, MethodPerformTransaction, map[string]any{"id": "tx1"})
		require.NotNil(t, again.Error)
		assert.Equal(t, CodeCannotPerform, again.Error.Code)
	})
}

func TestPayme_CancelBeforePerform(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.rpc(t, 1, MethodCreateTransaction, map[string]any{
		"id": "tx2", "account": account("u1", "pro"), "amount": 999, "time": 1700000000000,
	})
	require.Nil(t, resp.Error)

	cancel := env.rpc(t, 2, MethodCancelTransaction, map[string]any{"id": "tx2", "reason": 4})
	require.Nil(t, cancel.Error)
	assert.Equal(t, int64(-1), num(t, cancel.Result["state"]))

	check := env.rpc(t, 3, MethodCheckTransaction, map[string]any{"id": "tx2"})
	require.Nil(t, check.Error)
	assert.Equal(t, int64(0), num(t, check.Result["perform_time"]))
	assert.Equal(t, int64(-1), num(t, check.Result["state"]))

	p, err := env.container.BillingService.GetPrincipal(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, identity.PlanFree, p.Plan())
}

func TestPayme_PerformWithMissingPrincipal(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	created := env.rpc(t, 1, MethodCreateTransaction, map[string]any{
		"id": "tx5", "account": account("u1", "pro"), "amount": 999, "time": 1700000000000,
	})
	require.Nil(t, created.Error)

	_, err := env.container.DBConn.Exec(ctx, "DELETE FROM principals WHERE id = ?", "u1")
	require.NoError(t, err)

	perform := env.rpc(t, 2, MethodPerformTransaction, map[string]any{"id": "tx5"})
	require.NotNil(t, perform.Error)
	assert.Equal(t, CodeCannotPerform, perform.Error.Code)
	assert.Equal(t, "Unable to perform transaction", perform.Error.Message)

	// The gateway retry completes the grant once the principal is back.
	_, err = env.container.BillingService.UpsertPrincipal(ctx, "u1", "u1@example.com")
	require.NoError(t, err)

	retry := env.rpc(t, 3, MethodPerformTransaction, map[string]any{"id": "tx5"})
	require.Nil(t, retry.Error)
	assert.Equal(t, int64(2), num(t, retry.Result["state"]))

	p, err := env.container.BillingService.GetPrincipal(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, identity.PlanPro, p.Plan())
	assert.Equal(t, identity.SubscriptionActive, p.SubscriptionStatus())
}

func TestPayme_CheckTransactionCreatedHasNullReason(t *testing.T) {
	env := newTestEnv(t, nil)

	env.rpc(t, 1, MethodCreateTransaction, map[string]any{
		"id": "tx3", "account": account("u1", "pro"), "amount": 999, "time": 1700000000000,
	})
	check := env.rpc(t, 2, MethodCheckTransaction, map[string]any{"id": "tx3"})
	require.Nil(t, check.Error)
	reason, present := check.Result["reason"]
	assert.True(t, present)
	assert.Nil(t, reason)
	assert.Equal(t, int64(0), num(t, check.Result["cancel_time"]))
}

func TestPayme_ProtocolErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	before, err := env.container.BillingService.GetPrincipal(ctx, "u1")
	require.NoError(t, err)
	pendingBefore, err := env.container.OutboxRepo.GetUnpublished(ctx, 100)
	require.NoError(t, err)

	tests := []struct {
		name    string
		method  string
		params  any
		code    int
		message string
	}{
		{"check perform valid", MethodCheckPerformTransaction, map[string]any{"account": account("u1", "pro"), "amount": 999}, 0, ""},
		{"check perform amount mismatch", MethodCheckPerformTransaction, map[string]any{"account": account("u1", "pro"), "amount": 1000}, CodeInvalidParams, "Invalid amount"},
		{"check perform fractional amount", MethodCheckPerformTransaction, map[string]any{"account": account("u1", "pro"), "amount": 999.5}, CodeInvalidParams, "Invalid amount"},
		{"check perform unknown user", MethodCheckPerformTransaction, map[string]any{"account": account("u9", "pro"), "amount": 999}, CodePrincipalNotFound, "User not found"},
		{"check perform missing plan", MethodCheckPerformTransaction, map[string]any{"account": map[string]any{"user_id": "u1"}, "amount": 999}, CodeInvalidParams, "Invalid account"},
		{"check perform unknown plan", MethodCheckPerformTransaction, map[string]any{"account": account("u1", "gold"), "amount": 999}, CodeInvalidParams, "Invalid account"},
		{"check perform missing account", MethodCheckPerformTransaction, map[string]any{"amount": 999}, CodeInvalidParams, "Invalid parameters"},
		{"create missing time", MethodCreateTransaction, map[string]any{"id": "tx9", "account": account("u1", "pro"), "amount": 999}, CodeInvalidParams, "Invalid parameters"},
		{"create missing id", MethodCreateTransaction, map[string]any{"account": account("u1", "pro"), "amount": 999, "time": 1}, CodeInvalidParams, "Invalid parameters"},
		{"create wrong amount", MethodCreateTransaction, map[string]any{"id": "tx9", "account": account("u1", "pro"), "amount": 5, "time": 1}, CodeInvalidParams, "Invalid amount"},
		{"perform missing id", MethodPerformTransaction, map[string]any{}, CodeInvalidParams, "Invalid transaction ID"},
		{"perform unknown", MethodPerformTransaction, map[string]any{"id": "nope"}, CodeTransactionNotFound, "Transaction not found"},
		{"cancel unknown", MethodCancelTransaction, map[string]any{"id": "nope", "reason": 1}, CodeTransactionNotFound, "Transaction not found"},
		{"cancel missing reason", MethodCancelTransaction, map[string]any{"id": "nope"}, CodeInvalidParams, "Invalid parameters"},
		{"check unknown", MethodCheckTransaction, map[string]any{"id": "does-not-exist"}, CodeTransactionNotFound, "Transaction not found"},
		{"check null params", MethodCheckTransaction, nil, CodeInvalidParams, "Invalid transaction ID"},
		{"unknown method", "GetStatement", map[string]any{}, CodeMethodNotFound, "Method not found"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.rpc(t, 100+i, tt.method, tt.params)
			if tt.code == 0 {
				require.Nil(t, resp.Error)
				assert.Equal(t, true, resp.Result["allow"])
				return
			}
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)
			assert.Nil(t, resp.Result)
		})
	}

	list, err := env.container.ListTransactionsHandler.Handle(ctx, listAll())
	require.NoError(t, err)
	assert.Empty(t, list)

	// Pre-flight checks leave the principal, its subscription and the outbox untouched.
	after, err := env.container.BillingService.GetPrincipal(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before.Plan(), after.Plan())
	assert.Equal(t, before.SubscriptionStatus(), after.SubscriptionStatus())
	assert.True(t, before.UpdatedAt().Equal(after.UpdatedAt()))

	sub, err := env.container.SubscriptionRepo.FindByPrincipalID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, sub)

	pendingAfter, err := env.container.OutboxRepo.GetUnpublished(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, pendingAfter, len(pendingBefore))
}

func TestPayme_MalformedEnvelope(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		body   string
		wantID json.Number
	}{
		{"invalid json", `{"method":`, "0"},
		{"missing id", `{"method":"CheckTransaction","params":{"id":"x"}}`, "0"},
		{"string id", `{"method":"CheckTransaction","params":{"id":"x"},"id":"7"}`, "0"},
		{"missing method", `{"params":{},"id":12}`, "12"},
		{"numeric method", `{"method":5,"id":3}`, "3"},
		{"object method", `{"method":{"name":"CheckTransaction"},"params":{},"id":4}`, "4"},
		{"null body", `null`, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := env.call(t, tt.body, nil)
			assert.Equal(t, http.StatusOK, status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
			assert.Equal(t, tt.wantID, resp.ID)
		})
	}
}

func TestPayme_Authorization(t *testing.T) {
	env := newTestEnv(t, nil)
	body := `{"method":"CheckTransaction","params":{"id":"x"},"id":5}`

	for name, header := range map[string]string{
		"missing":      "",
		"wrong secret": authHeader("nope"),
		"wrong login":  "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:"+testSecret)),
	} {
		t.Run(name, func(t *testing.T) {
			status, resp := env.call(t, body, http.Header{"Authorization": {header}})
			assert.Equal(t, http.StatusOK, status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, CodeInsufficientPrivs, resp.Error.Code)
			assert.Equal(t, json.Number("5"), resp.ID)
		})
	}
}

func TestPayme_AuthorizationDisabledWithoutSecret(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.PaymeSecretKey = "" })

	status, resp := env.call(t, `{"method":"CheckTransaction","params":{"id":"x"},"id":5}`,
		http.Header{"Authorization": {""}})
	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTransactionNotFound, resp.Error.Code)
}

func TestPayme_RateLimit(t *testing.T) {
	// httptest requests arrive from 192.0.2.1.
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RateLimitMax = 10
		cfg.TrustedProxies = []netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")}
	})
	body := `{"method":"CheckTransaction","params":{"id":"x"},"id":1}`
	from := http.Header{"X-Forwarded-For": {"203.0.113.7"}}

	for i := 0; i < 10; i++ {
		status, resp := env.call(t, body, from)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, CodeTransactionNotFound, resp.Error.Code)
	}

	status, resp := env.call(t, body, from)
	assert.Equal(t, http.StatusTooManyRequests, status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
	assert.Equal(t, "Too many requests", resp.Error.Message)

	// Another source keeps its own budget.
	status, _ = env.call(t, body, http.Header{"X-Forwarded-For": {"198.51.100.2"}})
	assert.Equal(t, http.StatusOK, status)

	// A spoofed left-most hop does not open a new budget.
	status, _ = env.call(t, body, http.Header{"X-Forwarded-For": {"10.9.9.9, 203.0.113.7"}})
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestPayme_RateLimitIgnoresForwardingFromUntrustedPeer(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.RateLimitMax = 2 })
	body := `{"method":"CheckTransaction","params":{"id":"x"},"id":1}`

	for i := 0; i < 2; i++ {
		status, _ := env.call(t, body, http.Header{"X-Forwarded-For": {"203.0.113." + jsonInt(i)}})
		require.Equal(t, http.StatusOK, status)
	}

	status, _ := env.call(t, body, http.Header{"X-Forwarded-For": {"203.0.113.99"}})
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestPayme_CancelPerformedRejected(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.PaymeCancelPerformed = "reject" })

	env.rpc(t, 1, MethodCreateTransaction, map[string]any{
		"id": "tx4", "account": account("u1", "pro"), "amount": 999, "time": 1700000000000,
	})
	perform := env.rpc(t, 2, MethodPerformTransaction, map[string]any{"id": "tx4"})
	require.Nil(t, perform.Error)

	cancel := env.rpc(t, 3, MethodCancelTransaction, map[string]any{"id": "tx4", "reason": 5})
	require.NotNil(t, cancel.Error)
	assert.Equal(t, CodeCannotCancel, cancel.Error.Code)

	p, err := env.container.BillingService.GetPrincipal(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, identity.PlanPro, p.Plan())
}

func TestServer_AuxiliaryRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/health", "/readyz", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, PaymePath, nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_RequestIDEchoed(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestRecover(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, PaymePath, nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternalError, resp.Error.Code)
}

func TestClientIP(t *testing.T) {
	trusted := []netip.Prefix{
		netip.MustParsePrefix("192.0.2.0/24"),
		netip.MustParsePrefix("10.0.0.0/8"),
	}

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		trusted []netip.Prefix
		want    string
	}{
		{"peer only", "192.0.2.9:5555", nil, nil, "192.0.2.9"},
		{"untrusted peer ignores headers", "198.51.100.4:80", map[string]string{"X-Forwarded-For": "203.0.113.5", "X-Real-IP": "203.0.113.6"}, trusted, "198.51.100.4"},
		{"no trusted ranges ignores headers", "192.0.2.9:5555", map[string]string{"X-Forwarded-For": "203.0.113.5"}, nil, "192.0.2.9"},
		{"trusted peer uses forwarded hop", "192.0.2.9:5555", map[string]string{"X-Forwarded-For": "203.0.113.5"}, trusted, "203.0.113.5"},
		{"skips trusted hops from the right", "192.0.2.9:5555", map[string]string{"X-Forwarded-For": "198.51.100.1, 203.0.113.5, 10.0.0.2"}, trusted, "203.0.113.5"},
		{"real ip when no forwarded hop", "192.0.2.9:5555", map[string]string{"X-Real-IP": "198.51.100.1"}, trusted, "198.51.100.1"},
		{"all hops trusted falls back to peer", "192.0.2.9:5555", map[string]string{"X-Forwarded-For": "10.0.0.3"}, trusted, "192.0.2.9"},
		{"empty peer", "", nil, trusted, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, PaymePath, nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req, tt.trusted))
		})
	}
}
