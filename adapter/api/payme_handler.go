package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/carepay/internal/billing/application/commands"
	"github.com/felixgeelhaar/carepay/internal/billing/application/queries"
	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/carepay/internal/shared/application"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/security"
	"github.com/felixgeelhaar/carepay/pkg/observability"
	"github.com/go-playground/validator/v10"
)

// maxBodyBytes caps callback request bodies.
const maxBodyBytes = 64 << 10

// PaymeLogin is the username the gateway sends in its Basic credentials.
const PaymeLogin = "Paycom"

type (
	createHandler       = sharedApplication.CommandHandler[commands.CreateTransactionCommand, commands.CreateTransactionResult]
	performHandler      = sharedApplication.CommandHandler[commands.PerformTransactionCommand, commands.PerformTransactionResult]
	cancelHandler       = sharedApplication.CommandHandler[commands.CancelTransactionCommand, commands.CancelTransactionResult]
	checkPerformHandler = sharedApplication.QueryHandler[queries.CheckPerformTransactionQuery, queries.CheckPerformResult]
	checkHandler        = sharedApplication.QueryHandler[queries.CheckTransactionQuery, queries.CheckTransactionResult]
)

// PaymeHandler serves the merchant callback endpoint.
type PaymeHandler struct {
	create       createHandler
	perform      performHandler
	cancel       cancelHandler
	checkPerform checkPerformHandler
	check        checkHandler
	credentials  security.BasicCredentials
	validate     *validator.Validate
	metrics      observability.Metrics
	logger       *slog.Logger
}

// PaymeHandlerConfig holds dependencies for the callback handler.
type PaymeHandlerConfig struct {
	Create       createHandler
	Perform      performHandler
	Cancel       cancelHandler
	CheckPerform checkPerformHandler
	Check        checkHandler
	// SecretKey authenticates the gateway. Empty disables the check.
	SecretKey string
	Metrics   observability.Metrics
	Logger    *slog.Logger
}

// NewPaymeHandler creates a new callback handler.
func NewPaymeHandler(cfg PaymeHandlerConfig) *PaymeHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	h := &PaymeHandler{
		create:       cfg.Create,
		perform:      cfg.Perform,
		cancel:       cfg.Cancel,
		checkPerform: cfg.CheckPerform,
		check:        cfg.Check,
		credentials:  security.NewBasicCredentials(PaymeLogin, cfg.SecretKey),
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
	if !h.credentials.Enabled() {
		h.logger.Warn("payme callback authorization disabled: no secret key configured")
	}
	return h
}

type accountParams struct {
	UserID string `json:"user_id"`
	Plan   string `json:"plan"`
}

type checkPerformParams struct {
	Amount  json.Number    `json:"amount" validate:"required"`
	Account *accountParams `json:"account" validate:"required"`
}

type createParams struct {
	ID      string         `json:"id" validate:"required"`
	Time    json.Number    `json:"time" validate:"required"`
	Amount  json.Number    `json:"amount" validate:"required"`
	Account *accountParams `json:"account" validate:"required"`
}

type transactionParams struct {
	ID string `json:"id"`
}

type cancelParams struct {
	ID     string `json:"id"`
	Reason *int   `json:"reason" validate:"required"`
}

type checkPerformResult struct {
	Allow bool `json:"allow"`
}

type createResult struct {
	CreateTime  int64  `json:"create_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type performResult struct {
	PerformTime int64  `json:"perform_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type cancelResult struct {
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type checkResult struct {
	CreateTime  int64  `json:"create_time"`
	PerformTime int64  `json:"perform_time"`
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
	Reason      *int   `json:"reason"`
}

// ServeHTTP handles POST /api/payment/payme.
func (h *PaymeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeRPC(w, http.StatusOK, Response{Error: errInvalidRequest, ID: zeroID})
		return
	}

	// Fields are decoded one by one: a malformed method must still echo the id.
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeRPC(w, http.StatusOK, Response{Error: errInvalidRequest, ID: zeroID})
		return
	}
	req := Request{Params: envelope["params"], ID: envelope["id"]}
	if raw := envelope["method"]; raw != nil && json.Unmarshal(raw, &req.Method) != nil {
		req.Method = ""
	}

	id, ok := req.requestID()
	if !ok {
		writeRPC(w, http.StatusOK, Response{Error: errInvalidRequest, ID: zeroID})
		return
	}

	if h.credentials.Enabled() && !h.credentials.Verify(r.Header.Get("Authorization")) {
		h.logger.WarnContext(r.Context(), "payme callback rejected: bad credentials", "method", req.Method)
		writeRPC(w, http.StatusOK, Response{Error: errUnauthorized, ID: id})
		return
	}

	if req.Method == "" {
		writeRPC(w, http.StatusOK, Response{Error: errInvalidRequest, ID: id})
		return
	}

	r = r.WithContext(observability.WithRPCMethod(r.Context(), req.Method))
	start := time.Now()
	result, rpcErr := h.dispatch(r, req)
	h.observe(r, req, id, rpcErr, time.Since(start))

	if rpcErr != nil {
		writeRPC(w, http.StatusOK, Response{Error: rpcErr, ID: id})
		return
	}
	writeRPC(w, http.StatusOK, Response{Result: result, ID: id})
}

func (h *PaymeHandler) dispatch(r *http.Request, req Request) (any, *RPCError) {
	switch req.Method {
	case MethodCheckPerformTransaction:
		return h.handleCheckPerform(r, req.Params)
	case MethodCreateTransaction:
		return h.handleCreate(r, req.Params)
	case MethodPerformTransaction:
		return h.handlePerform(r, req.Params)
	case MethodCancelTransaction:
		return h.handleCancel(r, req.Params)
	case MethodCheckTransaction:
		return h.handleCheck(r, req.Params)
	default:
		return nil, errMethodNotFound
	}
}

func (h *PaymeHandler) handleCheckPerform(r *http.Request, raw json.RawMessage) (any, *RPCError) {
	var p checkPerformParams
	if err := h.bind(raw, &p); err != nil {
		return nil, errInvalidParams
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, errInvalidAmount
	}

	res, err := h.checkPerform.Handle(r.Context(), queries.CheckPerformTransactionQuery{
		PrincipalID: p.Account.UserID,
		Plan:        p.Account.Plan,
		Amount:      amount,
	})
	if err != nil {
		return nil, h.fail(r, MethodCheckPerformTransaction, "", err)
	}
	return checkPerformResult{Allow: res.Allow}, nil
}

func (h *PaymeHandler) handleCreate(r *http.Request, raw json.RawMessage) (any, *RPCError) {
	var p createParams
	if err := h.bind(raw, &p); err != nil {
		return nil, errInvalidParams
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, errInvalidAmount
	}
	createTime, err := p.Time.Int64()
	if err != nil || createTime <= 0 {
		return nil, errInvalidParams
	}

	res, err := h.create.Handle(r.Context(), commands.CreateTransactionCommand{
		ID:          p.ID,
		PrincipalID: p.Account.UserID,
		Plan:        p.Account.Plan,
		Amount:      amount,
		Time:        createTime,
		Provider:    domain.ProviderPayme,
	})
	if err != nil {
		return nil, h.fail(r, MethodCreateTransaction, p.ID, err)
	}
	return createResult{
		CreateTime:  res.CreateTime,
		Transaction: res.TransactionID,
		State:       int(res.State),
	}, nil
}

func (h *PaymeHandler) handlePerform(r *http.Request, raw json.RawMessage) (any, *RPCError) {
	var p transactionParams
	if err := h.bind(raw, &p); err != nil || p.ID == "" {
		return nil, errInvalidTxID
	}

	res, err := h.perform.Handle(r.Context(), commands.PerformTransactionCommand{ID: p.ID})
	if err != nil {
		return nil, h.fail(r, MethodPerformTransaction, p.ID, err)
	}
	return performResult{
		PerformTime: res.PerformTime,
		Transaction: res.TransactionID,
		State:       int(res.State),
	}, nil
}

func (h *PaymeHandler) handleCancel(r *http.Request, raw json.RawMessage) (any, *RPCError) {
	var p cancelParams
	if err := json.Unmarshal(nullToEmpty(raw), &p); err != nil || p.ID == "" {
		return nil, errInvalidTxID
	}
	if err := h.validate.Struct(p); err != nil {
		return nil, errInvalidParams
	}

	res, err := h.cancel.Handle(r.Context(), commands.CancelTransactionCommand{ID: p.ID, Reason: *p.Reason})
	if err != nil {
		return nil, h.fail(r, MethodCancelTransaction, p.ID, err)
	}
	return cancelResult{
		CancelTime:  res.CancelTime,
		Transaction: res.TransactionID,
		State:       int(res.State),
	}, nil
}

func (h *PaymeHandler) handleCheck(r *http.Request, raw json.RawMessage) (any, *RPCError) {
	var p transactionParams
	if err := h.bind(raw, &p); err != nil || p.ID == "" {
		return nil, errInvalidTxID
	}

	res, err := h.check.Handle(r.Context(), queries.CheckTransactionQuery{ID: p.ID})
	if err != nil {
		return nil, h.fail(r, MethodCheckTransaction, p.ID, err)
	}
	return checkResult{
		CreateTime:  res.CreateTime,
		PerformTime: res.PerformTime,
		CancelTime:  res.CancelTime,
		Transaction: res.TransactionID,
		State:       int(res.State),
		Reason:      res.Reason,
	}, nil
}

// bind decodes params into dst and validates its struct tags.
func (h *PaymeHandler) bind(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(nullToEmpty(raw)))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

// fail maps err and logs failures that are not plain protocol outcomes.
func (h *PaymeHandler) fail(r *http.Request, method, txID string, err error) *RPCError {
	rpcErr := mapError(method, err)
	if rpcErr.Code == CodeCannotPerform || rpcErr.Code == CodeInternalError {
		h.logger.ErrorContext(r.Context(), "payme method failed",
			"method", method,
			"transaction", txID,
			"error", err,
		)
	}
	return rpcErr
}

func (h *PaymeHandler) observe(r *http.Request, req Request, id json.Number, rpcErr *RPCError, elapsed time.Duration) {
	tags := []observability.Tag{observability.T("method", req.Method)}
	h.metrics.Counter(observability.MetricPaymeRequests, 1, tags...)
	h.metrics.Timing(observability.MetricPaymeDuration, elapsed, tags...)

	outcome := "ok"
	if rpcErr != nil {
		outcome = strconv.Itoa(rpcErr.Code)
		h.metrics.Counter(observability.MetricPaymeErrors, 1,
			observability.T("method", req.Method),
			observability.T("code", outcome),
		)
	}
	h.logger.InfoContext(r.Context(), "payme callback",
		"rpc_id", id.String(),
		"outcome", outcome,
		observability.DurationKey, elapsed.Milliseconds(),
	)
}

// parseAmount accepts integral JSON numbers only.
func parseAmount(n json.Number) (int64, error) {
	amount, err := n.Int64()
	if err != nil {
		return 0, err
	}
	if amount < 0 {
		return 0, errors.New("negative amount")
	}
	return amount, nil
}

func nullToEmpty(raw json.RawMessage) []byte {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return []byte("{}")
	}
	return raw
}

func writeRPC(w http.ResponseWriter, status int, resp Response) {
	if resp.ID == "" {
		resp.ID = zeroID
	}
	writeJSON(w, status, resp)
}
