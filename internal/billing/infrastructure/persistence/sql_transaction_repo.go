package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/database"
)

const defaultListLimit = 50

// SQLTransactionRepository implements domain.TransactionRepository for
// PostgreSQL and SQLite. Every write goes through the executor in context so
// that it joins the caller's unit of work.
type SQLTransactionRepository struct {
	conn database.Connection
}

// NewSQLTransactionRepository creates a transaction repository.
func NewSQLTransactionRepository(conn database.Connection) *SQLTransactionRepository {
	return &SQLTransactionRepository{conn: conn}
}

const transactionColumns = `id, principal_id, plan, amount, state, provider, grant_status,
	cancel_reason, created_at, performed_at, cancelled_at, updated_at, version`

func (r *SQLTransactionRepository) q(query string) string {
	return database.Rebind(r.conn.Driver(), query)
}

// FindByID finds a transaction by gateway id.
func (r *SQLTransactionRepository) FindByID(ctx context.Context, id string) (*domain.Transaction, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	row := exec.QueryRow(ctx, r.q(`SELECT `+transactionColumns+` FROM payment_transactions WHERE id = ?`), id)

	t, err := scanTransaction(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("find transaction %s: %w", id, err)
	}
	return t, nil
}

// Create inserts a new transaction at version 1.
func (r *SQLTransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	s := t.Snapshot()

	_, err := exec.Exec(ctx, r.q(`
		INSERT INTO payment_transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`),
		s.ID,
		s.PrincipalID,
		s.Plan.String(),
		s.Amount,
		int64(s.State),
		s.Provider,
		string(s.GrantStatus),
		nullInt(s.CancelReason),
		s.CreatedAt.UnixMilli(),
		nullTime(s.PerformedAt),
		nullTime(s.CancelledAt),
		s.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrTransactionExists
		}
		return fmt.Errorf("create transaction %s: %w", s.ID, err)
	}
	t.SetVersion(1)
	return nil
}

// Update performs a compare-and-swap on the version column.
func (r *SQLTransactionRepository) Update(ctx context.Context, t *domain.Transaction) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	s := t.Snapshot()

	res, err := exec.Exec(ctx, r.q(`
		UPDATE payment_transactions
		SET state = ?,
			grant_status = ?,
			cancel_reason = ?,
			performed_at = ?,
			cancelled_at = ?,
			updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`),
		int64(s.State),
		string(s.GrantStatus),
		nullInt(s.CancelReason),
		nullTime(s.PerformedAt),
		nullTime(s.CancelledAt),
		s.UpdatedAt.UnixMilli(),
		s.ID,
		s.Version,
	)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s at version %d", domain.ErrConcurrentModification, s.ID, s.Version)
	}
	t.SetVersion(s.Version + 1)
	return nil
}

// ListPendingGrants returns performed transactions still waiting for their grant.
func (r *SQLTransactionRepository) ListPendingGrants(ctx context.Context, performedBefore time.Time, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, r.q(`
		SELECT `+transactionColumns+`
		FROM payment_transactions
		WHERE grant_status = ? AND state = ? AND performed_at <= ?
		ORDER BY performed_at, id
		LIMIT ?`),
		string(domain.GrantPending), int64(domain.StatePerformed), performedBefore.UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending grants: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// List returns transactions newest first.
func (r *SQLTransactionRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if filter.PrincipalID != "" {
		where = append(where, "principal_id = ?")
		args = append(args, filter.PrincipalID)
	}
	if filter.State != nil {
		where = append(where, "state = ?")
		args = append(args, int64(*filter.State))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := `SELECT ` + transactionColumns + ` FROM payment_transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`

	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, r.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// Summarize counts transactions per state and totals captured revenue.
func (r *SQLTransactionRepository) Summarize(ctx context.Context) (domain.Summary, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	summary := domain.Summary{ByState: make(map[domain.State]int)}

	rows, err := exec.Query(ctx, `
		SELECT state, COUNT(*), CAST(COALESCE(SUM(amount), 0) AS BIGINT)
		FROM payment_transactions
		GROUP BY state`)
	if err != nil {
		return summary, fmt.Errorf("summarize transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var state, count, amount int64
		if err := rows.Scan(&state, &count, &amount); err != nil {
			return summary, err
		}
		summary.ByState[domain.State(state)] = int(count)
		summary.Total += int(count)
		if domain.State(state) == domain.StatePerformed {
			summary.CapturedAmount = amount
		}
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}

	var pending int64
	err = exec.QueryRow(ctx, r.q(`
		SELECT COUNT(*) FROM payment_transactions WHERE grant_status = ? AND state = ?`),
		string(domain.GrantPending), int64(domain.StatePerformed),
	).Scan(&pending)
	if err != nil {
		return summary, fmt.Errorf("count pending grants: %w", err)
	}
	summary.PendingGrants = int(pending)
	return summary, nil
}

func scanTransactions(rows database.Rows) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row database.Row) (*domain.Transaction, error) {
	var (
		id, principalID, plan, provider, grantStatus string
		amount, state, createdAt, updatedAt, version int64
		cancelReason, performedAt, cancelledAt       sql.NullInt64
	)
	if err := row.Scan(
		&id, &principalID, &plan, &amount, &state, &provider, &grantStatus,
		&cancelReason, &createdAt, &performedAt, &cancelledAt, &updatedAt, &version,
	); err != nil {
		return nil, err
	}

	p, err := identity.ParsePlan(plan)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", id, err)
	}

	snapshot := domain.TransactionSnapshot{
		ID:          id,
		PrincipalID: principalID,
		Plan:        p,
		Amount:      amount,
		State:       domain.State(state),
		Provider:    provider,
		GrantStatus: domain.GrantStatus(grantStatus),
		CreatedAt:   time.UnixMilli(createdAt).UTC(),
		PerformedAt: timeFromNull(performedAt),
		CancelledAt: timeFromNull(cancelledAt),
		UpdatedAt:   time.UnixMilli(updatedAt).UTC(),
		Version:     int(version),
	}
	if cancelReason.Valid {
		reason := int(cancelReason.Int64)
		snapshot.CancelReason = &reason
	}
	return domain.RehydrateTransaction(snapshot), nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

var _ domain.TransactionRepository = (*SQLTransactionRepository)(nil)
