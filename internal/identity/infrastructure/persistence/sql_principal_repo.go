package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/carepay/internal/identity/domain"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/database"
)

// SQLPrincipalRepository implements domain.PrincipalRepository for PostgreSQL and SQLite.
type SQLPrincipalRepository struct {
	conn database.Connection
}

// NewSQLPrincipalRepository creates a principal repository.
func NewSQLPrincipalRepository(conn database.Connection) *SQLPrincipalRepository {
	return &SQLPrincipalRepository{conn: conn}
}

func (r *SQLPrincipalRepository) q(query string) string {
	return database.Rebind(r.conn.Driver(), query)
}

// FindByID finds a principal by ID.
func (r *SQLPrincipalRepository) FindByID(ctx context.Context, id string) (*domain.Principal, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)

	var (
		email, plan, status  string
		createdAt, updatedAt int64
	)
	err := exec.QueryRow(ctx, r.q(`
		SELECT email, plan, subscription_status, created_at, updated_at
		FROM principals WHERE id = ?`), id,
	).Scan(&email, &plan, &status, &createdAt, &updatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("find principal %s: %w", id, err)
	}

	var addr domain.Email
	if email != "" {
		if addr, err = domain.NewEmail(email); err != nil {
			return nil, fmt.Errorf("principal %s: %w", id, err)
		}
	}
	p, err := domain.ParsePlan(plan)
	if err != nil {
		return nil, fmt.Errorf("principal %s: %w", id, err)
	}
	st, err := domain.ParseSubscriptionStatus(status)
	if err != nil {
		return nil, fmt.Errorf("principal %s: %w", id, err)
	}

	return domain.RehydratePrincipal(id, addr, p, st,
		time.UnixMilli(createdAt).UTC(), time.UnixMilli(updatedAt).UTC()), nil
}

// Save inserts or replaces a principal.
func (r *SQLPrincipalRepository) Save(ctx context.Context, principal *domain.Principal) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	_, err := exec.Exec(ctx, r.q(`
		INSERT INTO principals (id, email, plan, subscription_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			plan = excluded.plan,
			subscription_status = excluded.subscription_status,
			updated_at = excluded.updated_at`),
		principal.ID(),
		principal.Email().String(),
		principal.Plan().String(),
		principal.SubscriptionStatus().String(),
		principal.CreatedAt().UnixMilli(),
		principal.UpdatedAt().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save principal %s: %w", principal.ID(), err)
	}
	return nil
}

// UpdateEntitlement writes the plan and subscription status only.
func (r *SQLPrincipalRepository) UpdateEntitlement(ctx context.Context, principal *domain.Principal) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	res, err := exec.Exec(ctx, r.q(`
		UPDATE principals SET plan = ?, subscription_status = ?, updated_at = ?
		WHERE id = ?`),
		principal.Plan().String(),
		principal.SubscriptionStatus().String(),
		principal.UpdatedAt().UnixMilli(),
		principal.ID(),
	)
	if err != nil {
		return fmt.Errorf("update entitlement %s: %w", principal.ID(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrPrincipalNotFound
	}
	return nil
}

var _ domain.PrincipalRepository = (*SQLPrincipalRepository)(nil)
