package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// SQLSubscriptionRepository implements domain.SubscriptionRepository.
type SQLSubscriptionRepository struct {
	conn database.Connection
}

// NewSQLSubscriptionRepository creates a new repository.
func NewSQLSubscriptionRepository(conn database.Connection) *SQLSubscriptionRepository {
	return &SQLSubscriptionRepository{conn: conn}
}

// Upsert inserts or updates the principal's subscription.
func (r *SQLSubscriptionRepository) Upsert(ctx context.Context, s *domain.Subscription) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	now := time.Now().UTC()

	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err := exec.Exec(ctx, database.Rebind(r.conn.Driver(), `
		INSERT INTO subscriptions (
			id, principal_id, plan, status, provider, transaction_id,
			current_period_start, current_period_end, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (principal_id) DO UPDATE SET
			plan = excluded.plan,
			status = excluded.status,
			provider = excluded.provider,
			transaction_id = excluded.transaction_id,
			current_period_start = excluded.current_period_start,
			current_period_end = excluded.current_period_end,
			updated_at = excluded.updated_at`),
		s.ID.String(),
		s.PrincipalID,
		s.Plan.String(),
		s.Status.String(),
		s.Provider,
		nullString(s.TransactionID),
		nullTime(s.CurrentPeriodStart),
		nullTime(s.CurrentPeriodEnd),
		createdAt.UnixMilli(),
		updatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert subscription for %s: %w", s.PrincipalID, err)
	}
	return nil
}

// FindByPrincipalID returns the subscription for a principal, or nil if none.
func (r *SQLSubscriptionRepository) FindByPrincipalID(ctx context.Context, principalID string) (*domain.Subscription, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)

	var (
		idStr, plan, status, provider string
		transactionID                 sql.NullString
		periodStart, periodEnd        sql.NullInt64
		createdAt, updatedAt          int64
	)
	err := exec.QueryRow(ctx, database.Rebind(r.conn.Driver(), `
		SELECT id, plan, status, provider, transaction_id,
		       current_period_start, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE principal_id = ?`), principalID,
	).Scan(&idStr, &plan, &status, &provider, &transactionID,
		&periodStart, &periodEnd, &createdAt, &updatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find subscription for %s: %w", principalID, err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("subscription id %q: %w", idStr, err)
	}
	p, err := identity.ParsePlan(plan)
	if err != nil {
		return nil, err
	}
	st, err := identity.ParseSubscriptionStatus(status)
	if err != nil {
		return nil, err
	}

	return &domain.Subscription{
		ID:                 id,
		PrincipalID:        principalID,
		Plan:               p,
		Status:             st,
		Provider:           provider,
		TransactionID:      transactionID.String,
		CurrentPeriodStart: timeFromNull(periodStart),
		CurrentPeriodEnd:   timeFromNull(periodEnd),
		CreatedAt:          time.UnixMilli(createdAt).UTC(),
		UpdatedAt:          time.UnixMilli(updatedAt).UTC(),
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ domain.SubscriptionRepository = (*SQLSubscriptionRepository)(nil)
