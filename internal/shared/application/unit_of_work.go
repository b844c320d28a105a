package application

import (
	"context"
	"errors"
)

// UnitOfWork provides transactional support for aggregating multiple operations.
type UnitOfWork interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWorkFunc is a function that executes within a unit of work.
type UnitOfWorkFunc func(ctx context.Context) error

// WithUnitOfWork executes the given function within a unit of work.
func WithUnitOfWork(ctx context.Context, uow UnitOfWork, fn UnitOfWorkFunc) error {
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(txCtx); err != nil {
		_ = uow.Rollback(txCtx)
		return err
	}

	return uow.Commit(txCtx)
}

// DefaultConflictAttempts bounds how often a unit of work is replayed after
// losing an optimistic concurrency race.
const DefaultConflictAttempts = 3

// WithUnitOfWorkRetry runs fn in a fresh unit of work, replaying it while it
// fails with an error matching conflict. The final error is returned unchanged.
func WithUnitOfWorkRetry(ctx context.Context, uow UnitOfWork, attempts int, conflict error, fn UnitOfWorkFunc) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = WithUnitOfWork(ctx, uow, fn)
		if err == nil || !errors.Is(err, conflict) {
			return err
		}
	}
	return err
}
