package database

import (
	"context"
	"errors"
)

// ErrNoTransaction is returned by Commit and Rollback on a context that was
// not produced by Begin.
var ErrNoTransaction = errors.New("no transaction in context")

type txKey struct{}

// txScope is what Begin stores on the context. Only the scope that opened
// the transaction may finish it.
type txScope struct {
	tx    Transaction
	owner bool
}

func scopeFrom(ctx context.Context) (txScope, bool) {
	s, ok := ctx.Value(txKey{}).(txScope)
	return s, ok && s.tx != nil
}

// TxFromContext returns the transaction opened by a UnitOfWork, or nil.
func TxFromContext(ctx context.Context) Transaction {
	s, _ := scopeFrom(ctx)
	return s.tx
}

// ExecutorFromContext prefers the context's transaction over conn so that a
// repository call joins whatever unit of work is in progress.
func ExecutorFromContext(ctx context.Context, conn Connection) Executor {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return conn
}

// UnitOfWork opens transactions on a Connection and carries them on the
// context. Nested Begin calls join the outer transaction; their Commit and
// Rollback are no-ops.
type UnitOfWork struct {
	conn Connection
}

// NewUnitOfWork creates a UnitOfWork over conn.
func NewUnitOfWork(conn Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

func (u *UnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if s, ok := scopeFrom(ctx); ok {
		return context.WithValue(ctx, txKey{}, txScope{tx: s.tx}), nil
	}
	tx, err := u.conn.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return context.WithValue(ctx, txKey{}, txScope{tx: tx, owner: true}), nil
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	return finish(ctx, Transaction.Commit)
}

func (u *UnitOfWork) Rollback(ctx context.Context) error {
	return finish(ctx, Transaction.Rollback)
}

func finish(ctx context.Context, op func(Transaction, context.Context) error) error {
	s, ok := scopeFrom(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !s.owner {
		return nil
	}
	return op(s.tx, ctx)
}
