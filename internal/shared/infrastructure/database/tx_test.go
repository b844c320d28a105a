package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	Executor
	commits, rollbacks int
}

func (f *fakeTx) Commit(context.Context) error   { f.commits++; return nil }
func (f *fakeTx) Rollback(context.Context) error { f.rollbacks++; return nil }

type fakeConn struct {
	Executor
	tx       *fakeTx
	begins   int
	beginErr error
}

func (f *fakeConn) BeginTx(context.Context) (Transaction, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	f.begins++
	f.tx = &fakeTx{}
	return f.tx, nil
}
func (f *fakeConn) Ping(context.Context) error { return nil }
func (f *fakeConn) Close() error               { return nil }
func (f *fakeConn) Driver() Driver             { return DriverSQLite }

func TestUnitOfWork_OwnerFinishes(t *testing.T) {
	conn := &fakeConn{}
	uow := NewUnitOfWork(conn)

	ctx, err := uow.Begin(context.Background())
	require.NoError(t, err)
	assert.Same(t, conn.tx, TxFromContext(ctx))
	assert.Same(t, conn.tx, ExecutorFromContext(ctx, conn))

	require.NoError(t, uow.Commit(ctx))
	assert.Equal(t, 1, conn.tx.commits)
}

func TestUnitOfWork_NestedJoins(t *testing.T) {
	conn := &fakeConn{}
	uow := NewUnitOfWork(conn)

	outer, err := uow.Begin(context.Background())
	require.NoError(t, err)
	inner, err := uow.Begin(outer)
	require.NoError(t, err)

	assert.Equal(t, 1, conn.begins)
	require.NoError(t, uow.Rollback(inner))
	require.NoError(t, uow.Commit(inner))
	assert.Zero(t, conn.tx.rollbacks)
	assert.Zero(t, conn.tx.commits)

	require.NoError(t, uow.Rollback(outer))
	assert.Equal(t, 1, conn.tx.rollbacks)
}

func TestUnitOfWork_Errors(t *testing.T) {
	uow := NewUnitOfWork(&fakeConn{beginErr: errors.New("pool closed")})

	_, err := uow.Begin(context.Background())
	assert.EqualError(t, err, "pool closed")

	assert.ErrorIs(t, uow.Commit(context.Background()), ErrNoTransaction)
	assert.ErrorIs(t, uow.Rollback(context.Background()), ErrNoTransaction)
}

func TestExecutorFromContext_NoTransaction(t *testing.T) {
	conn := &fakeConn{}
	assert.Same(t, conn, ExecutorFromContext(context.Background(), conn))
	assert.Nil(t, TxFromContext(context.Background()))
}

func TestDetectDriver(t *testing.T) {
	tests := []struct {
		url      string
		expected Driver
	}{
		{"", DriverSQLite},
		{"postgres://carepay:secret@db:5432/carepay", DriverPostgres},
		{"postgresql://db/carepay?sslmode=disable", DriverPostgres},
		{"sqlite:///var/lib/carepay/carepay.db", DriverSQLite},
		{"file:carepay.db?cache=shared", DriverSQLite},
		{"/var/lib/carepay/carepay.sqlite3", DriverSQLite},
		{"./payments.db", DriverSQLite},
		{"db.internal:5432", DriverPostgres},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectDriver(tt.url))
		})
	}
	assert.Equal(t, "postgres", DriverPostgres.String())
}
