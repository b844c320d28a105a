package database

import (
	"context"
	"strings"
)

// Driver names a supported backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

func (d Driver) String() string { return string(d) }

var (
	postgresPrefixes = []string{"postgres://", "postgresql://"}
	sqlitePrefixes   = []string{"sqlite://", "file:"}
	sqliteSuffixes   = []string{".db", ".sqlite", ".sqlite3"}
)

// DetectDriver guesses the backend from a connection string. An empty URL
// selects SQLite; anything unrecognised is treated as PostgreSQL.
func DetectDriver(url string) Driver {
	if url == "" {
		return DriverSQLite
	}
	for _, p := range postgresPrefixes {
		if strings.HasPrefix(url, p) {
			return DriverPostgres
		}
	}
	for _, p := range sqlitePrefixes {
		if strings.HasPrefix(url, p) {
			return DriverSQLite
		}
	}
	for _, s := range sqliteSuffixes {
		if strings.HasSuffix(url, s) {
			return DriverSQLite
		}
	}
	return DriverPostgres
}

// Row is satisfied by *sql.Row and pgx.Row.
type Row interface {
	Scan(dest ...any) error
}

// Rows is satisfied by *sql.Rows and the pgx adapter.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// Result is satisfied by sql.Result and the pgx adapter.
type Result interface {
	RowsAffected() (int64, error)
	LastInsertId() (int64, error)
}

// Executor runs statements written with '?' placeholders; see Rebind.
// Repositories obtain one through ExecutorFromContext.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// Transaction is an Executor bound to one database transaction.
type Transaction interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Connection is a pooled handle to one of the supported backends.
type Connection interface {
	Executor
	BeginTx(ctx context.Context) (Transaction, error)
	Ping(ctx context.Context) error
	Close() error
	Driver() Driver
}
