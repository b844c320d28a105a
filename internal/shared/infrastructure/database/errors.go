package database

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNoRows is returned when a query expected to return a row returns none.
var ErrNoRows = errors.New("no rows in result set")

// IsNoRows returns true if the error indicates no rows were found.
// This handles both pgx.ErrNoRows and sql.ErrNoRows.
func IsNoRows(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows) ||
		errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, ErrNoRows)
}

const (
	pgUniqueViolation       = "23505"
	sqliteConstraintPrimary = 1555
	sqliteConstraintUnique  = 2067
)

// sqliteCoder matches *sqlite.Error from modernc.org/sqlite without importing it here.
type sqliteCoder interface {
	Code() int
}

// IsUniqueViolation reports whether err is a primary key or unique constraint
// violation raised by either supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr sqliteCoder
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqliteConstraintPrimary || code == sqliteConstraintUnique
	}
	return false
}
