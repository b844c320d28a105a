package migrations

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/carepay/internal/shared/infrastructure/database/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_SQLiteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tmpDir, err := os.MkdirTemp("", "carepay-migrate-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(tmpDir, "test.db"),
	})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Run(ctx, conn, nil))
	require.NoError(t, Run(ctx, conn, nil))

	for _, table := range []string{"principals", "payment_transactions", "subscriptions", "outbox"} {
		var name string
		err := conn.QueryRow(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	var versions int
	require.NoError(t, conn.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&versions))
	assert.Equal(t, 1, versions)
}

func TestPgx5URL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@host:5432/db", pgx5URL("postgres://u:p@host:5432/db"))
	assert.Equal(t, "pgx5://u:p@host/db", pgx5URL("postgresql://u:p@host/db"))
	assert.Equal(t, "pgx5://already", pgx5URL("pgx5://already"))
}
