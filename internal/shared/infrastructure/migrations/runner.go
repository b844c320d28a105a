package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/database"
)

type sqlDBProvider interface {
	DB() *sql.DB
}

type urlProvider interface {
	URL() string
}

// Run migrates the schema for whichever driver conn was opened with.
func Run(ctx context.Context, conn database.Connection, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	switch conn.Driver() {
	case database.DriverSQLite:
		p, ok := conn.(sqlDBProvider)
		if !ok {
			return fmt.Errorf("sqlite connection does not expose *sql.DB")
		}
		applied, err := RunSQLiteMigrations(ctx, p.DB())
		if err != nil {
			return err
		}
		logger.Info("sqlite migrations complete", "applied", applied)
		return nil
	case database.DriverPostgres:
		p, ok := conn.(urlProvider)
		if !ok {
			return fmt.Errorf("postgres connection does not expose its URL")
		}
		changed, err := RunPostgresMigrations(p.URL())
		if err != nil {
			return err
		}
		logger.Info("postgres migrations complete", "changed", changed)
		return nil
	default:
		return fmt.Errorf("unsupported database driver: %s", conn.Driver())
	}
}
