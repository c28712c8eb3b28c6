package db

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

// Migrate applies every pending goose migration found at the root of migrations.
// It returns the schema version after the run.
func Migrate(ctx context.Context, database Database, migrations fs.FS) (int64, error) {
	var dialect goose.Dialect
	switch database.Dialect() {
	case "mysql":
		dialect = goose.DialectMySQL
	case "sqlite3":
		dialect = goose.DialectSQLite3
	default:
		return 0, fmt.Errorf("no migration dialect for %q", database.Dialect())
	}

	provider, err := goose.NewProvider(dialect, database.RawDB(), migrations)
	if err != nil {
		return 0, fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}
