package db

import (
	"context"
	"database/sql"
)

// Database is the connection-pool level handle used by repositories.
type Database interface {
	Querier

	// Transaction runs fn inside a transaction, committing when fn returns nil.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error

	// Dialect names the goose dialect of the backing engine ("mysql" or "sqlite3").
	Dialect() string

	Ping(ctx context.Context) error
	Close() error

	// RawDB exposes the pool for tooling such as migrations.
	RawDB() *sql.DB
}

// Transaction is a database transaction usable wherever a Querier is.
type Transaction interface {
	Querier
	Commit() error
	Rollback() error
}

// Rows is the result of a multi-row query.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is the result of a single-row query.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an executed statement.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}
