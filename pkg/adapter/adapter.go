// Package adapter connects Themis to the databases it audits.
//
// This package contains the contract every target adapter implements and the
// cursor the rule engine queries through. Concrete adapters live in pkg/adapters/
// subdirectories and register themselves from init().
package adapter

import (
	"context"
)

// Config holds the connection settings of one target.
type Config struct {
	Type     string
	Path     string // file-based engines (duckdb)
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string // driver options, e.g. sslmode, tls, charset
	Params   map[string]any    // adapter-specific settings decoded by the adapter
}

// Adapter defines the interface that all target adapters must implement.
type Adapter interface {
	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Exec executes a SQL statement that doesn't return rows.
	Exec(ctx context.Context, sql string) error

	// Cursor returns a cursor pinned to one dedicated connection.
	// The caller must close it before closing the adapter.
	Cursor(ctx context.Context) (*SQLCursor, error)

	// DialectName returns the SQL dialect of the target, e.g. "mysql".
	DialectName() string

	// DefaultSchema returns the schema audited when the target config names none.
	DefaultSchema() string
}
