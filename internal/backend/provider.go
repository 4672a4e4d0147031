// Package backend implements the engine-specific halves of the experiment
// table protocol: connection handling plus the dialect capabilities the
// table manager composes its SQL from.
package backend

import (
	"context"
	"database/sql"
)

// Provider exposes one SQL engine to the experiment table manager. Callers
// compose behavior from these hooks and never branch on the concrete engine.
type Provider interface {
	// Name reports the configured provider token ("mysql" or "sqlite").
	Name() string

	// Open returns a verified, pooled connection handle. The pool is owned
	// by the caller; the provider keeps no reference to it.
	Open(ctx context.Context) (*sql.DB, error)

	// EnsureDatabase creates the target database when missing.
	EnsureDatabase(ctx context.Context) error

	// BeginClaim starts the transaction protecting one claim attempt.
	BeginClaim(ctx context.Context, db *sql.DB) (*sql.Tx, error)

	// Placeholder is the prepared-statement parameter token.
	Placeholder() string

	// AutoIncrement is the identity-column keyword; empty when the engine's
	// INTEGER PRIMARY KEY autoincrements on its own.
	AutoIncrement() string

	// RandomExpr is the ORDER BY expression for random claim order.
	RandomExpr() string

	// LockSuffix is appended to the claim SELECT to lock the candidate row;
	// empty when transaction scoping already serializes writers.
	LockSuffix() string

	// QuoteIdent renders an identifier in the engine's quoting style.
	QuoteIdent(name string) string

	// TableExists reports whether table is present in the target database.
	TableExists(ctx context.Context, db *sql.DB, table string) (bool, error)

	// TableColumns lists table's column names in definition order.
	TableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error)

	// Close releases resources held by the provider itself, such as an SSH
	// tunnel. It does not close pools returned by Open.
	Close() error
}
