package backend

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"expgrid/domain"
	"expgrid/internal/ddl"
)

// SQLite DSN parameters for production hardening.
const (
	sqliteBusyTimeout = "5000" // 5 seconds
	sqliteSynchronous = "NORMAL"
	sqliteJournalMode = "WAL"
)

// SQLite is the embedded-engine provider. Its pool is sized to one
// connection and its transactions begin with an immediate write lock, so a
// whole claim sequence runs under single-writer semantics without a separate
// row lock primitive.
type SQLite struct {
	path string
}

var _ Provider = (*SQLite)(nil)

// NewSQLite builds a provider for the given database name. A bare name
// becomes <name>.db in the working directory; names carrying an extension or
// a directory are used as paths verbatim.
func NewSQLite(database string) *SQLite {
	path := database
	if filepath.Ext(path) == "" {
		path += ".db"
	}
	return &SQLite{path: path}
}

// Name implements Provider.
func (s *SQLite) Name() string { return "sqlite" }

// Open implements Provider. The returned pool holds a single connection with
// WAL journaling and immediate transaction locking, the write profile for a
// file-backed single-writer engine.
func (s *SQLite) Open(ctx context.Context) (*sql.DB, error) {
	params := url.Values{}
	params.Set("_journal_mode", sqliteJournalMode)
	params.Set("_busy_timeout", sqliteBusyTimeout)
	params.Set("_synchronous", sqliteSynchronous)
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite3", s.path+"?"+params.Encode())
	if err != nil {
		return nil, domain.ErrConnection("open sqlite %s: %v", s.path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, domain.ErrConnection("ping sqlite %s: %v", s.path, err)
	}
	return db, nil
}

// EnsureDatabase implements Provider. The engine creates the file on first
// open; only a missing parent directory needs handling.
func (s *SQLite) EnsureDatabase(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.ErrCreation("create database directory %s: %v", dir, err)
	}
	return nil
}

// BeginClaim implements Provider. The DSN's _txlock=immediate makes every
// transaction take the write lock at BEGIN, covering the claim sequence.
func (s *SQLite) BeginClaim(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	return db.BeginTx(ctx, nil)
}

// Placeholder implements Provider.
func (s *SQLite) Placeholder() string { return "?" }

// AutoIncrement implements Provider. INTEGER PRIMARY KEY is the rowid alias
// and autoincrements without a keyword.
func (s *SQLite) AutoIncrement() string { return "" }

// RandomExpr implements Provider.
func (s *SQLite) RandomExpr() string { return "RANDOM()" }

// LockSuffix implements Provider. Exclusivity comes from the immediate
// transaction, not from a row lock clause.
func (s *SQLite) LockSuffix() string { return "" }

// QuoteIdent implements Provider.
func (s *SQLite) QuoteIdent(name string) string { return ddl.QuoteIdentifier(name) }

// TableExists implements Provider.
func (s *SQLite) TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return true, nil
}

// TableColumns implements Provider, via the engine's metadata pragma.
func (s *SQLite) TableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	if err := ddl.ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+ddl.QuoteIdentifier(table)+")")
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid        int
			name       string
			typ        string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info row: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table_info rows: %w", err)
	}
	return columns, nil
}

// Close implements Provider. The embedded engine holds nothing outside the
// pools returned by Open.
func (s *SQLite) Close() error { return nil }
