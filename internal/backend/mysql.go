package backend

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"expgrid/domain"
	"expgrid/internal/ddl"
	"expgrid/internal/tunnel"
)

// MySQLConfig carries server connection settings. Tunnel, when set, routes
// every connection through an SSH hop established before any query is issued.
type MySQLConfig struct {
	Host     string
	Port     int // default 3306
	User     string
	Password string
	Database string
	Tunnel   *tunnel.Config
}

// MySQL is the server-engine provider. Claims rely on row-level locking
// (SELECT ... FOR UPDATE inside an explicit transaction).
type MySQL struct {
	cfg MySQLConfig
	tun *tunnel.Tunnel

	// netName keys the driver's dialer registry when tunneling.
	netName string
}

var _ Provider = (*MySQL)(nil)

// NewMySQL builds a provider and, when tunneling is requested, registers the
// tunnel as a custom dialer with the driver.
func NewMySQL(cfg MySQLConfig) *MySQL {
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	p := &MySQL{cfg: cfg}
	if cfg.Tunnel != nil {
		p.tun = tunnel.New(*cfg.Tunnel)
		p.netName = "ssh-" + uuid.NewString()[:8]
		mysql.RegisterDialContext(p.netName, func(ctx context.Context, addr string) (net.Conn, error) {
			return p.tun.DialContext(ctx, addr)
		})
	}
	return p
}

// Name implements Provider.
func (m *MySQL) Name() string { return "mysql" }

// dsn renders the driver config. withDatabase=false yields a server-level
// connection for CREATE DATABASE.
func (m *MySQL) dsn(withDatabase bool) string {
	mc := mysql.NewConfig()
	mc.User = m.cfg.User
	mc.Passwd = m.cfg.Password
	if m.tun != nil {
		mc.Net = m.netName
		mc.Addr = m.tun.RemoteAddr()
	} else {
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	}
	if withDatabase {
		mc.DBName = m.cfg.Database
	}
	return mc.FormatDSN()
}

func (m *MySQL) open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, domain.ErrConnection("open mysql: %v", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, domain.ErrConnection("ping mysql at %s: %v", m.cfg.Host, err)
	}
	return db, nil
}

// Open implements Provider.
func (m *MySQL) Open(ctx context.Context) (*sql.DB, error) {
	return m.open(ctx, m.dsn(true))
}

// EnsureDatabase implements Provider, via a short server-level connection.
func (m *MySQL) EnsureDatabase(ctx context.Context) error {
	if err := ddl.ValidateIdentifier(m.cfg.Database); err != nil {
		return domain.ErrCreation("invalid database name %q: %v", m.cfg.Database, err)
	}
	db, err := m.open(ctx, m.dsn(false))
	if err != nil {
		return domain.ErrCreation("connect for database creation: %v", err)
	}
	defer db.Close()

	stmt := "CREATE DATABASE IF NOT EXISTS " + ddl.QuoteIdentifierMySQL(m.cfg.Database)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return domain.ErrCreation("create database %s: %v", m.cfg.Database, err)
	}
	return nil
}

// BeginClaim implements Provider. A plain transaction suffices; the claim
// SELECT carries the FOR UPDATE row lock.
func (m *MySQL) BeginClaim(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	return db.BeginTx(ctx, nil)
}

// Placeholder implements Provider.
func (m *MySQL) Placeholder() string { return "?" }

// AutoIncrement implements Provider.
func (m *MySQL) AutoIncrement() string { return "AUTO_INCREMENT" }

// RandomExpr implements Provider.
func (m *MySQL) RandomExpr() string { return "RAND()" }

// LockSuffix implements Provider.
func (m *MySQL) LockSuffix() string { return " FOR UPDATE" }

// QuoteIdent implements Provider.
func (m *MySQL) QuoteIdent(name string) string { return ddl.QuoteIdentifierMySQL(name) }

// TableExists implements Provider.
func (m *MySQL) TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?",
		m.cfg.Database, table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return count > 0, nil
}

// TableColumns implements Provider, via the server's information schema.
func (m *MySQL) TableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT column_name FROM information_schema.columns WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position",
		m.cfg.Database, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}
	return columns, nil
}

// Close implements Provider, tearing down the SSH tunnel when present.
func (m *MySQL) Close() error {
	if m.tun != nil {
		return m.tun.Close()
	}
	return nil
}
