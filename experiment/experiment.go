// Package experiment is the user-facing facade. It wires a configuration to
// a backend provider, fills the experiment table from keyfield domains or
// literal rows, and runs the claim/execute/report loop for one or more
// workers.
package experiment

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"expgrid/config"
	"expgrid/domain"
	"expgrid/internal/backend"
	"expgrid/internal/grid"
	"expgrid/internal/table"
	"expgrid/internal/tunnel"
)

// Experimenter binds one configuration to one experiment table. Construction
// connects to the backend, creates the database and table when missing, and
// verifies the table structure when present. An Experimenter is safe for
// concurrent use; ExecuteWith runs several workers over the same instance.
type Experimenter struct {
	cfg      *config.Config
	provider backend.Provider
	db       *sql.DB
	table    *table.Manager
	worker   string
	logger   *slog.Logger
}

type settings struct {
	logger *slog.Logger
	worker string
}

// Option adjusts how New builds the Experimenter.
type Option func(*settings)

// WithLogger routes progress logging to logger instead of slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithWorkerName overrides both the generated worker name and the one from
// the configuration file.
func WithWorkerName(name string) Option {
	return func(s *settings) { s.worker = name }
}

// New builds an Experimenter from an already loaded configuration.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Experimenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := settings{logger: slog.Default(), worker: cfg.Experiment.Worker}
	for _, opt := range opts {
		opt(&s)
	}
	if s.worker == "" {
		s.worker = defaultWorkerName()
	}

	keyfields, err := cfg.Keyfields()
	if err != nil {
		return nil, err
	}
	resultfields, err := cfg.ResultFields()
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	if err := provider.EnsureDatabase(ctx); err != nil {
		provider.Close() //nolint:errcheck
		return nil, err
	}
	db, err := provider.Open(ctx)
	if err != nil {
		provider.Close() //nolint:errcheck
		return nil, err
	}

	mgr, err := table.New(provider, db, cfg.Database.Table, keyfields, resultfields, cfg.Database.ResultTimestamps)
	if err == nil {
		err = mgr.Ensure(ctx)
	}
	if err != nil {
		db.Close()       //nolint:errcheck
		provider.Close() //nolint:errcheck
		return nil, err
	}

	e := &Experimenter{
		cfg:      cfg,
		provider: provider,
		db:       db,
		table:    mgr,
		worker:   s.worker,
		logger:   s.logger,
	}
	e.logger.Info("experiment table ready",
		"provider", provider.Name(),
		"database", cfg.Database.Database,
		"table", cfg.Database.Table,
		"worker", e.worker)
	return e, nil
}

// FromFile loads the configuration at path and calls New.
func FromFile(ctx context.Context, path string, opts ...Option) (*Experimenter, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, opts...)
}

// buildProvider maps the configuration (and, for server engines, the
// credentials file plus environment) onto a backend provider.
func buildProvider(cfg *config.Config) (backend.Provider, error) {
	switch cfg.Database.Provider {
	case config.ProviderSQLite:
		return backend.NewSQLite(cfg.Database.Database), nil
	case config.ProviderMySQL:
		creds, err := config.LoadCredentials(cfg.Database.CredentialsFile)
		if err != nil {
			return nil, err
		}
		mc := backend.MySQLConfig{
			Host:     creds.Connection.Standard.Server,
			Port:     creds.Connection.Standard.Port,
			User:     creds.Database.User,
			Password: creds.Database.Password,
			Database: cfg.Database.Database,
		}
		if cfg.Database.UseSSHTunnel {
			ssh := creds.Connection.SSH
			if ssh == nil {
				return nil, domain.ErrConfiguration("use_ssh_tunnel is set but the credentials file has no ssh section")
			}
			mc.Tunnel = &tunnel.Config{
				Address:    ssh.Address,
				Port:       ssh.Port,
				User:       ssh.User,
				KeyFile:    ssh.KeyFile,
				Passphrase: ssh.Passphrase,
				Password:   ssh.Password,
				KnownHosts: ssh.KnownHosts,
				RemoteHost: ssh.RemoteHost,
				RemotePort: ssh.RemotePort,
			}
		}
		return backend.NewMySQL(mc), nil
	default:
		return nil, domain.ErrConfiguration("unsupported provider %q", cfg.Database.Provider)
	}
}

// defaultWorkerName tags rows claimed by this process: hostname plus a short
// random suffix so parallel workers on one machine stay distinguishable.
func defaultWorkerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

// FillFromConfig expands the keyfield value domains and fixed combinations
// from the configuration and inserts every combination not already present.
// Returns the number of rows inserted and the number skipped as duplicates.
func (e *Experimenter) FillFromConfig(ctx context.Context) (inserted, skipped int, err error) {
	return e.fill(ctx, e.cfg.Experiment.KeyfieldValues, e.cfg.Experiment.Fixed)
}

// FillWithRows inserts the given literal rows, each carrying exactly the
// declared keyfield set, skipping rows already present.
func (e *Experimenter) FillWithRows(ctx context.Context, rows []map[string]interface{}) (inserted, skipped int, err error) {
	return e.fill(ctx, nil, rows)
}

func (e *Experimenter) fill(ctx context.Context, domains map[string][]interface{}, fixed []map[string]interface{}) (int, int, error) {
	rows, err := grid.Expand(domain.FieldNames(e.table.Keyfields()), domains, fixed)
	if err != nil {
		return 0, 0, err
	}
	inserted, skipped, err := e.table.Insert(ctx, rows)
	if err != nil {
		return 0, 0, err
	}
	e.logger.Info("table filled",
		"table", e.table.Name(), "inserted", inserted, "skipped", skipped)
	return inserted, skipped, nil
}

// Reset deletes every row in one of the given statuses and reinserts its
// keyfield combination as a fresh created row. Returns the number reset.
func (e *Experimenter) Reset(ctx context.Context, statuses ...domain.Status) (int, error) {
	n, err := e.table.Reset(ctx, statuses...)
	if err != nil {
		return 0, err
	}
	e.logger.Info("experiments reset", "table", e.table.Name(), "rows", n)
	return n, nil
}

// DropTable removes the experiment table and everything in it.
func (e *Experimenter) DropTable(ctx context.Context) error {
	if err := e.table.Drop(ctx); err != nil {
		return err
	}
	e.logger.Info("table dropped", "table", e.table.Name())
	return nil
}

// StatusCounts reports how many rows sit in each lifecycle status.
func (e *Experimenter) StatusCounts(ctx context.Context) (map[domain.Status]int, error) {
	return e.table.CountsByStatus(ctx)
}

// TableRows returns the full table content ordered by id, for display.
func (e *Experimenter) TableRows(ctx context.Context) (columns []string, rows [][]interface{}, err error) {
	return e.table.Dump(ctx)
}

// WorkerName returns the tag written into claimed rows.
func (e *Experimenter) WorkerName() string { return e.worker }

// Close releases the connection pool and the provider (which tears down the
// SSH tunnel when one is in use).
func (e *Experimenter) Close() error {
	err := e.db.Close()
	if perr := e.provider.Close(); err == nil {
		err = perr
	}
	return err
}
