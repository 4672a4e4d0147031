// Package config loads the experiment grid configuration file and the
// database credentials it points at.
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"expgrid/domain"
)

// Provider tokens accepted in the database section.
const (
	ProviderMySQL  = "mysql"
	ProviderSQLite = "sqlite"
)

// Config is one experiment grid definition: where the table lives, which
// fields it has, and how workers should run it.
type Config struct {
	Database   Database          `yaml:"database"`
	Experiment Experiment        `yaml:"experiment"`
	Custom     map[string]string `yaml:"custom"`
}

// Database selects the backend and names the database and table.
type Database struct {
	Provider         string `yaml:"provider"`
	Database         string `yaml:"database"`
	Table            string `yaml:"table"`
	ResultTimestamps bool   `yaml:"result_timestamps"`
	CredentialsFile  string `yaml:"credentials_file"`
	UseSSHTunnel     bool   `yaml:"use_ssh_tunnel"`
}

// Experiment declares the table fields, the keyfield value domains used by
// config-driven fills, and execution options.
type Experiment struct {
	Keyfields      []string                 `yaml:"keyfields"`
	ResultFields   []string                 `yaml:"resultfields"`
	KeyfieldValues map[string][]interface{} `yaml:"keyfield_values"`
	Fixed          []map[string]interface{} `yaml:"fixed"`
	Worker         string                   `yaml:"worker"`
	RandomOrder    bool                     `yaml:"random_order"`
	Workers        int                      `yaml:"workers"`
	MaxExperiments int                      `yaml:"max_experiments"`
}

// Load reads, parses, and validates an experiment configuration file.
// Unknown YAML fields are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // caller-controlled config path
	if err != nil {
		return nil, domain.ErrConfiguration("read config %s: %v", path, err)
	}

	// Defaults live on the struct before decoding so absent fields keep them.
	cfg := &Config{
		Experiment: Experiment{
			Workers:        1,
			MaxExperiments: -1,
		},
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, domain.ErrConfiguration("parse config %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration before any table work.
func (c *Config) Validate() error {
	switch c.Database.Provider {
	case ProviderMySQL, ProviderSQLite:
	case "":
		return domain.ErrConfiguration("database.provider is required (mysql or sqlite)")
	default:
		return domain.ErrConfiguration("unsupported database.provider %q (must be mysql or sqlite)", c.Database.Provider)
	}
	if c.Database.Database == "" {
		return domain.ErrConfiguration("database.database is required")
	}
	if c.Database.Table == "" {
		return domain.ErrConfiguration("database.table is required")
	}
	if len(c.Experiment.Keyfields) == 0 {
		return domain.ErrConfiguration("experiment.keyfields must declare at least one field")
	}
	if _, err := c.Keyfields(); err != nil {
		return err
	}
	if _, err := c.ResultFields(); err != nil {
		return err
	}
	if c.Experiment.Workers < 1 {
		return domain.ErrConfiguration("experiment.workers must be at least 1")
	}
	for k := range c.Experiment.KeyfieldValues {
		if !containsToken(c.Experiment.Keyfields, k) {
			return domain.ErrConfiguration("keyfield_values declares %q, which is not a keyfield", k)
		}
	}
	return nil
}

// Keyfields parses the declared keyfield tokens.
func (c *Config) Keyfields() ([]domain.Field, error) {
	return domain.ParseFields(c.Experiment.Keyfields)
}

// ResultFields parses the declared result field tokens. An empty declaration
// is allowed: such a grid only tracks completion.
func (c *Config) ResultFields() ([]domain.Field, error) {
	return domain.ParseFields(c.Experiment.ResultFields)
}

// containsToken reports whether name matches the name part of any field token.
func containsToken(tokens []string, name string) bool {
	for _, tok := range tokens {
		n, _, _ := strings.Cut(tok, ":")
		if strings.TrimSpace(n) == name {
			return true
		}
	}
	return false
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped. A missing file is not an error.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Real environment variables take precedence over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
