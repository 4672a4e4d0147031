package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"expgrid/domain"
)

// Environment variables that override credentials file values, so CI and
// containers can run without a file on disk.
const (
	EnvDBUser     = "EXPGRID_DB_USER"
	EnvDBPassword = "EXPGRID_DB_PASSWORD"
	EnvDBHost     = "EXPGRID_DB_HOST"
	EnvDBPort     = "EXPGRID_DB_PORT"
)

// Credentials carries the server connection settings the MySQL provider
// needs. The SQLite provider never reads credentials.
type Credentials struct {
	Database struct {
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"database"`
	Connection struct {
		Standard struct {
			Server string `yaml:"server"`
			Port   int    `yaml:"port"`
		} `yaml:"standard"`
		SSH *SSHCredentials `yaml:"ssh"`
	} `yaml:"connection"`
}

// SSHCredentials describes the hop used when use_ssh_tunnel is enabled and
// the database endpoint as seen from that hop.
type SSHCredentials struct {
	Address    string `yaml:"address"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	KeyFile    string `yaml:"keyfile"`
	Passphrase string `yaml:"passphrase"`
	Password   string `yaml:"password"`
	KnownHosts string `yaml:"known_hosts"`
	RemoteHost string `yaml:"remote_host"`
	RemotePort int    `yaml:"remote_port"`
}

// LoadCredentials reads a credentials file and applies environment
// overrides. An empty path is allowed when the environment supplies user and
// host; a named file must exist and parse.
func LoadCredentials(path string) (*Credentials, error) {
	creds := &Credentials{}
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // caller-controlled credentials path
		if err != nil {
			return nil, domain.ErrConfiguration("read credentials %s: %v", path, err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(creds); err != nil {
			return nil, domain.ErrConfiguration("parse credentials %s: %v", path, err)
		}
	}

	if v := os.Getenv(EnvDBUser); v != "" {
		creds.Database.User = v
	}
	if v := os.Getenv(EnvDBPassword); v != "" {
		creds.Database.Password = v
	}
	if v := os.Getenv(EnvDBHost); v != "" {
		creds.Connection.Standard.Server = v
	}
	if v := os.Getenv(EnvDBPort); v != "" {
		port, err := parsePort(v)
		if err != nil {
			return nil, domain.ErrConfiguration("%s: %v", EnvDBPort, err)
		}
		creds.Connection.Standard.Port = port
	}

	if creds.Database.User == "" {
		return nil, domain.ErrConfiguration("credentials: database user is required (file or %s)", EnvDBUser)
	}
	if creds.Connection.Standard.Server == "" {
		return nil, domain.ErrConfiguration("credentials: connection server is required (file or %s)", EnvDBHost)
	}
	return creds, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}
