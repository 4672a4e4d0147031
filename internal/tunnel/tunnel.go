// Package tunnel dials a remote database endpoint through an SSH hop,
// replacing a locally bound forwarded port with per-connection streams.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config describes the SSH hop and the database endpoint as seen from it.
type Config struct {
	Address    string // SSH host, required
	Port       int    // SSH port, default 22
	User       string
	KeyFile    string // private key path; key auth when set
	Passphrase string // optional key passphrase
	Password   string // password auth when no key is given
	KnownHosts string // known_hosts path; host keys are not verified when empty
	RemoteHost string // database host as seen from the hop, default 127.0.0.1
	RemotePort int    // database port as seen from the hop, default 3306
}

// Tunnel multiplexes database connections over one SSH client connection.
// The SSH connection is established on first dial and reused afterwards.
type Tunnel struct {
	cfg Config

	mu     sync.Mutex
	client *ssh.Client
}

// New returns an unconnected tunnel with defaults applied.
func New(cfg Config) *Tunnel {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.RemoteHost == "" {
		cfg.RemoteHost = "127.0.0.1"
	}
	if cfg.RemotePort == 0 {
		cfg.RemotePort = 3306
	}
	return &Tunnel{cfg: cfg}
}

// RemoteAddr returns the database endpoint the tunnel forwards to.
func (t *Tunnel) RemoteAddr() string {
	return net.JoinHostPort(t.cfg.RemoteHost, strconv.Itoa(t.cfg.RemotePort))
}

// DialContext opens one forwarded stream to addr through the SSH hop. It
// satisfies the dial function contract of database drivers that support
// custom dialers.
func (t *Tunnel) DialContext(ctx context.Context, addr string) (net.Conn, error) {
	client, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := client.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ssh forward to %s: %w", addr, err)
	}
	return conn, nil
}

func (t *Tunnel) connect(ctx context.Context) (*ssh.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client, nil
	}

	clientCfg, err := t.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(t.cfg.Address, strconv.Itoa(t.cfg.Port))
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh host %s: %w", addr, err)
	}
	conn, chans, reqs, err := ssh.NewClientConn(raw, addr, clientCfg)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	t.client = ssh.NewClient(conn, chans, reqs)
	return t.client, nil
}

func (t *Tunnel) clientConfig() (*ssh.ClientConfig, error) {
	if t.cfg.Address == "" {
		return nil, fmt.Errorf("ssh address is required")
	}

	var auths []ssh.AuthMethod
	if t.cfg.KeyFile != "" {
		pem, err := os.ReadFile(t.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		var signer ssh.Signer
		if t.cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(t.cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", t.cfg.KeyFile, err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}
	if t.cfg.Password != "" {
		auths = append(auths, ssh.Password(t.cfg.Password))
	}
	if len(auths) == 0 {
		return nil, fmt.Errorf("ssh tunnel needs a key file or a password")
	}

	hostKeys := ssh.InsecureIgnoreHostKey()
	if t.cfg.KnownHosts != "" {
		cb, err := knownhosts.New(t.cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts %s: %w", t.cfg.KnownHosts, err)
		}
		hostKeys = cb
	}

	return &ssh.ClientConfig{
		User:            t.cfg.User,
		Auth:            auths,
		HostKeyCallback: hostKeys,
		Timeout:         10 * time.Second,
	}, nil
}

// Close tears down the SSH connection. Dialing after Close reconnects.
func (t *Tunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}
