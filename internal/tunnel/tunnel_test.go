package tunnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	tun := New(Config{Address: "bastion.example.com", Password: "pw"})
	assert.Equal(t, "127.0.0.1:3306", tun.RemoteAddr())
	assert.Equal(t, 22, tun.cfg.Port)
}

func TestNewKeepsExplicitEndpoint(t *testing.T) {
	tun := New(Config{
		Address:    "bastion.example.com",
		Port:       2222,
		RemoteHost: "db.internal",
		RemotePort: 3307,
	})
	assert.Equal(t, "db.internal:3307", tun.RemoteAddr())
}

func TestClientConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing_address",
			cfg:     Config{Password: "pw"},
			wantErr: "ssh address is required",
		},
		{
			name:    "missing_auth",
			cfg:     Config{Address: "bastion"},
			wantErr: "needs a key file or a password",
		},
		{
			name:    "unreadable_key",
			cfg:     Config{Address: "bastion", KeyFile: "/nonexistent/id_rsa"},
			wantErr: "read ssh key",
		},
		{
			name: "password_only_ok",
			cfg:  Config{Address: "bastion", User: "worker", Password: "pw"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc, err := New(tt.cfg).clientConfig()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "worker", cc.User)
			assert.Len(t, cc.Auth, 1)
		})
	}
}

func TestCloseWithoutConnect(t *testing.T) {
	tun := New(Config{Address: "bastion", Password: "pw"})
	require.NoError(t, tun.Close())
}
