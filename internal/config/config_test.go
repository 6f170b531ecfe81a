package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Equal(t, BackendMemory, cfg.Store.Backend)
	require.Equal(t, 100, cfg.Store.PageSize)
	require.Equal(t, []string{"RS256"}, cfg.Validation.Algorithms)
	require.Equal(t, 10*time.Minute, cfg.Issuer.APIVoucherLifespan)
	require.NotEmpty(t, cfg.Stream.Consumer, "consumer name defaults to the hostname")
	require.Equal(t, "events:purpose", cfg.Stream.StreamKey("purpose"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Store.Backend = BackendPostgres },
			wantErr: "store.dsn",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "dynamo" },
			wantErr: "unknown store backend",
		},
		{
			name:    "same table",
			mutate:  func(c *Config) { c.Store.TokenGenerationStatesTable = c.Store.PlatformStatesTable },
			wantErr: "different tables",
		},
		{
			name:    "duplicate index",
			mutate:  func(c *Config) { c.Indexes.TokenByKid = c.Indexes.TokenByClient },
			wantErr: "not unique",
		},
		{
			name:    "unknown stream domain",
			mutate:  func(c *Config) { c.Stream.Streams = map[string]string{"billing": "events:billing"} },
			wantErr: "unknown domain",
		},
		{
			name:    "no audiences",
			mutate:  func(c *Config) { c.Validation.Audiences = nil },
			wantErr: "audiences",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Validation.Audiences = []string{"interop.example"}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := strings.Join([]string{
		"store:",
		"  backend: postgres",
		"  dsn: postgres://localhost/platform",
		"stream:",
		"  consumer: replica-1",
		"  block: 2s",
		"  streams:",
		"    agreement: interop:agreement",
		"validation:",
		"  audiences: [interop.example]",
		"issuer:",
		"  name: interop.example",
		"  kid: k1",
		"  options:",
		"    private_key_path: /etc/keys/issuer.pem",
		"server:",
		"  admin_key: secret",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, BackendPostgres, cfg.Store.Backend)
	require.Equal(t, "replica-1", cfg.Stream.Consumer)
	require.Equal(t, 2*time.Second, cfg.Stream.Block)
	require.Equal(t, "interop:agreement", cfg.Stream.StreamKey("agreement"))
	require.Equal(t, "events:catalog", cfg.Stream.StreamKey("catalog"))
	require.Equal(t, "/etc/keys/issuer.pem", cfg.Issuer.Options["private_key_path"])
	require.Equal(t, "secret", cfg.Server.AdminKey)
	require.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: memory\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "validating config file")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
