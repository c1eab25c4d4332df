// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-biosecure.
//
// go-biosecure is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youmark/pkcs8"

	"github.com/jeremyhahn/go-biosecure/pkg/platform/softauthn"
	"github.com/jeremyhahn/go-biosecure/pkg/storage"
	"github.com/jeremyhahn/go-biosecure/pkg/storage/file"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "biosecure.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Success(t *testing.T) {
	path := writeConfig(t, `
relying_party:
  id: "bank.example"
  display_name: "Example Bank"
  origins: ["https://bank.example", "https://www.bank.example"]
  timeout: 30s
fingerprint:
  strict: true
  slot: "customers"
storage:
  backend: "file"
  path: "/var/lib/biosecure"
server:
  address: ":9443"
  ratelimit:
    enabled: true
    requests_per_minute: 12
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bank.example", cfg.RelyingParty.ID)
	assert.Equal(t, 30*time.Second, cfg.RelyingParty.Timeout)
	assert.Equal(t, "required", cfg.RelyingParty.UserVerification, "default kept")
	assert.True(t, cfg.Fingerprint.Strict)
	assert.True(t, cfg.Fingerprint.Verify, "default kept")
	assert.Equal(t, "customers", cfg.Fingerprint.Slot)
	assert.Equal(t, StorageFile, cfg.Storage.Backend)
	assert.Equal(t, ":9443", cfg.Server.Address)
	assert.Equal(t, 12, cfg.Server.RateLimit.RequestsPerMinute)
	assert.Equal(t, []string{"bank.example"}, cfg.Server.JWT.Audience)
	assert.Equal(t, "https://bank.example", cfg.Authenticator.Origin)

	fc := cfg.FingerprintConfig()
	assert.Equal(t, "Example Bank", fc.RPDisplayName)
	assert.Equal(t, []string{"https://bank.example", "https://www.bank.example"}, fc.RPOrigins)
	assert.True(t, fc.Strict)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "relying_party: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = Load(writeConfig(t, "storage:\n  backend: floppy\n"))
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("BIOSECURE_RP_ID", "env.example")
	t.Setenv("BIOSECURE_RP_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("BIOSECURE_STRICT", "true")
	t.Setenv("BIOSECURE_VERIFY", "not-a-bool")
	t.Setenv("BIOSECURE_STORAGE", "vault")
	t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")
	t.Setenv("BIOSECURE_RATE_LIMIT", "0")
	t.Setenv("BIOSECURE_LOG_LEVEL", "warn")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "env.example", cfg.RelyingParty.ID)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.RelyingParty.Origins)
	assert.True(t, cfg.Fingerprint.Strict)
	assert.True(t, cfg.Fingerprint.Verify, "invalid bool ignored")
	assert.Equal(t, StorageVault, cfg.Storage.Backend)
	assert.Equal(t, "http://127.0.0.1:8200", cfg.Storage.Vault.Address)
	assert.False(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "missing rp id", mutate: func(c *Config) { c.RelyingParty.ID = "" }, wantErr: "relying_party.id"},
		{name: "negative timeout", mutate: func(c *Config) { c.RelyingParty.Timeout = -time.Second }, wantErr: "timeout"},
		{name: "file without path", mutate: func(c *Config) { c.Storage.Backend = StorageFile }, wantErr: "storage.path"},
		{name: "vault without address", mutate: func(c *Config) { c.Storage.Backend = StorageVault }, wantErr: "storage.vault.address"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Backend = "floppy" }, wantErr: "invalid storage backend"},
		{name: "unknown provider", mutate: func(c *Config) { c.Authenticator.Provider = "usb" }, wantErr: "invalid authenticator provider"},
		{name: "negative rate", mutate: func(c *Config) { c.Server.RateLimit.RequestsPerMinute = -1 }, wantErr: "requests_per_minute"},
		{name: "tls without cert", mutate: func(c *Config) { c.Server.TLS.Enabled = true }, wantErr: "cert_file"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "invalid log level"},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "invalid log format"},
		{name: "bad user verification", mutate: func(c *Config) { c.RelyingParty.UserVerification = "always" }, wantErr: "invalid user verification"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			cfg.SetDefaults()
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestOpenStorage(t *testing.T) {
	cfg := Default()
	backend, err := cfg.OpenStorage()
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryBackend{}, backend)

	cfg.Storage.Backend = StorageFile
	cfg.Storage.Path = t.TempDir()
	backend, err = cfg.OpenStorage()
	require.NoError(t, err)
	assert.IsType(t, &file.FileStorage{}, backend)
	require.NoError(t, backend.Close())

	cfg.Storage.Backend = "floppy"
	_, err = cfg.OpenStorage()
	assert.Error(t, err)
}

func TestProvider(t *testing.T) {
	cfg := Default()
	cfg.SetDefaults()
	cfg.Authenticator.Embedded = true

	provider, err := cfg.Provider(storage.NewMemory())
	require.NoError(t, err)
	auth, ok := provider.(*softauthn.Authenticator)
	require.True(t, ok)
	assert.True(t, auth.Config().Embedded)
	assert.Equal(t, "https://localhost", auth.Config().Origin)

	cfg.Authenticator.Provider = ProviderNone
	provider, err = cfg.Provider(storage.NewMemory())
	require.NoError(t, err)
	assert.Nil(t, provider)
}

func writeKey(t *testing.T, passphrase []byte) (string, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := pkcs8.MarshalPrivateKey(key, passphrase, nil)
	require.NoError(t, err)

	blockType := "PRIVATE KEY"
	if len(passphrase) > 0 {
		blockType = "ENCRYPTED PRIVATE KEY"
	}
	path := filepath.Join(t.TempDir(), "jwt.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), 0600))
	return path, key
}

func TestTokenIssuer(t *testing.T) {
	t.Run("ephemeral key", func(t *testing.T) {
		cfg := Default()
		cfg.SetDefaults()
		issuer, err := cfg.TokenIssuer()
		require.NoError(t, err)
		token, err := issuer.Issue("alice", "native")
		require.NoError(t, err)
		_, err = issuer.Verify(token)
		assert.NoError(t, err)
	})

	t.Run("key file", func(t *testing.T) {
		path, key := writeKey(t, nil)
		cfg := Default()
		cfg.Server.JWT.KeyFile = path
		cfg.SetDefaults()
		issuer, err := cfg.TokenIssuer()
		require.NoError(t, err)
		assert.True(t, key.PublicKey.Equal(issuer.PublicKey()))
	})

	t.Run("encrypted key file", func(t *testing.T) {
		path, key := writeKey(t, []byte("hunter2"))
		cfg := Default()
		cfg.Server.JWT.KeyFile = path
		cfg.Server.JWT.KeyPassphrase = "hunter2"
		cfg.SetDefaults()
		issuer, err := cfg.TokenIssuer()
		require.NoError(t, err)
		assert.True(t, key.PublicKey.Equal(issuer.PublicKey()))

		cfg.Server.JWT.KeyPassphrase = "wrong"
		_, err = cfg.TokenIssuer()
		assert.Error(t, err)
	})

	t.Run("not pem", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jwt.pem")
		require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))
		cfg := Default()
		cfg.Server.JWT.KeyFile = path
		_, err := cfg.TokenIssuer()
		assert.ErrorContains(t, err, "no PEM block")
	})
}

func TestLoadTLSConfig(t *testing.T) {
	disabled := &TLSConfig{}
	tlsConfig, err := disabled.LoadTLSConfig()
	require.NoError(t, err)
	assert.Nil(t, tlsConfig)

	missing := &TLSConfig{Enabled: true, CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}
	_, err = missing.LoadTLSConfig()
	assert.ErrorContains(t, err, "failed to load server certificate")

	_, err = parseTLSVersion("TLS1.0")
	assert.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	cfg := Default()
	limiter := cfg.RateLimiter()
	defer limiter.Stop()
	assert.True(t, limiter.IsEnabled())
	assert.Equal(t, 10, limiter.Stats().Burst)
}
