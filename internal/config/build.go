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
	"encoding/pem"
	"fmt"
	"os"

	"github.com/youmark/pkcs8"

	"github.com/jeremyhahn/go-biosecure/pkg/credstore"
	"github.com/jeremyhahn/go-biosecure/pkg/fingerprint"
	"github.com/jeremyhahn/go-biosecure/pkg/logging"
	"github.com/jeremyhahn/go-biosecure/pkg/platform"
	"github.com/jeremyhahn/go-biosecure/pkg/platform/softauthn"
	"github.com/jeremyhahn/go-biosecure/pkg/ratelimit"
	"github.com/jeremyhahn/go-biosecure/pkg/storage"
	"github.com/jeremyhahn/go-biosecure/pkg/storage/file"
	"github.com/jeremyhahn/go-biosecure/pkg/storage/vault"
)

func (c *Config) fingerprintConfig() *fingerprint.Config {
	fc := &fingerprint.Config{
		RPID:                  c.RelyingParty.ID,
		RPDisplayName:         c.RelyingParty.DisplayName,
		RPOrigins:             append([]string(nil), c.RelyingParty.Origins...),
		Timeout:               c.RelyingParty.Timeout,
		UserVerification:      c.RelyingParty.UserVerification,
		AttestationPreference: c.RelyingParty.Attestation,
		Strict:                c.Fingerprint.Strict,
		Verify:                c.Fingerprint.Verify,
	}
	fc.SetDefaults()
	return fc
}

// FingerprintConfig returns the orchestrator configuration.
func (c *Config) FingerprintConfig() *fingerprint.Config {
	return c.fingerprintConfig()
}

// Logger builds the configured logger.
func (c *Config) Logger() *logging.Logger {
	return logging.New(logging.Config{
		Level:  c.Logging.Level,
		Format: logging.Format(c.Logging.Format),
	})
}

// OpenStorage opens the configured backend.
func (c *Config) OpenStorage() (storage.Backend, error) {
	switch c.Storage.Backend {
	case StorageMemory, "":
		return storage.NewMemory(), nil
	case StorageFile:
		return file.New(c.Storage.Path)
	case StorageVault:
		vc := c.Storage.Vault
		return vault.New(&vc)
	default:
		return nil, fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}
}

// CredentialStore wraps backend with the configured slot.
func (c *Config) CredentialStore(backend storage.Backend, logger *logging.Logger) *credstore.Store {
	return credstore.New(backend, credstore.WithSlot(c.Fingerprint.Slot), credstore.WithLogger(logger))
}

// SoftAuthnConfig returns the software authenticator settings.
func (c *Config) SoftAuthnConfig() softauthn.Config {
	return softauthn.Config{
		Origin:             c.Authenticator.Origin,
		RPID:               c.RelyingParty.ID,
		Passphrase:         c.Authenticator.Passphrase,
		Disabled:           c.Authenticator.Disabled,
		PolicyDenied:       c.Authenticator.PolicyDenied,
		Embedded:           c.Authenticator.Embedded,
		ProbeFailure:       c.Authenticator.ProbeFailure,
		NoSensor:           c.Authenticator.NoSensor,
		RefuseVerification: c.Authenticator.RefuseVerification,
	}
}

// Provider returns the configured platform provider. With provider "none"
// it returns nil, which the orchestrator treats as an absent capability.
func (c *Config) Provider(backend storage.Backend) (platform.Provider, error) {
	switch c.Authenticator.Provider {
	case ProviderNone:
		return nil, nil
	case ProviderSoftware, "":
		return softauthn.New(c.SoftAuthnConfig(), backend)
	default:
		return nil, fmt.Errorf("invalid authenticator provider: %s", c.Authenticator.Provider)
	}
}

// RateLimiter builds the HTTP rate limiter.
func (c *Config) RateLimiter() *ratelimit.Limiter {
	rl := c.Server.RateLimit
	return ratelimit.New(&rl)
}

// TokenIssuer builds the session token issuer. Without a key file an
// ephemeral key is generated, so tokens do not survive a restart.
func (c *Config) TokenIssuer() (*fingerprint.TokenIssuer, error) {
	tc := &fingerprint.TokenConfig{
		Issuer:    c.Server.JWT.Issuer,
		Audience:  c.Server.JWT.Audience,
		ExpiresIn: c.Server.JWT.ExpiresIn,
		KeyID:     c.Server.JWT.KeyID,
	}
	if c.Server.JWT.KeyFile != "" {
		key, err := loadECKey(c.Server.JWT.KeyFile, c.Server.JWT.KeyPassphrase)
		if err != nil {
			return nil, err
		}
		tc.PrivateKey = key
	}
	return fingerprint.NewTokenIssuer(tc)
}

func loadECKey(path, passphrase string) (*ecdsa.PrivateKey, error) {
	// #nosec G304 - Key file path from trusted config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT key file: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("JWT key file %s: no PEM block", path)
	}
	var pass [][]byte
	if passphrase != "" {
		pass = append(pass, []byte(passphrase))
	}
	key, err := pkcs8.ParsePKCS8PrivateKeyECDSA(block.Bytes, pass...)
	if err != nil {
		return nil, fmt.Errorf("JWT key file %s: %w", path, err)
	}
	return key, nil
}
