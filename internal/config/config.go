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
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-biosecure/pkg/credstore"
	"github.com/jeremyhahn/go-biosecure/pkg/ratelimit"
	"github.com/jeremyhahn/go-biosecure/pkg/storage/vault"
)

// Storage backend names
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageVault  = "vault"
)

// Authenticator provider names
const (
	ProviderSoftware = "software"
	ProviderNone     = "none"
)

// Config represents the complete biosecure configuration
type Config struct {
	RelyingParty  RelyingPartyConfig  `yaml:"relying_party" json:"relying_party"`
	Fingerprint   FingerprintConfig   `yaml:"fingerprint" json:"fingerprint"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Authenticator AuthenticatorConfig `yaml:"authenticator" json:"authenticator"`
	Server        ServerConfig        `yaml:"server" json:"server"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
}

// RelyingPartyConfig identifies the relying party in ceremonies
type RelyingPartyConfig struct {
	ID               string        `yaml:"id" json:"id"`
	DisplayName      string        `yaml:"display_name" json:"display_name"`
	Origins          []string      `yaml:"origins" json:"origins"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	UserVerification string        `yaml:"user_verification" json:"user_verification"`
	Attestation      string        `yaml:"attestation" json:"attestation"`
}

// FingerprintConfig controls the orchestrator
type FingerprintConfig struct {
	Strict bool   `yaml:"strict" json:"strict"`
	Verify bool   `yaml:"verify" json:"verify"`
	Slot   string `yaml:"slot" json:"slot"`
}

// StorageConfig selects where credentials and authenticator keys live
type StorageConfig struct {
	Backend string       `yaml:"backend" json:"backend"` // memory, file, vault
	Path    string       `yaml:"path" json:"path"`
	Vault   vault.Config `yaml:"vault" json:"vault"`
}

// AuthenticatorConfig configures the software platform authenticator
type AuthenticatorConfig struct {
	Provider   string `yaml:"provider" json:"provider"` // software, none
	Origin     string `yaml:"origin" json:"origin"`
	Passphrase string `yaml:"passphrase" json:"-"`

	// Environment emulation
	Disabled           bool `yaml:"disabled" json:"disabled"`
	PolicyDenied       bool `yaml:"policy_denied" json:"policy_denied"`
	Embedded           bool `yaml:"embedded" json:"embedded"`
	ProbeFailure       bool `yaml:"probe_failure" json:"probe_failure"`
	NoSensor           bool `yaml:"no_sensor" json:"no_sensor"`
	RefuseVerification bool `yaml:"refuse_verification" json:"refuse_verification"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string           `yaml:"address" json:"address"`
	ReadTimeout  time.Duration    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration    `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration    `yaml:"idle_timeout" json:"idle_timeout"`
	RateLimit    ratelimit.Config `yaml:"ratelimit" json:"ratelimit"`
	JWT          JWTConfig        `yaml:"jwt" json:"jwt"`
	TLS          TLSConfig        `yaml:"tls" json:"tls"`
}

// JWTConfig controls session tokens issued after authentication
type JWTConfig struct {
	Issuer        string        `yaml:"issuer" json:"issuer"`
	Audience      []string      `yaml:"audience" json:"audience"`
	ExpiresIn     time.Duration `yaml:"expires_in" json:"expires_in"`
	KeyFile       string        `yaml:"key_file" json:"key_file"` // PEM PKCS#8 P-256 key
	KeyPassphrase string        `yaml:"key_passphrase" json:"-"`
	KeyID         string        `yaml:"key_id" json:"key_id"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig controls the metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// Default returns a configuration for a local relying party with an
// in-memory store and the software authenticator.
func Default() *Config {
	return &Config{
		RelyingParty: RelyingPartyConfig{
			ID:               "localhost",
			DisplayName:      "BioSecure Access",
			Timeout:          60 * time.Second,
			UserVerification: "required",
			Attestation:      "direct",
		},
		Fingerprint: FingerprintConfig{
			Verify: true,
			Slot:   credstore.DefaultSlot,
		},
		Storage: StorageConfig{
			Backend: StorageMemory,
		},
		Authenticator: AuthenticatorConfig{
			Provider: ProviderSoftware,
		},
		Server: ServerConfig{
			Address:      ":8443",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 75 * time.Second,
			IdleTimeout:  60 * time.Second,
			RateLimit: ratelimit.Config{
				Enabled:           true,
				RequestsPerMinute: 30,
				Burst:             10,
			},
			JWT: JWTConfig{
				Issuer:    "go-biosecure",
				ExpiresIn: time.Hour,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a YAML file over the defaults, applies environment variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	ApplyEnvOverrides(cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies BIOSECURE_* environment variables to cfg.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BIOSECURE_RP_ID"); v != "" {
		cfg.RelyingParty.ID = v
	}
	if v := os.Getenv("BIOSECURE_RP_ORIGINS"); v != "" {
		cfg.RelyingParty.Origins = splitList(v)
	}
	if v := os.Getenv("BIOSECURE_STRICT"); v != "" {
		envBool("BIOSECURE_STRICT", v, &cfg.Fingerprint.Strict)
	}
	if v := os.Getenv("BIOSECURE_VERIFY"); v != "" {
		envBool("BIOSECURE_VERIFY", v, &cfg.Fingerprint.Verify)
	}

	if v := os.Getenv("BIOSECURE_STORAGE"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("BIOSECURE_DATA_DIR"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("VAULT_ADDR"); v != "" {
		cfg.Storage.Vault.Address = v
	}
	if v := os.Getenv("VAULT_TOKEN"); v != "" {
		cfg.Storage.Vault.Token = v
	}
	if v := os.Getenv("VAULT_NAMESPACE"); v != "" {
		cfg.Storage.Vault.Namespace = v
	}

	if v := os.Getenv("BIOSECURE_AUTHENTICATOR_PASSPHRASE"); v != "" {
		cfg.Authenticator.Passphrase = v
	}

	if v := os.Getenv("BIOSECURE_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("BIOSECURE_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			log.Printf("Warning: invalid BIOSECURE_RATE_LIMIT value %q, using %d",
				v, cfg.Server.RateLimit.RequestsPerMinute)
		} else {
			cfg.Server.RateLimit.RequestsPerMinute = n
			cfg.Server.RateLimit.Enabled = n > 0
		}
	}
	if v := os.Getenv("BIOSECURE_JWT_KEY_FILE"); v != "" {
		cfg.Server.JWT.KeyFile = v
	}

	if v := os.Getenv("BIOSECURE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BIOSECURE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func envBool(name, value string, dst *bool) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid %s value %q, using %t", name, value, *dst)
		return
	}
	*dst = b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SetDefaults fills values derived from other settings.
func (c *Config) SetDefaults() {
	if len(c.RelyingParty.Origins) == 0 && c.RelyingParty.ID != "" {
		c.RelyingParty.Origins = []string{"https://" + c.RelyingParty.ID}
	}
	if c.Authenticator.Origin == "" && len(c.RelyingParty.Origins) > 0 {
		c.Authenticator.Origin = c.RelyingParty.Origins[0]
	}
	if c.Fingerprint.Slot == "" {
		c.Fingerprint.Slot = credstore.DefaultSlot
	}
	if len(c.Server.JWT.Audience) == 0 {
		c.Server.JWT.Audience = []string{c.RelyingParty.ID}
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.RelyingParty.ID == "" {
		return fmt.Errorf("relying_party.id is required")
	}
	if c.RelyingParty.Timeout < 0 {
		return fmt.Errorf("relying_party.timeout cannot be negative")
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the file backend")
		}
	case StorageVault:
		if c.Storage.Vault.Address == "" {
			return fmt.Errorf("storage.vault.address is required for the vault backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory, file, or vault)", c.Storage.Backend)
	}

	switch c.Authenticator.Provider {
	case ProviderSoftware, ProviderNone:
	default:
		return fmt.Errorf("invalid authenticator provider: %s (must be software or none)", c.Authenticator.Provider)
	}

	if c.Server.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("server.ratelimit.requests_per_minute cannot be negative")
	}
	if c.Server.JWT.ExpiresIn < 0 {
		return fmt.Errorf("server.jwt.expires_in cannot be negative")
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls cert_file and key_file are required when TLS is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if err := c.fingerprintConfig().Validate(); err != nil {
		return err
	}
	return nil
}
