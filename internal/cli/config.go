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

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-biosecure/internal/config"
	"github.com/jeremyhahn/go-biosecure/pkg/fingerprint"
	"github.com/jeremyhahn/go-biosecure/pkg/logging"
	"github.com/jeremyhahn/go-biosecure/pkg/platform"
	"github.com/jeremyhahn/go-biosecure/pkg/storage"
)

// Flag names, also the viper keys. Each is readable from the environment
// as BIOSECURE_<NAME> with dashes replaced by underscores.
const (
	flagConfig   = "config"
	flagOutput   = "output"
	flagStorage  = "storage"
	flagDataDir  = "data-dir"
	flagRPID     = "rp-id"
	flagStrict   = "strict"
	flagNoVerify = "no-verify"
	flagLogLevel = "log-level"
	flagProvider = "provider"
	flagEmulate  = "emulate"
	flagAddress  = "address"
)

// Emulated environment conditions accepted by --emulate.
var emulations = map[string]func(*config.AuthenticatorConfig){
	"disabled":            func(a *config.AuthenticatorConfig) { a.Disabled = true },
	"policy_denied":       func(a *config.AuthenticatorConfig) { a.PolicyDenied = true },
	"embedded":            func(a *config.AuthenticatorConfig) { a.Embedded = true },
	"probe_failure":       func(a *config.AuthenticatorConfig) { a.ProbeFailure = true },
	"no_sensor":           func(a *config.AuthenticatorConfig) { a.NoSensor = true },
	"refuse_verification": func(a *config.AuthenticatorConfig) { a.RefuseVerification = true },
}

// defaultDataDir is where the CLI keeps credentials between invocations.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".biosecure"
	}
	return filepath.Join(home, ".biosecure")
}

// loadConfig resolves the configuration from the config file, the
// environment and flags, in increasing precedence.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	var cfg *config.Config
	if path := v.GetString(flagConfig); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
		cfg.Storage.Backend = config.StorageFile
		cfg.Storage.Path = defaultDataDir()
		config.ApplyEnvOverrides(cfg)
	}

	if v.IsSet(flagDataDir) {
		cfg.Storage.Path = v.GetString(flagDataDir)
		if !v.IsSet(flagStorage) && cfg.Storage.Backend == config.StorageMemory {
			cfg.Storage.Backend = config.StorageFile
		}
	}
	if v.IsSet(flagStorage) {
		cfg.Storage.Backend = v.GetString(flagStorage)
	}
	if v.IsSet(flagRPID) {
		cfg.RelyingParty.ID = v.GetString(flagRPID)
		cfg.RelyingParty.Origins = nil
		cfg.Authenticator.Origin = ""
	}
	if v.IsSet(flagStrict) {
		cfg.Fingerprint.Strict = v.GetBool(flagStrict)
	}
	if v.GetBool(flagNoVerify) {
		cfg.Fingerprint.Verify = false
	}
	if v.IsSet(flagLogLevel) {
		cfg.Logging.Level = v.GetString(flagLogLevel)
	}
	if v.IsSet(flagProvider) {
		cfg.Authenticator.Provider = v.GetString(flagProvider)
	}
	if v.IsSet(flagAddress) {
		cfg.Server.Address = v.GetString(flagAddress)
	}
	for _, name := range v.GetStringSlice(flagEmulate) {
		apply, ok := emulations[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown emulation: %s", name)
		}
		apply(&cfg.Authenticator)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// stack holds the components built from a configuration.
type stack struct {
	config   *config.Config
	backend  storage.Backend
	provider platform.Provider
	service  *fingerprint.Service
	logger   *logging.Logger
}

func newStack(cfg *config.Config, logger *logging.Logger) (*stack, error) {
	backend, err := cfg.OpenStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	provider, err := cfg.Provider(backend)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}
	svc, err := fingerprint.NewService(fingerprint.ServiceParams{
		Config:   cfg.FingerprintConfig(),
		Provider: provider,
		Store:    cfg.CredentialStore(backend, logger),
		Logger:   logger,
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return &stack{
		config:   cfg,
		backend:  backend,
		provider: provider,
		service:  svc,
		logger:   logger,
	}, nil
}

func (r *stack) Close() error {
	return r.backend.Close()
}
