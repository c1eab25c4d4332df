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

// Package vault stores backend entries in a HashiCorp Vault KV (version 1)
// secrets engine. Each key becomes a secret at <mount>/<prefix>/<key> holding
// a single base64 "value" field.
package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"

	"github.com/jeremyhahn/go-biosecure/pkg/storage"
)

const valueField = "value"

// LogicalClient is the subset of *vault.Logical used by Store. Tests
// substitute an in-memory implementation.
type LogicalClient interface {
	ReadWithContext(ctx context.Context, path string) (*vault.Secret, error)
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*vault.Secret, error)
	DeleteWithContext(ctx context.Context, path string) (*vault.Secret, error)
	ListWithContext(ctx context.Context, path string) (*vault.Secret, error)
}

// Config holds the Vault connection settings.
type Config struct {
	// Address is the Vault server address, e.g. http://127.0.0.1:8200.
	Address string `yaml:"address"`

	// Token authenticates requests.
	Token string `yaml:"token"`

	// Namespace is the Vault Enterprise namespace, optional.
	Namespace string `yaml:"namespace"`

	// MountPath is the KV engine mount (default "secret").
	MountPath string `yaml:"mount_path"`

	// Prefix scopes all keys below the mount (default "biosecure").
	Prefix string `yaml:"prefix"`

	// TLSSkipVerify disables certificate verification. Development only.
	TLSSkipVerify bool `yaml:"tls_skip_verify"`

	// Timeout bounds each request (default 10s).
	Timeout time.Duration `yaml:"timeout"`
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("vault address is required")
	}
	if c.Token == "" {
		return fmt.Errorf("vault token is required")
	}
	c.setDefaults()
	return nil
}

func (c *Config) setDefaults() {
	if c.MountPath == "" {
		c.MountPath = "secret"
	}
	if c.Prefix == "" {
		c.Prefix = "biosecure"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Store implements storage.Backend on top of Vault.
type Store struct {
	client LogicalClient
	base   string
	cfg    Config
}

// New connects to Vault with cfg.
func New(cfg *Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("vault storage: %w", err)
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address
	vaultConfig.Timeout = cfg.Timeout
	if cfg.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("vault storage: configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: vault: %v", storage.ErrUnavailable, err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	return NewWithClient(cfg, client.Logical())
}

// NewWithClient builds a Store over an existing logical client.
func NewWithClient(cfg *Config, client LogicalClient) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("vault storage: client is required")
	}
	cfg.setDefaults()
	base := strings.Trim(cfg.MountPath, "/") + "/" + strings.Trim(cfg.Prefix, "/") + "/"
	return &Store{client: client, base: base, cfg: *cfg}, nil
}

// Get reads the secret at key and decodes its value.
func (s *Store) Get(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	ctx, cancel := s.context()
	defer cancel()

	secret, err := s.client.ReadWithContext(ctx, s.base+key)
	if err != nil {
		return nil, fmt.Errorf("vault storage: read %q: %w", key, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, storage.ErrNotFound
	}
	encoded, ok := secret.Data[valueField].(string)
	if !ok {
		return nil, fmt.Errorf("%w: %q has no %s field", storage.ErrInvalidData, key, valueField)
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", storage.ErrInvalidData, key, err)
	}
	return value, nil
}

// Put writes value as the secret at key. Options.Metadata entries are
// stored alongside the value.
func (s *Store) Put(key string, value []byte, opts *storage.Options) error {
	if err := validateKey(key); err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()

	data := map[string]interface{}{
		valueField: base64.StdEncoding.EncodeToString(value),
	}
	if opts != nil {
		for k, v := range opts.Metadata {
			if k != valueField {
				data[k] = v
			}
		}
	}
	if _, err := s.client.WriteWithContext(ctx, s.base+key, data); err != nil {
		return fmt.Errorf("vault storage: write %q: %w", key, err)
	}
	return nil
}

// Delete removes the secret at key.
func (s *Store) Delete(key string) error {
	exists, err := s.Exists(key)
	if err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}
	ctx, cancel := s.context()
	defer cancel()

	if _, err := s.client.DeleteWithContext(ctx, s.base+key); err != nil {
		return fmt.Errorf("vault storage: delete %q: %w", key, err)
	}
	return nil
}

// List walks the KV hierarchy below the store prefix. Vault lists one level
// at a time and marks folders with a trailing "/".
func (s *Store) List(prefix string) ([]string, error) {
	ctx, cancel := s.context()
	defer cancel()

	var keys []string
	if err := s.walk(ctx, "", &keys); err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) walk(ctx context.Context, dir string, keys *[]string) error {
	secret, err := s.client.ListWithContext(ctx, s.base+dir)
	if err != nil {
		return fmt.Errorf("vault storage: list %q: %w", dir, err)
	}
	if secret == nil || secret.Data == nil {
		return nil
	}
	entries, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil
	}
	for _, entry := range entries {
		name, ok := entry.(string)
		if !ok {
			continue
		}
		if strings.HasSuffix(name, "/") {
			if err := s.walk(ctx, dir+name, keys); err != nil {
				return err
			}
			continue
		}
		*keys = append(*keys, dir+name)
	}
	return nil
}

// Exists reports whether a secret is stored at key.
func (s *Store) Exists(key string) (bool, error) {
	_, err := s.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Close is a no-op; the HTTP client holds no long-lived resources.
func (s *Store) Close() error {
	return nil
}

func (s *Store) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.Timeout)
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return fmt.Errorf("%w: %q", storage.ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return fmt.Errorf("%w: %q", storage.ErrInvalidKey, key)
		}
	}
	return nil
}
