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

package storage

import (
	"strings"
)

// Key layout shared by every component that writes to a Backend.
const (
	// SlotPrefix groups named slots such as the credential directory.
	SlotPrefix = "slots/"

	// AuthenticatorKeyPrefix groups software authenticator private keys.
	AuthenticatorKeyPrefix = "authenticator/keys/"

	authenticatorKeySuffix = ".key"
)

// SlotPath returns the key of a named slot: slots/{name}.
func SlotPath(name string) string {
	return SlotPrefix + name
}

// AuthenticatorKeyPath returns the key holding a credential's private key:
// authenticator/keys/{id}.key.
func AuthenticatorKeyPath(id string) string {
	return AuthenticatorKeyPrefix + id + authenticatorKeySuffix
}

// ListAuthenticatorKeys returns the credential IDs that have a stored key.
func ListAuthenticatorKeys(backend Backend) ([]string, error) {
	keys, err := backend.List(AuthenticatorKeyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id := strings.TrimSuffix(strings.TrimPrefix(k, AuthenticatorKeyPrefix), authenticatorKeySuffix)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Prefixed scopes every key of an underlying backend under a fixed prefix.
// Listing strips the prefix again so callers see their own key space.
type Prefixed struct {
	Backend
	prefix string
}

// WithPrefix wraps backend so all keys are stored under prefix. A trailing
// "/" is added when missing.
func WithPrefix(backend Backend, prefix string) *Prefixed {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Prefixed{Backend: backend, prefix: prefix}
}

func (p *Prefixed) Get(key string) ([]byte, error) {
	return p.Backend.Get(p.prefix + key)
}

func (p *Prefixed) Put(key string, value []byte, opts *Options) error {
	return p.Backend.Put(p.prefix+key, value, opts)
}

func (p *Prefixed) Delete(key string) error {
	return p.Backend.Delete(p.prefix + key)
}

func (p *Prefixed) Exists(key string) (bool, error) {
	return p.Backend.Exists(p.prefix + key)
}

func (p *Prefixed) List(prefix string) ([]string, error) {
	keys, err := p.Backend.List(p.prefix + prefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, p.prefix)
	}
	return keys, nil
}
