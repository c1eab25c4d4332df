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

// Package storage defines the key-value abstraction that holds the
// registered-credential directory and the software authenticator's key
// material. Implementations live in sub-packages (file, vault, webstorage);
// an in-memory backend is provided here for tests and ephemeral use.
package storage

import (
	"io/fs"
)

// Backend is a flat key-value store. Keys may contain "/" to group related
// entries. All implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(key string, value []byte, opts *Options) error

	// Delete removes key. Returns ErrNotFound if it does not exist.
	Delete(key string) error

	// List returns every key that begins with prefix, in sorted order.
	// An empty prefix lists all keys.
	List(prefix string) ([]string, error)

	// Exists reports whether key is present.
	Exists(key string) (bool, error)

	// Close releases backend resources. Further calls return ErrClosed
	// where the backend can detect it.
	Close() error
}

// Options carries per-write hints. Backends ignore fields they cannot honor.
type Options struct {
	// Permissions is the file mode used by file-backed stores.
	Permissions fs.FileMode

	// Metadata is attached to the entry where the backend supports it.
	Metadata map[string]string
}

// DefaultOptions returns owner-only permissions and empty metadata.
func DefaultOptions() *Options {
	return &Options{
		Permissions: 0600,
		Metadata:    make(map[string]string),
	}
}
