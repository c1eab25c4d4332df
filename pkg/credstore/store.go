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

// Package credstore persists the directory of registered fingerprint
// credentials as one JSON document in a named storage slot.
//
// Reads never fail: an absent, unreadable or malformed slot is treated as an
// empty directory. A single record that cannot be decoded is hidden from
// Load but kept in the slot by later writes. Writes otherwise replace the
// whole document. Load and Save are not
// serialized against each other, so two concurrent registrations can race
// and the last Save wins.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-biosecure/pkg/logging"
	"github.com/jeremyhahn/go-biosecure/pkg/storage"
)

// DefaultSlot is the slot name used by the browser client.
const DefaultSlot = "registeredUsers"

// ErrNotFound is returned by Delete for an unknown user.
var ErrNotFound = errors.New("credstore: user not registered")

// Store reads and writes the credential directory.
type Store struct {
	backend storage.Backend
	key     string
	logger  *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithSlot overrides the slot name.
func WithSlot(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.key = storage.SlotPath(name)
		}
	}
}

// WithLogger sets the logger used to report unreadable directories.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns a Store over backend.
func New(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     storage.SlotPath(DefaultSlot),
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the backend key of the slot.
func (s *Store) Key() string {
	return s.key
}

// Load returns the persisted directory, or an empty one when the slot is
// absent or cannot be decoded.
func (s *Store) Load(ctx context.Context) Directory {
	if ctx.Err() != nil {
		return Directory{}
	}
	data, err := s.backend.Get(s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("credential directory unreadable, treating as empty",
				"slot", s.key, "error", err)
		}
		return Directory{}
	}
	dir, skipped, err := Unmarshal(data)
	if err != nil {
		s.logger.Warn("credential directory malformed, treating as empty",
			"slot", s.key, "error", err)
		return Directory{}
	}
	for user, err := range skipped {
		s.logger.Warn("skipping undecodable credential record",
			"slot", s.key, "user", user, "error", err)
	}
	return dir
}

// Save replaces the persisted directory with dir.
func (s *Store) Save(ctx context.Context, dir Directory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := marshalRetaining(dir, s.undecodable())
	if err != nil {
		return fmt.Errorf("credstore: encode directory: %w", err)
	}
	if err := s.backend.Put(s.key, data, storage.DefaultOptions()); err != nil {
		return fmt.Errorf("credstore: write directory: %w", err)
	}
	return nil
}

// undecodable returns the raw entries of the current slot that Load skips.
func (s *Store) undecodable() map[string]json.RawMessage {
	data, err := s.backend.Get(s.key)
	if err != nil {
		return nil
	}
	return undecodable(data)
}

// Get returns the record registered for user.
func (s *Store) Get(ctx context.Context, user string) (Record, bool) {
	r, ok := s.Load(ctx)[user]
	return r, ok
}

// List returns the registered identifiers in sorted order.
func (s *Store) List(ctx context.Context) []string {
	return s.Load(ctx).Users()
}

// Delete removes the record of user and saves the directory.
func (s *Store) Delete(ctx context.Context, user string) error {
	dir := s.Load(ctx)
	if _, ok := dir[user]; !ok {
		return ErrNotFound
	}
	delete(dir, user)
	return s.Save(ctx, dir)
}
