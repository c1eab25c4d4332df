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

//go:build js && wasm

// Package webstorage adapts the browser Web Storage API (localStorage or
// sessionStorage) to storage.Backend.
//
// Named slots are stored under their bare name so the credential directory
// lives in the "registeredUsers" item, where earlier browser builds of the
// application kept it. All other keys carry the "biosecure:" prefix.
package webstorage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"syscall/js"

	"github.com/jeremyhahn/go-biosecure/pkg/storage"
)

const itemPrefix = "biosecure:"

// Store wraps a Storage object obtained from the global scope.
type Store struct {
	mu     sync.Mutex
	area   js.Value
	closed bool
}

// NewLocal returns a Store over window.localStorage.
func NewLocal() (*Store, error) {
	return newStore("localStorage")
}

// NewSession returns a Store over window.sessionStorage.
func NewSession() (*Store, error) {
	return newStore("sessionStorage")
}

func newStore(name string) (store *Store, err error) {
	// Accessing the property throws a SecurityError when storage is
	// disabled for the origin.
	defer func() {
		if r := recover(); r != nil {
			store, err = nil, fmt.Errorf("%w: %s: %v", storage.ErrUnavailable, name, r)
		}
	}()
	area := js.Global().Get(name)
	if area.IsUndefined() || area.IsNull() {
		return nil, fmt.Errorf("%w: %s is not defined", storage.ErrUnavailable, name)
	}
	return &Store{area: area}, nil
}

func itemName(key string) string {
	if strings.HasPrefix(key, storage.SlotPrefix) {
		return strings.TrimPrefix(key, storage.SlotPrefix)
	}
	return itemPrefix + key
}

func keyName(item string) string {
	if strings.HasPrefix(item, itemPrefix) {
		return strings.TrimPrefix(item, itemPrefix)
	}
	return storage.SlotPrefix + item
}

// Get returns the item value as bytes.
func (s *Store) Get(key string) (value []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer recoverJS(&err, "get")

	if s.closed {
		return nil, storage.ErrClosed
	}
	v := s.area.Call("getItem", itemName(key))
	if v.IsNull() || v.IsUndefined() {
		return nil, storage.ErrNotFound
	}
	return []byte(v.String()), nil
}

// Put stores value as a string item. Quota errors are returned.
func (s *Store) Put(key string, value []byte, _ *storage.Options) (err error) {
	if key == "" {
		return storage.ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer recoverJS(&err, "put")

	if s.closed {
		return storage.ErrClosed
	}
	s.area.Call("setItem", itemName(key), string(value))
	return nil
}

// Delete removes the item.
func (s *Store) Delete(key string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer recoverJS(&err, "delete")

	if s.closed {
		return storage.ErrClosed
	}
	name := itemName(key)
	if s.area.Call("getItem", name).IsNull() {
		return storage.ErrNotFound
	}
	s.area.Call("removeItem", name)
	return nil
}

// List enumerates every item in the storage area.
func (s *Store) List(prefix string) (keys []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer recoverJS(&err, "list")

	if s.closed {
		return nil, storage.ErrClosed
	}
	n := s.area.Get("length").Int()
	keys = make([]string, 0, n)
	for i := 0; i < n; i++ {
		item := s.area.Call("key", i)
		if item.IsNull() {
			continue
		}
		key := keyName(item.String())
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists reports whether the item is set.
func (s *Store) Exists(key string) (bool, error) {
	_, err := s.Get(key)
	switch err {
	case nil:
		return true, nil
	case storage.ErrNotFound:
		return false, nil
	default:
		return false, err
	}
}

// Close detaches the store. Items remain in the browser.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func recoverJS(err *error, op string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("webstorage: %s: %v", op, r)
	}
}
