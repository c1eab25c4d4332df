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

package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-biosecure/pkg/storage"
)

func setupTestDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

func TestNew(t *testing.T) {
	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(setupTestDir(t), "nested", "store")

		store, err := New(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, store.Root())

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("empty root", func(t *testing.T) {
		_, err := New("")
		assert.Error(t, err)
	})
}

func TestFileStorage_PutGet(t *testing.T) {
	store, err := New(setupTestDir(t))
	require.NoError(t, err)

	key := storage.SlotPath("registeredUsers")
	require.NoError(t, store.Put(key, []byte(`{"alice":{}}`), nil))

	got, err := store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, `{"alice":{}}`, string(got))

	require.NoError(t, store.Put(key, []byte(`{}`), nil))
	got, err = store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(got))
}

func TestFileStorage_Permissions(t *testing.T) {
	dir := setupTestDir(t)
	store, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(storage.AuthenticatorKeyPath("cred"), []byte("k"), nil))
	info, err := os.Stat(filepath.Join(dir, "authenticator", "keys", "cred.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, store.Put("public/info", []byte("x"), &storage.Options{Permissions: 0644}))
	info, err = os.Stat(filepath.Join(dir, "public", "info"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestFileStorage_NotFound(t *testing.T) {
	store, err := New(setupTestDir(t))
	require.NoError(t, err)

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.Delete("missing"), storage.ErrNotFound)

	exists, err := store.Exists("missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileStorage_InvalidKeys(t *testing.T) {
	store, err := New(setupTestDir(t))
	require.NoError(t, err)

	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"absolute", "/etc/passwd"},
		{"traversal prefix", "../escape"},
		{"traversal middle", "slots/../../escape"},
		{"null byte", "slots/a\x00b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, store.Put(tt.key, []byte("x"), nil), storage.ErrInvalidKey)
			_, err := store.Get(tt.key)
			assert.ErrorIs(t, err, storage.ErrInvalidKey)
		})
	}
}

func TestFileStorage_ListAndDelete(t *testing.T) {
	store, err := New(setupTestDir(t))
	require.NoError(t, err)

	require.NoError(t, store.Put(storage.AuthenticatorKeyPath("b"), []byte("b"), nil))
	require.NoError(t, store.Put(storage.AuthenticatorKeyPath("a"), []byte("a"), nil))
	require.NoError(t, store.Put(storage.SlotPath("registeredUsers"), []byte("{}"), nil))

	all, err := store.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"authenticator/keys/a.key",
		"authenticator/keys/b.key",
		"slots/registeredUsers",
	}, all)

	ids, err := storage.ListAuthenticatorKeys(store)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, store.Delete(storage.AuthenticatorKeyPath("a")))
	ids, err = storage.ListAuthenticatorKeys(store)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestFileStorage_SurvivesReopen(t *testing.T) {
	dir := setupTestDir(t)
	first, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, first.Put(storage.SlotPath("registeredUsers"), []byte(`{"bob":{}}`), nil))
	require.NoError(t, first.Close())

	_, err = first.Get(storage.SlotPath("registeredUsers"))
	assert.ErrorIs(t, err, storage.ErrClosed)

	second, err := New(dir)
	require.NoError(t, err)
	got, err := second.Get(storage.SlotPath("registeredUsers"))
	require.NoError(t, err)
	assert.Equal(t, `{"bob":{}}`, string(got))
}

func TestFileStorage_ConcurrentPut(t *testing.T) {
	store, err := New(setupTestDir(t))
	require.NoError(t, err)

	key := storage.SlotPath("registeredUsers")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Put(key, []byte(`{"x":{}}`), nil))
		}()
	}
	wg.Wait()

	got, err := store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, `{"x":{}}`, string(got))

	keys, err := store.List("slots/")
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)
}
