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
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-biosecure/pkg/credstore"
	"github.com/jeremyhahn/go-biosecure/pkg/fingerprint"
	"github.com/jeremyhahn/go-biosecure/pkg/restriction"
)

func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--data-dir", dataDir, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func decode(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &m), out)
	return m
}

func TestRegisterAndAuthenticate(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "-o", "json", "register", "alice")
	require.NoError(t, err)
	m := decode(t, out)
	assert.Equal(t, "register", m["operation"])
	assert.Equal(t, "alice", m["user"])
	assert.Equal(t, string(credstore.MethodNative), m["method"])

	out, err = run(t, dir, "authenticate", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "authenticate alice: ok (native)")

	// Credentials persist across invocations in the data directory.
	_, err = os.Stat(filepath.Join(dir, "slots"))
	assert.NoError(t, err)
}

func TestRegisterTwice(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "register", "bob")
	require.NoError(t, err)

	_, err = run(t, dir, "register", "bob")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fingerprint.ErrAlreadyRegistered))
}

func TestAuthenticateUnknownUser(t *testing.T) {
	_, err := run(t, t.TempDir(), "authenticate", "nobody")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fingerprint.ErrNotRegistered))
}

func TestEmulatedRestrictionFallsBack(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "--emulate", "embedded", "-o", "json", "register", "carol")
	require.NoError(t, err)
	assert.Equal(t, string(credstore.MethodSimulated), decode(t, out)["method"])

	out, err = run(t, dir, "--emulate", "embedded", "authenticate", "carol")
	require.NoError(t, err)
	assert.Contains(t, out, "(simulated)")
}

func TestAuthenticateReportsPathTaken(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "register", "frank")
	require.NoError(t, err)

	out, err := run(t, dir, "--emulate", "embedded", "-o", "json", "authenticate", "frank")
	require.NoError(t, err)
	assert.Equal(t, string(credstore.MethodSimulated), decode(t, out)["method"])

	out, err = run(t, dir, "-o", "table", "show", "frank")
	require.NoError(t, err)
	assert.Contains(t, out, string(credstore.MethodNative))
	assert.NotContains(t, out, string(credstore.MethodSimulated))
}

func TestStrictRefusesFallback(t *testing.T) {
	_, err := run(t, t.TempDir(), "--emulate", "policy_denied", "--strict", "register", "dave")
	require.Error(t, err)
	assert.True(t, fingerprint.IsNativeFailure(err))
}

func TestStatus(t *testing.T) {
	out, err := run(t, t.TempDir(), "-o", "json", "status")
	require.NoError(t, err)
	m := decode(t, out)
	assert.Equal(t, true, m["available"])
	assert.Equal(t, false, m["restricted"])

	out, err = run(t, t.TempDir(), "--emulate", "disabled", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Restricted: true")
	assert.Contains(t, out, restriction.ReasonUnsupported)
}

func TestListShowUnregister(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No users registered")

	_, err = run(t, dir, "register", "erin")
	require.NoError(t, err)
	_, err = run(t, dir, "--emulate", "embedded", "register", "frank")
	require.NoError(t, err)

	out, err = run(t, dir, "-o", "json", "list")
	require.NoError(t, err)
	users := decode(t, out)["users"].([]interface{})
	require.Len(t, users, 2)
	assert.Equal(t, "erin", users[0].(map[string]interface{})["user"])
	assert.Equal(t, "frank", users[1].(map[string]interface{})["user"])

	out, err = run(t, dir, "-o", "table", "show", "frank")
	require.NoError(t, err)
	assert.Contains(t, out, "simulated")

	out, err = run(t, dir, "unregister", "erin")
	require.NoError(t, err)
	assert.Contains(t, out, "User erin unregistered")

	_, err = run(t, dir, "authenticate", "erin")
	assert.True(t, errors.Is(err, fingerprint.ErrNotRegistered))
}

func TestInvalidFlags(t *testing.T) {
	_, err := run(t, t.TempDir(), "--emulate", "bogus", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown emulation")

	_, err = run(t, t.TempDir(), "--storage", "floppy", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	_, err = run(t, t.TempDir(), "register")
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "biosecure.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
relying_party:
  id: example.com
fingerprint:
  strict: true
storage:
  backend: memory
`), 0600))

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "-o", "json", "status"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, true, decode(t, out.String())["strict"])
}

func TestVersion(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "-o", "json"})
	require.NoError(t, cmd.Execute())
	m := decode(t, out.String())
	assert.Equal(t, Version, m["version"])
	assert.NotEmpty(t, m["go_version"])
}

func TestPrinterText(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter("text", &buf)

	require.NoError(t, p.PrintUsers([]UserRow{{User: "a", Method: credstore.MethodNative}}))
	assert.Contains(t, buf.String(), "  - a (native)")

	buf.Reset()
	require.NoError(t, p.PrintError(errors.New("boom")))
	assert.Equal(t, "Error: boom\n", buf.String())

	assert.Error(t, NewPrinter("xml", &buf).PrintSuccess("x"))
}
