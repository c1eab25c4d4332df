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

// Package fingerprint registers and authenticates users with a platform
// credential (a fingerprint-backed WebAuthn authenticator) and falls back to
// a simulated, storage-only credential when the platform capability is
// absent, restricted or fails.
//
// The package is designed in layers:
//
//  1. Service - the registration and authentication state machines
//  2. credstore.Store - the persisted directory of registered users
//  3. platform.Provider - the native capability (browser or software)
//  4. Verifier - optional relying party checks of native responses
//
// # Usage
//
//	store := credstore.New(storage.NewMemory())
//	auth, _ := softauthn.New(softauthn.Config{Origin: "https://localhost"}, storage.NewMemory())
//
//	svc, err := fingerprint.NewService(fingerprint.ServiceParams{
//	    Config:   fingerprint.DefaultConfig("localhost"),
//	    Provider: auth,
//	    Store:    store,
//	})
//
//	ok, err := svc.Register(ctx, "alice")
//	ok, err = svc.Authenticate(ctx, "alice")
//
// # Fallback
//
// Register returns true for every new, non-empty identifier. Native
// failures are logged and replaced by a simulated credential; simulated
// credentials authenticate by existence alone. Set Config.Strict to
// surface native failures as *NativeError and ErrNativeUnavailable instead.
//
// The HTTP subpackage exposes the service under /api/v1/fingerprint.
package fingerprint
