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

// Package platform defines the boundary between the fingerprint service and
// the platform credential capability (WebAuthn in a browser, or a software
// authenticator on a host).
//
// Implementations:
//   - browser: navigator.credentials through syscall/js (js/wasm only)
//   - softauthn: a software platform authenticator backed by storage.Backend
//   - platformtest: a programmable double for tests
package platform

import (
	"context"

	"github.com/go-webauthn/webauthn/protocol"
)

// FeatureCreate is the permissions-policy feature that gates credential
// creation.
const FeatureCreate = "publickey-credentials-create"

// PermissionState is the answer of a permissions-policy probe.
type PermissionState int

const (
	// PermissionUnknown means the platform exposes no policy interface.
	PermissionUnknown PermissionState = iota

	// PermissionGranted means the feature is allowed in this context.
	PermissionGranted

	// PermissionDenied means the feature is disabled by policy.
	PermissionDenied
)

func (s PermissionState) String() string {
	switch s {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Provider is the platform credential capability. Probe methods report
// environment facts; an error from a probe means the environment refused
// to answer.
type Provider interface {
	// Supported reports whether the credential capability exists at all.
	Supported() bool

	// Permission reports the permissions-policy state of feature.
	Permission(ctx context.Context, feature string) (PermissionState, error)

	// TopLevel reports whether execution happens in a top-level context
	// rather than an embedded frame.
	TopLevel(ctx context.Context) (bool, error)

	// PlatformAuthenticatorAvailable reports whether a user-verifying
	// platform authenticator is present.
	PlatformAuthenticatorAvailable(ctx context.Context) (bool, error)

	// Create runs a credential creation ceremony. Failures are *Error
	// values naming the platform error class.
	Create(ctx context.Context, opts *protocol.PublicKeyCredentialCreationOptions) (*protocol.ParsedCredentialCreationData, error)

	// Get runs an assertion ceremony.
	Get(ctx context.Context, opts *protocol.PublicKeyCredentialRequestOptions) (*protocol.ParsedCredentialAssertionData, error)
}

// UserHandle returns the user handle carried by creation options. The field
// is untyped in the protocol package; byte slices, URLEncodedBase64 and
// strings are accepted.
func UserHandle(opts *protocol.PublicKeyCredentialCreationOptions) []byte {
	if opts == nil {
		return nil
	}
	switch id := opts.User.ID.(type) {
	case protocol.URLEncodedBase64:
		return []byte(id)
	case []byte:
		return id
	case string:
		return []byte(id)
	default:
		return nil
	}
}
