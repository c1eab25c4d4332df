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

package credstore

import (
	"sort"
	"time"
)

// Method names how a credential was registered.
type Method string

const (
	// MethodNative marks a credential created by a platform authenticator.
	MethodNative Method = "native"

	// MethodSimulated marks a storage-only pseudo-credential.
	MethodSimulated Method = "simulated"
)

// Credential holds the fields common to every record.
type Credential struct {
	// ID is the opaque credential identifier.
	ID string

	// RawID is the binary credential identifier.
	RawID []byte

	// PublicMaterial is the attestation object of a native credential or
	// the synthetic bytes of a simulated one.
	PublicMaterial []byte

	// CreatedAt is the registration time. Zero for records written by
	// clients that did not track it.
	CreatedAt time.Time
}

// Record is a registered credential. It is either a *NativeRecord or a
// *SimulatedRecord; no other implementations exist.
type Record interface {
	// Common returns the fields shared by both variants.
	Common() Credential

	// Method returns MethodNative or MethodSimulated.
	Method() Method

	// IsSimulated reports whether the record is a pseudo-credential.
	IsSimulated() bool

	record()
}

// NativeRecord is a credential created by the platform authenticator.
type NativeRecord struct {
	Credential

	// Transports lists the authenticator transports reported at creation.
	Transports []string
}

// SimulatedRecord is a pseudo-credential created without an authenticator.
// Authentication against it only checks that it exists.
type SimulatedRecord struct {
	Credential
}

func (r *NativeRecord) Common() Credential { return r.Credential }
func (r *NativeRecord) Method() Method     { return MethodNative }
func (r *NativeRecord) IsSimulated() bool  { return false }
func (r *NativeRecord) record()            {}

func (r *SimulatedRecord) Common() Credential { return r.Credential }
func (r *SimulatedRecord) Method() Method     { return MethodSimulated }
func (r *SimulatedRecord) IsSimulated() bool  { return true }
func (r *SimulatedRecord) record()            {}

// Directory maps a user identifier to its single registered credential.
type Directory map[string]Record

// Users returns the identifiers in the directory in sorted order.
func (d Directory) Users() []string {
	users := make([]string, 0, len(d))
	for u := range d {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}
