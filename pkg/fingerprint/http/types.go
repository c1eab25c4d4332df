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

package http

import "github.com/jeremyhahn/go-biosecure/pkg/restriction"

// UserRequest is the request body for registration and authentication.
type UserRequest struct {
	// User is the identifier to register or authenticate (required).
	User string `json:"user"`
}

// RegisterResponse is the response after registration.
type RegisterResponse struct {
	// Registered is always true on success.
	Registered bool `json:"registered"`

	// Method is "native" or "simulated".
	Method string `json:"method"`
}

// AuthenticateResponse is the response after authentication.
type AuthenticateResponse struct {
	// Authenticated is always true on success.
	Authenticated bool `json:"authenticated"`

	// Method is "native" when a platform ceremony verified the user and
	// "simulated" when the user passed on record existence.
	Method string `json:"method"`

	// Token is a signed session token. Empty when no issuer is configured.
	Token string `json:"token,omitempty"`
}

// StatusResponse reports the restriction detector answers.
type StatusResponse struct {
	restriction.Status
	Strict bool `json:"strict"`
}

// UserResponse describes one registered credential.
type UserResponse struct {
	User         string   `json:"user"`
	Method       string   `json:"method"`
	CredentialID string   `json:"credential_id"`
	Transports   []string `json:"transports,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
}

// ListUsersResponse lists registered identifiers.
type ListUsersResponse struct {
	Users []string `json:"users"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message,omitempty"`
}

// Error codes
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeAlreadyRegistered  = "already_registered"
	ErrorCodeNotRegistered      = "not_registered"
	ErrorCodeNativeUnavailable  = "native_unavailable"
	ErrorCodeSimulated          = "simulated_credential"
	ErrorCodeVerificationFailed = "verification_failed"
	ErrorCodeInternalError      = "internal_error"
)
