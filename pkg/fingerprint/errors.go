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

package fingerprint

import (
	"errors"
	"fmt"
)

// Sentinel errors for fingerprint operations.
var (
	// ErrInvalidInput is returned for an empty user identifier.
	ErrInvalidInput = errors.New("user identifier is required")

	// ErrAlreadyRegistered is returned when registering a user twice.
	ErrAlreadyRegistered = errors.New("user already registered")

	// ErrNotRegistered is returned for users without a credential.
	ErrNotRegistered = errors.New("user not registered")

	// ErrNativeUnavailable is returned in strict mode when the platform
	// capability is absent or restricted.
	ErrNativeUnavailable = errors.New("native platform credentials unavailable")

	// ErrSimulatedRecord is returned in strict mode when authenticating a
	// user whose credential was simulated.
	ErrSimulatedRecord = errors.New("credential is simulated")

	// ErrVerificationFailed is returned when the relying party rejects a
	// platform response.
	ErrVerificationFailed = errors.New("credential verification failed")

	// ErrNotConfigured is returned by a zero Service.
	ErrNotConfigured = errors.New("fingerprint service not configured")
)

// Error wraps an error with the operation that failed.
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError returns an *Error for op.
func NewError(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// WrapError wraps err with op when err is not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// NativeError is returned in strict mode when a platform ceremony fails.
type NativeError struct {
	Op  string
	Err error
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("%s: native ceremony failed: %v", e.Op, e.Err)
}

func (e *NativeError) Unwrap() error {
	return e.Err
}

// Name returns the platform error class, e.g. "NotAllowedError".
func (e *NativeError) Name() string {
	return failureReason(e.Err)
}

// IsInvalidInput reports whether err is an empty-identifier failure.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsAlreadyRegistered reports whether err means the user already has a
// credential.
func IsAlreadyRegistered(err error) bool {
	return errors.Is(err, ErrAlreadyRegistered)
}

// IsNotRegistered reports whether err means the user has no credential.
func IsNotRegistered(err error) bool {
	return errors.Is(err, ErrNotRegistered)
}

// IsNativeFailure reports whether err is a strict-mode platform failure,
// including an unavailable capability.
func IsNativeFailure(err error) bool {
	var nerr *NativeError
	return errors.As(err, &nerr) || errors.Is(err, ErrNativeUnavailable)
}

// Error kinds reported to script callers of the wasm bridge.
const (
	KindInvalidInput        = "InvalidInput"
	KindAlreadyRegistered   = "AlreadyRegistered"
	KindNotRegistered       = "NotRegistered"
	KindSimulatedCredential = "SimulatedCredential"
	KindVerificationFailed  = "VerificationFailed"
	KindNativeUnavailable   = "NativeUnavailable"
	KindInternal            = "InternalError"
)

// Kind classifies err into one of the Kind constants. A nil error has no
// kind.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrAlreadyRegistered):
		return KindAlreadyRegistered
	case errors.Is(err, ErrNotRegistered):
		return KindNotRegistered
	case errors.Is(err, ErrSimulatedRecord):
		return KindSimulatedCredential
	case errors.Is(err, ErrVerificationFailed):
		return KindVerificationFailed
	case IsNativeFailure(err):
		return KindNativeUnavailable
	default:
		return KindInternal
	}
}
