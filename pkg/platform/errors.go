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

package platform

import (
	"context"
	"errors"
	"fmt"
)

// Platform error class names, as reported by WebAuthn implementations.
const (
	NameNotAllowed   = "NotAllowedError"
	NameSecurity     = "SecurityError"
	NameNotSupported = "NotSupportedError"
	NameInvalidState = "InvalidStateError"
	NameAbort        = "AbortError"
	NameUnknown      = "UnknownError"
)

var (
	// ErrNotAllowed means the user denied the request or it timed out.
	ErrNotAllowed = &Error{Name: NameNotAllowed}

	// ErrSecurity means the operation is forbidden in this context.
	ErrSecurity = &Error{Name: NameSecurity}

	// ErrNotSupported means no authenticator supports the request.
	ErrNotSupported = &Error{Name: NameNotSupported}

	// ErrInvalidState means a matching credential already exists.
	ErrInvalidState = &Error{Name: NameInvalidState}

	// ErrUnknown covers any other failure.
	ErrUnknown = &Error{Name: NameUnknown}
)

// Error is a failure raised by the platform during a ceremony. Two Errors
// match under errors.Is when their names are equal.
type Error struct {
	Name    string
	Message string
	Err     error
}

// NewError returns an Error with the given class name and message.
func NewError(name, message string) *Error {
	return &Error{Name: name, Message: message}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Name, e.Message, e.Err)
	case e.Message != "":
		return e.Name + ": " + e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	default:
		return e.Name
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Name.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Name == e.Name
}

// Classify returns the platform error class of err. Context cancellation
// and deadline errors map to NotAllowedError, matching how browsers report
// an abandoned prompt.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Name
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NameNotAllowed
	}
	return NameUnknown
}

// Describe returns a human-readable explanation of a platform error class.
func Describe(name string) string {
	switch name {
	case NameNotAllowed:
		return "User denied the request or the operation was canceled"
	case NameSecurity:
		return "The operation is not allowed in this context due to security restrictions"
	case NameNotSupported:
		return "The request is not supported by this device or platform"
	case NameInvalidState:
		return "A credential for this account already exists on the authenticator"
	case NameAbort:
		return "The operation was aborted"
	default:
		return "The platform credential operation failed"
	}
}
