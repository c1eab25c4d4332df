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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeremyhahn/go-biosecure/pkg/platform"
)

func TestError(t *testing.T) {
	err := NewError("register", ErrAlreadyRegistered)
	assert.Equal(t, "register: user already registered", err.Error())
	assert.True(t, errors.Is(err, ErrAlreadyRegistered))
	assert.True(t, IsAlreadyRegistered(err))
	assert.False(t, IsNotRegistered(err))

	noOp := &Error{Err: ErrNotRegistered}
	assert.Equal(t, "user not registered", noOp.Error())

	assert.Nil(t, WrapError("op", nil))
	wrapped := WrapError("authenticate", fmt.Errorf("load: %w", ErrNotRegistered))
	assert.True(t, IsNotRegistered(wrapped))
}

func TestNativeError(t *testing.T) {
	cause := platform.NewError(platform.NameSecurity, "iframe")
	err := &NativeError{Op: "authenticate", Err: cause}

	assert.Contains(t, err.Error(), "authenticate: native ceremony failed")
	assert.Equal(t, platform.NameSecurity, err.Name())
	assert.True(t, errors.Is(err, platform.ErrSecurity))
	assert.True(t, IsNativeFailure(err))
	assert.True(t, IsNativeFailure(fmt.Errorf("wrapped: %w", err)))

	verify := &NativeError{Op: "register", Err: fmt.Errorf("%w: bad origin", ErrVerificationFailed)}
	assert.Equal(t, "VerificationError", verify.Name())

	unknown := &NativeError{Op: "register", Err: errors.New("boom")}
	assert.Equal(t, platform.NameUnknown, unknown.Name())
}

func TestIsNativeFailure(t *testing.T) {
	assert.True(t, IsNativeFailure(NewError("register", ErrNativeUnavailable)))
	assert.False(t, IsNativeFailure(NewError("register", ErrInvalidInput)))
	assert.False(t, IsNativeFailure(nil))
	assert.True(t, IsInvalidInput(NewError("register", ErrInvalidInput)))
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"invalid input", NewError("register", ErrInvalidInput), KindInvalidInput},
		{"already registered", NewError("register", ErrAlreadyRegistered), KindAlreadyRegistered},
		{"not registered", NewError("authenticate", ErrNotRegistered), KindNotRegistered},
		{"simulated", NewError("authenticate", ErrSimulatedRecord), KindSimulatedCredential},
		{"verification", &NativeError{Op: "register", Err: ErrVerificationFailed}, KindVerificationFailed},
		{"native", &NativeError{Op: "register", Err: platform.ErrNotAllowed}, KindNativeUnavailable},
		{"unavailable", NewError("register", ErrNativeUnavailable), KindNativeUnavailable},
		{"other", errors.New("disk full"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}
