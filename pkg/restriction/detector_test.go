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

package restriction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeremyhahn/go-biosecure/pkg/platform"
	"github.com/jeremyhahn/go-biosecure/pkg/platform/platformtest"
)

func TestDetector_Conditions(t *testing.T) {
	probeErr := errors.New("SecurityError: blocked")

	tests := []struct {
		name       string
		opts       []platformtest.Option
		condition  Condition
		reason     string
		available  bool
		restricted bool
	}{
		{
			name:      "unrestricted with authenticator",
			condition: ConditionNone,
			available: true,
		},
		{
			name:      "unrestricted without authenticator",
			opts:      []platformtest.Option{platformtest.WithAuthenticator(false, nil)},
			condition: ConditionNone,
			available: false,
		},
		{
			name:      "authenticator probe throws",
			opts:      []platformtest.Option{platformtest.WithAuthenticator(false, probeErr)},
			condition: ConditionNone,
			available: false,
		},
		{
			name:       "capability absent",
			opts:       []platformtest.Option{platformtest.Unsupported()},
			condition:  ConditionUnsupported,
			reason:     ReasonUnsupported,
			available:  false,
			restricted: true,
		},
		{
			name:       "policy denied",
			opts:       []platformtest.Option{platformtest.WithPermission(platform.PermissionDenied, nil)},
			condition:  ConditionPolicyDenied,
			reason:     ReasonPolicyDenied,
			available:  true,
			restricted: true,
		},
		{
			name:       "policy interface missing",
			opts:       []platformtest.Option{platformtest.WithPermission(platform.PermissionUnknown, nil)},
			condition:  ConditionNone,
			available:  true,
			restricted: false,
		},
		{
			name:       "embedded frame",
			opts:       []platformtest.Option{platformtest.Embedded()},
			condition:  ConditionEmbedded,
			reason:     ReasonEmbedded,
			available:  true,
			restricted: true,
		},
		{
			name:       "policy probe throws",
			opts:       []platformtest.Option{platformtest.WithPermission(platform.PermissionGranted, probeErr)},
			condition:  ConditionProbeFailed,
			reason:     ReasonProbeFailed,
			available:  true,
			restricted: true,
		},
		{
			name:       "top-level probe throws",
			opts:       []platformtest.Option{platformtest.WithTopLevelError(probeErr)},
			condition:  ConditionProbeFailed,
			reason:     ReasonProbeFailed,
			available:  true,
			restricted: true,
		},
		{
			name: "absent wins over policy and embedding",
			opts: []platformtest.Option{
				platformtest.Unsupported(),
				platformtest.WithPermission(platform.PermissionDenied, nil),
				platformtest.Embedded(),
			},
			condition:  ConditionUnsupported,
			reason:     ReasonUnsupported,
			available:  false,
			restricted: true,
		},
		{
			name: "policy wins over embedding",
			opts: []platformtest.Option{
				platformtest.WithPermission(platform.PermissionDenied, nil),
				platformtest.Embedded(),
			},
			condition:  ConditionPolicyDenied,
			reason:     ReasonPolicyDenied,
			available:  true,
			restricted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			d := New(platformtest.New(tt.opts...), nil)

			assert.Equal(t, tt.condition, d.Check(ctx))
			assert.Equal(t, tt.restricted, d.IsRestricted(ctx))
			assert.Equal(t, tt.available, d.IsAvailable(ctx))

			reason, ok := d.RestrictionReason(ctx)
			assert.Equal(t, tt.restricted, ok)
			assert.Equal(t, tt.reason, reason)

			status := d.Status(ctx)
			assert.Equal(t, Status{
				Available:  tt.available,
				Restricted: tt.restricted,
				Condition:  tt.condition,
				Reason:     tt.reason,
			}, status)
		})
	}
}

func TestDetector_NilProvider(t *testing.T) {
	d := New(nil, nil)
	ctx := context.Background()

	assert.True(t, d.IsRestricted(ctx))
	assert.False(t, d.IsAvailable(ctx))
	reason, ok := d.RestrictionReason(ctx)
	assert.True(t, ok)
	assert.Equal(t, ReasonUnsupported, reason)
}

func TestCondition_ReasonsDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range []Condition{ConditionUnsupported, ConditionPolicyDenied, ConditionEmbedded, ConditionProbeFailed} {
		r := c.Reason()
		assert.NotEmpty(t, r)
		assert.False(t, seen[r], "duplicate reason %q", r)
		seen[r] = true
	}
	assert.Empty(t, ConditionNone.Reason())
}
