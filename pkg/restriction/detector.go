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

// Package restriction decides whether the native platform credential
// capability may be used in the current execution context, and explains
// why not when it may not.
package restriction

import (
	"context"

	"github.com/jeremyhahn/go-biosecure/pkg/logging"
	"github.com/jeremyhahn/go-biosecure/pkg/metrics"
	"github.com/jeremyhahn/go-biosecure/pkg/platform"
)

// Condition identifies the first check that found a restriction.
type Condition string

const (
	ConditionNone         Condition = ""
	ConditionUnsupported  Condition = "unsupported"
	ConditionPolicyDenied Condition = "policy_denied"
	ConditionEmbedded     Condition = "embedded"
	ConditionProbeFailed  Condition = "probe_failed"
)

// Human-readable reasons, one per condition.
const (
	ReasonUnsupported  = "WebAuthn is not supported in this browser"
	ReasonPolicyDenied = "WebAuthn is restricted by the site's permissions policy. This might be due to iframe embedding or cross-origin constraints."
	ReasonEmbedded     = "WebAuthn is restricted because the page is running in an iframe. This is a security measure to prevent unauthorized credential access."
	ReasonProbeFailed  = "WebAuthn is restricted due to security constraints. Please check your browser settings and page configuration."
)

// Reason returns the human-readable text for c.
func (c Condition) Reason() string {
	switch c {
	case ConditionUnsupported:
		return ReasonUnsupported
	case ConditionPolicyDenied:
		return ReasonPolicyDenied
	case ConditionEmbedded:
		return ReasonEmbedded
	case ConditionProbeFailed:
		return ReasonProbeFailed
	default:
		return ""
	}
}

// Status is a snapshot of the detector answers.
type Status struct {
	Available  bool      `json:"available" yaml:"available"`
	Restricted bool      `json:"restricted" yaml:"restricted"`
	Condition  Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
	Reason     string    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Detector evaluates restriction conditions against a provider.
type Detector struct {
	provider platform.Provider
	logger   *logging.Logger
}

// New returns a Detector. A nil logger discards output.
func New(provider platform.Provider, logger *logging.Logger) *Detector {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Detector{provider: provider, logger: logger}
}

// Check evaluates the conditions in order and returns the first that
// holds: capability absent, policy denies creation, embedded context, or a
// probe that errored.
func (d *Detector) Check(ctx context.Context) Condition {
	c := d.check(ctx)
	metrics.RecordRestrictionCheck(string(c))
	return c
}

func (d *Detector) check(ctx context.Context) Condition {
	if d.provider == nil || !d.provider.Supported() {
		return ConditionUnsupported
	}

	state, err := d.provider.Permission(ctx, platform.FeatureCreate)
	if err != nil {
		d.logger.Debug("permissions policy probe failed", "error", err)
		return ConditionProbeFailed
	}
	if state == platform.PermissionDenied {
		return ConditionPolicyDenied
	}

	top, err := d.provider.TopLevel(ctx)
	if err != nil {
		d.logger.Debug("top-level context probe failed", "error", err)
		return ConditionProbeFailed
	}
	if !top {
		return ConditionEmbedded
	}
	return ConditionNone
}

// IsRestricted reports whether any restriction condition holds.
func (d *Detector) IsRestricted(ctx context.Context) bool {
	return d.Check(ctx) != ConditionNone
}

// RestrictionReason returns the reason text and true when restricted.
func (d *Detector) RestrictionReason(ctx context.Context) (string, bool) {
	c := d.Check(ctx)
	if c == ConditionNone {
		return "", false
	}
	return c.Reason(), true
}

// IsAvailable reports whether fingerprint registration can be offered.
// It is false when the capability is absent or no platform authenticator
// answers. A restricted context reports true because the simulated path
// substitutes.
func (d *Detector) IsAvailable(ctx context.Context) bool {
	return d.available(ctx, d.Check(ctx))
}

func (d *Detector) available(ctx context.Context, c Condition) bool {
	switch c {
	case ConditionUnsupported:
		return false
	case ConditionNone:
	default:
		return true
	}
	ok, err := d.provider.PlatformAuthenticatorAvailable(ctx)
	if err != nil {
		d.logger.Debug("platform authenticator probe failed", "error", err)
		return false
	}
	return ok
}

// Status evaluates all answers from a single pass over the conditions.
func (d *Detector) Status(ctx context.Context) Status {
	c := d.Check(ctx)
	return Status{
		Available:  d.available(ctx, c),
		Restricted: c != ConditionNone,
		Condition:  c,
		Reason:     c.Reason(),
	}
}
