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
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// DefaultDisplayName is the relying party name shown in platform prompts.
const DefaultDisplayName = "BioSecure Access"

// Config configures the fingerprint service.
type Config struct {
	// RPID is the relying party identifier, typically the site's domain.
	RPID string `yaml:"id" json:"id" mapstructure:"id"`

	// RPDisplayName is shown by the platform during registration.
	// Default: "BioSecure Access"
	RPDisplayName string `yaml:"display_name" json:"display_name" mapstructure:"display_name"`

	// RPOrigins are the origins accepted during verification.
	// Default: "https://" + RPID
	RPOrigins []string `yaml:"origins" json:"origins" mapstructure:"origins"`

	// Timeout bounds each native ceremony.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`

	// UserVerification is "required", "preferred" or "discouraged".
	// Default: "required"
	UserVerification string `yaml:"user_verification" json:"user_verification" mapstructure:"user_verification"`

	// AttestationPreference is "none", "indirect", "direct" or "enterprise".
	// Default: "direct"
	AttestationPreference string `yaml:"attestation" json:"attestation" mapstructure:"attestation"`

	// Strict surfaces native failures instead of falling back to a
	// simulated credential.
	Strict bool `yaml:"strict" json:"strict" mapstructure:"strict"`

	// Verify checks native attestations and assertions with a relying
	// party before accepting them.
	Verify bool `yaml:"verify" json:"verify" mapstructure:"verify"`
}

// DefaultConfig returns the configuration used by the browser client for
// rpID, with verification enabled.
func DefaultConfig(rpID string) *Config {
	c := &Config{RPID: rpID, Verify: true}
	c.SetDefaults()
	return c
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.RPDisplayName == "" {
		c.RPDisplayName = DefaultDisplayName
	}
	if len(c.RPOrigins) == 0 && c.RPID != "" {
		c.RPOrigins = []string{"https://" + c.RPID}
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.UserVerification == "" {
		c.UserVerification = string(protocol.VerificationRequired)
	}
	if c.AttestationPreference == "" {
		c.AttestationPreference = string(protocol.PreferDirectAttestation)
	}
}

// Validate returns an error if the configuration is unusable.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("RPID is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("RPDisplayName is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout: %s", c.Timeout)
	}

	switch c.UserVerification {
	case "", "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid user verification: %s", c.UserVerification)
	}

	switch c.AttestationPreference {
	case "", "none", "indirect", "direct", "enterprise":
	default:
		return fmt.Errorf("invalid attestation preference: %s", c.AttestationPreference)
	}

	if c.Verify && len(c.RPOrigins) == 0 {
		return fmt.Errorf("at least one RPOrigin is required for verification")
	}
	return nil
}

func (c *Config) userVerification() protocol.UserVerificationRequirement {
	return protocol.UserVerificationRequirement(c.UserVerification)
}

func (c *Config) attestation() protocol.ConveyancePreference {
	return protocol.ConveyancePreference(c.AttestationPreference)
}

// toWebAuthnConfig converts c to the relying party configuration used by
// the Verifier.
func (c *Config) toWebAuthnConfig() *webauthn.Config {
	return &webauthn.Config{
		RPID:                  c.RPID,
		RPDisplayName:         c.RPDisplayName,
		RPOrigins:             c.RPOrigins,
		AttestationPreference: c.attestation(),
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			UserVerification:        c.userVerification(),
		},
	}
}
