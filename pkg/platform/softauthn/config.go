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

package softauthn

import (
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// DefaultAAGUID identifies credentials minted by this authenticator.
var DefaultAAGUID = uuid.MustParse("6b1e9a40-8c1f-4f4e-9d55-b10c5ecde7a1")

// Config describes the emulated platform. The zero value plus an Origin is
// an unrestricted top-level context with a working fingerprint sensor.
type Config struct {
	// Origin is reported in client data, e.g. "https://localhost".
	Origin string `yaml:"origin"`

	// RPID is used when ceremony options omit the relying party ID.
	// Defaults to the Origin host.
	RPID string `yaml:"rp_id"`

	// AAGUID is written into attested credential data.
	AAGUID uuid.UUID `yaml:"aaguid"`

	// Passphrase encrypts stored private keys (PKCS#8, PBES2). Empty stores
	// keys unencrypted.
	Passphrase string `yaml:"-"`

	// Disabled emulates an environment without the credential capability.
	Disabled bool `yaml:"disabled"`

	// PolicyDenied emulates a permissions policy that blocks credential
	// creation.
	PolicyDenied bool `yaml:"policy_denied"`

	// Embedded emulates execution inside a frame.
	Embedded bool `yaml:"embedded"`

	// ProbeFailure makes environment probes return an error.
	ProbeFailure bool `yaml:"probe_failure"`

	// NoSensor emulates a device without a user-verifying authenticator.
	NoSensor bool `yaml:"no_sensor"`

	// RefuseVerification emulates the user dismissing the fingerprint
	// prompt.
	RefuseVerification bool `yaml:"refuse_verification"`
}

// Validate checks the origin and fills RPID and AAGUID defaults.
func (c *Config) Validate() error {
	if c.Origin == "" {
		return fmt.Errorf("softauthn: origin is required")
	}
	u, err := url.Parse(c.Origin)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return fmt.Errorf("softauthn: invalid origin %q", c.Origin)
	}
	if c.RPID == "" {
		c.RPID = u.Hostname()
	}
	if c.AAGUID == uuid.Nil {
		c.AAGUID = DefaultAAGUID
	}
	return nil
}
