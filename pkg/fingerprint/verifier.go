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
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/jeremyhahn/go-biosecure/pkg/credstore"
)

// Verifier checks platform responses as a WebAuthn relying party. Native
// credentials keep their attestation object as public material, so
// assertions are verified against the key it carries.
type Verifier struct {
	webauthn *webauthn.WebAuthn
	timeout  time.Duration
}

// NewVerifier returns a Verifier for the relying party in config.
func NewVerifier(config *Config) (*Verifier, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	wa, err := webauthn.New(config.toWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}
	return &Verifier{webauthn: wa, timeout: config.Timeout}, nil
}

// VerifyRegistration checks a creation response against the options that
// requested it.
func (v *Verifier) VerifyRegistration(user string, opts *protocol.PublicKeyCredentialCreationOptions, parsed *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	if opts == nil || parsed == nil {
		return nil, fmt.Errorf("%w: missing ceremony data", ErrVerificationFailed)
	}
	session := webauthn.SessionData{
		Challenge:        opts.Challenge.String(),
		RelyingPartyID:   opts.RelyingParty.ID,
		UserID:           []byte(user),
		UserVerification: opts.AuthenticatorSelection.UserVerification,
		CredParams:       opts.Parameters,
		Expires:          v.expiry(),
	}
	cred, err := v.webauthn.CreateCredential(&credentialUser{name: user}, session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, describe(err))
	}
	return cred, nil
}

// VerifyAssertion checks an assertion response against the stored record.
func (v *Verifier) VerifyAssertion(user string, record *credstore.NativeRecord, opts *protocol.PublicKeyCredentialRequestOptions, parsed *protocol.ParsedCredentialAssertionData) error {
	if record == nil || opts == nil || parsed == nil {
		return fmt.Errorf("%w: missing ceremony data", ErrVerificationFailed)
	}
	cred, err := CredentialFromRecord(record)
	if err != nil {
		return err
	}

	allowed := make([][]byte, 0, len(opts.AllowedCredentials))
	for _, c := range opts.AllowedCredentials {
		allowed = append(allowed, c.CredentialID)
	}
	session := webauthn.SessionData{
		Challenge:            opts.Challenge.String(),
		RelyingPartyID:       opts.RelyingPartyID,
		UserID:               []byte(user),
		AllowedCredentialIDs: allowed,
		UserVerification:     opts.UserVerification,
		Expires:              v.expiry(),
	}
	u := &credentialUser{name: user, credentials: []webauthn.Credential{*cred}}
	if _, err := v.webauthn.ValidateLogin(u, session, parsed); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, describe(err))
	}
	return nil
}

func (v *Verifier) expiry() time.Time {
	if v.timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(v.timeout)
}

// CredentialFromRecord recovers the credential public key and flags from
// the attestation object stored in a native record.
func CredentialFromRecord(record *credstore.NativeRecord) (*webauthn.Credential, error) {
	var att protocol.AttestationObject
	if err := webauthncbor.Unmarshal(record.PublicMaterial, &att); err != nil {
		return nil, fmt.Errorf("%w: stored attestation object: %v", ErrVerificationFailed, err)
	}
	if err := att.AuthData.Unmarshal(att.RawAuthData); err != nil {
		return nil, fmt.Errorf("%w: stored authenticator data: %v", ErrVerificationFailed, describe(err))
	}
	if len(att.AuthData.AttData.CredentialPublicKey) == 0 {
		return nil, fmt.Errorf("%w: stored attestation has no public key", ErrVerificationFailed)
	}

	id := att.AuthData.AttData.CredentialID
	if len(id) == 0 {
		id = record.RawID
	}
	transports := make([]protocol.AuthenticatorTransport, 0, len(record.Transports))
	for _, t := range record.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return &webauthn.Credential{
		ID:              id,
		PublicKey:       att.AuthData.AttData.CredentialPublicKey,
		AttestationType: att.Format,
		Transport:       transports,
		Flags:           webauthn.NewCredentialFlags(att.AuthData.Flags),
		Authenticator: webauthn.Authenticator{
			AAGUID:    att.AuthData.AttData.AAGUID,
			SignCount: att.AuthData.Counter,
		},
	}, nil
}

// describe adds protocol error details, which Error() omits.
func describe(err error) string {
	var perr *protocol.Error
	if errors.As(err, &perr) && perr.Details != "" {
		if perr.DevInfo != "" {
			return perr.Details + " (" + perr.DevInfo + ")"
		}
		return perr.Details
	}
	return err.Error()
}

// credentialUser adapts a user identifier to webauthn.User. The user
// handle is the UTF-8 encoding of the identifier.
type credentialUser struct {
	name        string
	credentials []webauthn.Credential
}

func (u *credentialUser) WebAuthnID() []byte                         { return []byte(u.name) }
func (u *credentialUser) WebAuthnName() string                       { return u.name }
func (u *credentialUser) WebAuthnDisplayName() string                { return u.name }
func (u *credentialUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }
