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

// Package softauthn is a software platform authenticator. It answers the
// same environment probes as a browser and runs real ES256 ceremonies whose
// results verify with go-webauthn, so the fingerprint service can run on
// servers, in the CLI and in tests without a browser.
package softauthn

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"github.com/jeremyhahn/go-biosecure/pkg/platform"
	"github.com/jeremyhahn/go-biosecure/pkg/storage"
)

// ErrLocked is returned when a stored key is encrypted and no passphrase
// is configured.
var ErrLocked = errors.New("softauthn: private key is encrypted")

const credentialIDSize = 32

// Authenticator implements platform.Provider in software.
type Authenticator struct {
	mu     sync.Mutex
	config Config
	keys   *keyStore
}

// New returns an Authenticator that keeps keys in backend.
func New(config Config, backend storage.Backend) (*Authenticator, error) {
	if backend == nil {
		return nil, fmt.Errorf("softauthn: storage backend is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Authenticator{
		config: config,
		keys:   &keyStore{backend: backend, passphrase: []byte(config.Passphrase)},
	}, nil
}

// Config returns the effective configuration.
func (a *Authenticator) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

// Reconfigure replaces the emulated environment flags. Origin, RPID and
// AAGUID are kept.
func (a *Authenticator) Reconfigure(fn func(*Config)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	origin, rpID, aaguid := a.config.Origin, a.config.RPID, a.config.AAGUID
	fn(&a.config)
	a.config.Origin, a.config.RPID, a.config.AAGUID = origin, rpID, aaguid
}

func (a *Authenticator) Supported() bool {
	return !a.Config().Disabled
}

func (a *Authenticator) Permission(_ context.Context, feature string) (platform.PermissionState, error) {
	cfg := a.Config()
	if cfg.ProbeFailure {
		return platform.PermissionUnknown, platform.NewError(platform.NameUnknown, "permissions policy probe failed")
	}
	if feature == platform.FeatureCreate && cfg.PolicyDenied {
		return platform.PermissionDenied, nil
	}
	return platform.PermissionGranted, nil
}

func (a *Authenticator) TopLevel(_ context.Context) (bool, error) {
	cfg := a.Config()
	if cfg.ProbeFailure {
		return false, platform.NewError(platform.NameSecurity, "cross-origin frame access blocked")
	}
	return !cfg.Embedded, nil
}

func (a *Authenticator) PlatformAuthenticatorAvailable(_ context.Context) (bool, error) {
	cfg := a.Config()
	return !cfg.Disabled && !cfg.NoSensor, nil
}

// Create generates a P-256 key pair, stores it and returns the parsed
// "none" attestation for it.
func (a *Authenticator) Create(ctx context.Context, opts *protocol.PublicKeyCredentialCreationOptions) (*protocol.ParsedCredentialCreationData, error) {
	if err := ctx.Err(); err != nil {
		return nil, platform.NewError(platform.NameNotAllowed, err.Error())
	}
	if opts == nil {
		return nil, platform.NewError(platform.NameNotSupported, "missing creation options")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	cfg := a.config

	if err := cfg.gate(); err != nil {
		return nil, err
	}
	if !supportsES256(opts.Parameters) {
		return nil, platform.NewError(platform.NameNotSupported, "no supported public key algorithm")
	}
	if opts.AuthenticatorSelection.AuthenticatorAttachment == protocol.CrossPlatform {
		return nil, platform.NewError(platform.NameNotSupported, "cross-platform authenticators are not available")
	}
	if err := cfg.verifyUser(opts.AuthenticatorSelection.UserVerification); err != nil {
		return nil, err
	}
	for _, excluded := range opts.CredentialExcludeList {
		if a.keys.exists(excluded.CredentialID) {
			return nil, platform.NewError(platform.NameInvalidState, "credential already registered on this authenticator")
		}
	}

	rpID := opts.RelyingParty.ID
	if rpID == "" {
		rpID = cfg.RPID
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, platform.NewError(platform.NameUnknown, err.Error())
	}
	credID := make([]byte, credentialIDSize)
	if _, err := rand.Read(credID); err != nil {
		return nil, platform.NewError(platform.NameUnknown, err.Error())
	}
	pub, err := coseKey(&priv.PublicKey)
	if err != nil {
		return nil, platform.NewError(platform.NameUnknown, err.Error())
	}

	authData := authenticatorData(rpID, flagUP|flagUV, 0, attestedCredentialData(cfg.AAGUID[:], credID, pub))
	attObj, err := attestationObject(authData)
	if err != nil {
		return nil, platform.NewError(platform.NameUnknown, err.Error())
	}
	clientData, err := clientDataJSON(protocol.CreateCeremony, opts.Challenge, cfg.Origin)
	if err != nil {
		return nil, platform.NewError(platform.NameUnknown, err.Error())
	}

	sk := &storedKey{
		RPID:       rpID,
		UserHandle: platform.UserHandle(opts),
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.keys.save(credID, sk, priv); err != nil {
		return nil, platform.NewError(platform.NameUnknown, err.Error())
	}

	raw := protocol.CredentialCreationResponse{}
	raw.ID = keyID(credID)
	raw.Type = string(protocol.PublicKeyCredentialType)
	raw.RawID = credID
	raw.AuthenticatorAttachment = string(protocol.Platform)
	raw.AttestationResponse.ClientDataJSON = clientData
	raw.AttestationResponse.AttestationObject = attObj
	raw.AttestationResponse.Transports = []string{string(protocol.Internal)}

	parsed, err := raw.Parse()
	if err != nil {
		return nil, platform.NewError(platform.NameUnknown, err.Error())
	}
	return parsed, nil
}

// Get signs an assertion with the first stored credential matching the
// allow list, or any credential for the relying party when the list is
// empty.
func (a *Authenticator) Get(ctx context.Context, opts *protocol.PublicKeyCredentialRequestOptions) (*protocol.ParsedCredentialAssertionData, error) {
	if err := ctx.Err(); err != nil {
		return nil, platform.NewError(platform.NameNotAllowed, err.Error())
	}
	if opts == nil {
		return nil, platform.NewError(platform.NameNotSupported, "missing request options")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	cfg := a.config

	if cfg.Disabled {
		return nil, platform.NewError(platform.NameNotSupported, "public key credentials are not supported")
	}
	if cfg.Embedded {
		return nil, platform.NewError(platform.NameSecurity, "credential request from a nested browsing context")
	}
	if cfg.NoSensor {
		return nil, platform.NewError(platform.NameNotSupported, "no platform authenticator")
	}
	if err := cfg.verifyUser(opts.UserVerification); err != nil {
		return nil, err
	}

	rpID := opts.RelyingPartyID
	if rpID == "" {
		rpID = cfg.RPID
	}
	allowed := make([][]byte, 0, len(opts.AllowedCredentials))
	for _, c := range opts.AllowedCredentials {
		allowed = append(allowed, c.CredentialID)
	}

	credID, err := a.keys.find(rpID, allowed)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, platform.NewError(platform.NameNotAllowed, "no matching credential")
		}
		return nil, platform.NewError(platform.NameUnknown, err.Error())
	}
	sk, priv, err := a.keys.load(credID)
	if err != nil {
		return nil, platform.NewError(platform.NameUnknown, err.Error())
	}

	sk.SignCount++
	authData := authenticatorData(rpID, flagUP|flagUV, sk.SignCount, nil)
	clientData, err := clientDataJSON(protocol.AssertCeremony, opts.Challenge, cfg.Origin)
	if err != nil {
		return nil, platform.NewError(platform.NameUnknown, err.Error())
	}
	clientHash := sha256.Sum256(clientData)
	digest := sha256.Sum256(append(append([]byte{}, authData...), clientHash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, platform.NewError(platform.NameUnknown, err.Error())
	}
	if err := a.keys.save(credID, sk, nil); err != nil {
		return nil, platform.NewError(platform.NameUnknown, err.Error())
	}

	raw := protocol.CredentialAssertionResponse{}
	raw.ID = keyID(credID)
	raw.Type = string(protocol.PublicKeyCredentialType)
	raw.RawID = credID
	raw.AuthenticatorAttachment = string(protocol.Platform)
	raw.AssertionResponse.ClientDataJSON = clientData
	raw.AssertionResponse.AuthenticatorData = authData
	raw.AssertionResponse.Signature = sig
	raw.AssertionResponse.UserHandle = sk.UserHandle

	parsed, err := raw.Parse()
	if err != nil {
		return nil, platform.NewError(platform.NameUnknown, err.Error())
	}
	return parsed, nil
}

// Credentials returns the IDs of every stored credential.
func (a *Authenticator) Credentials() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return storage.ListAuthenticatorKeys(a.keys.backend)
}

// gate applies the environment restrictions that block creation.
func (c Config) gate() error {
	switch {
	case c.Disabled:
		return platform.NewError(platform.NameNotSupported, "public key credentials are not supported")
	case c.PolicyDenied:
		return platform.NewError(platform.NameNotAllowed, "blocked by permissions policy")
	case c.Embedded:
		return platform.NewError(platform.NameSecurity, "credential creation from a nested browsing context")
	case c.NoSensor:
		return platform.NewError(platform.NameNotSupported, "no platform authenticator")
	}
	return nil
}

func (c Config) verifyUser(req protocol.UserVerificationRequirement) error {
	if c.RefuseVerification && req == protocol.VerificationRequired {
		return platform.NewError(platform.NameNotAllowed, "user verification was cancelled")
	}
	return nil
}

func supportsES256(params []protocol.CredentialParameter) bool {
	if len(params) == 0 {
		return true
	}
	for _, p := range params {
		if p.Type == protocol.PublicKeyCredentialType && p.Algorithm == webauthncose.AlgES256 {
			return true
		}
	}
	return false
}

var _ platform.Provider = (*Authenticator)(nil)
