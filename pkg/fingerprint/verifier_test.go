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
	"context"
	"encoding/json"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-biosecure/pkg/credstore"
	"github.com/jeremyhahn/go-biosecure/pkg/platform"
	"github.com/jeremyhahn/go-biosecure/pkg/platform/platformtest"
	"github.com/jeremyhahn/go-biosecure/pkg/platform/softauthn"
	"github.com/jeremyhahn/go-biosecure/pkg/storage"
)

func verifiedConfig(strict bool) *Config {
	cfg := DefaultConfig("example.com")
	cfg.Strict = strict
	return cfg
}

func newSoftAuthenticator(t *testing.T) *softauthn.Authenticator {
	t.Helper()
	a, err := softauthn.New(softauthn.Config{Origin: "https://example.com"}, storage.NewMemory())
	require.NoError(t, err)
	return a
}

func newVerifiedService(t *testing.T, cfg *Config, provider platform.Provider, store *credstore.Store) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Config: cfg, Provider: provider, Store: store})
	require.NoError(t, err)
	require.NotNil(t, svc.verifier)
	return svc
}

func TestVerifier_SoftAuthnCeremonies(t *testing.T) {
	ctx := context.Background()
	store := credstore.New(storage.NewMemory())
	svc := newVerifiedService(t, verifiedConfig(true), newSoftAuthenticator(t), store)

	ok, err := svc.Register(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	r, ok := store.Get(ctx, "alice")
	require.True(t, ok)
	native, isNative := r.(*credstore.NativeRecord)
	require.True(t, isNative)

	cred, err := CredentialFromRecord(native)
	require.NoError(t, err)
	assert.Equal(t, native.RawID, cred.ID)
	assert.True(t, cred.Flags.UserVerified)
	assert.Equal(t, softauthn.DefaultAAGUID[:], cred.Authenticator.AAGUID)

	for i := 0; i < 2; i++ {
		ok, err = svc.Authenticate(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestVerifier_RejectsSwappedPublicMaterial(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	store := credstore.New(backend)
	auth := newSoftAuthenticator(t)

	svc := newVerifiedService(t, verifiedConfig(true), auth, store)
	for _, user := range []string{"alice", "mallory"} {
		_, err := svc.Register(ctx, user)
		require.NoError(t, err)
	}

	dir := store.Load(ctx)
	alice := dir["alice"].(*credstore.NativeRecord)
	alice.PublicMaterial = dir["mallory"].Common().PublicMaterial
	require.NoError(t, store.Save(ctx, dir))

	ok, err := svc.Authenticate(ctx, "alice")
	assert.False(t, ok)
	var nerr *NativeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "VerificationError", nerr.Name())
	assert.ErrorIs(t, err, ErrVerificationFailed)

	lenient := newVerifiedService(t, verifiedConfig(false), auth, store)
	ok, err = lenient.Authenticate(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifier_RejectsTamperedAttestation(t *testing.T) {
	ctx := context.Background()
	auth := newSoftAuthenticator(t)

	// Answer with an attestation for a different challenge.
	provider := platformtest.New(platformtest.WithCreateFunc(
		func(ctx context.Context, opts *protocol.PublicKeyCredentialCreationOptions) (*protocol.ParsedCredentialCreationData, error) {
			forged := *opts
			forged.Challenge = append(protocol.URLEncodedBase64{}, opts.Challenge...)
			forged.Challenge[0] ^= 0xff
			return auth.Create(ctx, &forged)
		}))

	strict := newVerifiedService(t, verifiedConfig(true), provider, credstore.New(storage.NewMemory()))
	ok, err := strict.Register(ctx, "alice")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrVerificationFailed)

	store := credstore.New(storage.NewMemory())
	lenient := newVerifiedService(t, verifiedConfig(false), provider, store)
	ok, err = lenient.Register(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	r, _ := store.Get(ctx, "alice")
	assert.True(t, r.IsSimulated())
}

func TestVerifier_WrongRelyingParty(t *testing.T) {
	ctx := context.Background()
	a, err := softauthn.New(softauthn.Config{Origin: "https://evil.example"}, storage.NewMemory())
	require.NoError(t, err)

	svc := newVerifiedService(t, verifiedConfig(true), a, credstore.New(storage.NewMemory()))
	ok, err := svc.Register(ctx, "alice")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestCredentialFromRecord_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		material []byte
	}{
		{name: "empty", material: nil},
		{name: "not cbor", material: []byte("not an attestation object")},
		{name: "canned", material: platformtest.CannedCredential([]byte("x")).Raw.AttestationResponse.AttestationObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CredentialFromRecord(&credstore.NativeRecord{
				Credential: credstore.Credential{ID: "id", RawID: []byte("id"), PublicMaterial: tt.material},
			})
			assert.ErrorIs(t, err, ErrVerificationFailed)
		})
	}
}

func TestNewVerifier_NilConfig(t *testing.T) {
	_, err := NewVerifier(nil)
	assert.Error(t, err)
}

// virtualProvider runs ceremonies with an independent virtual
// authenticator implementation.
type virtualProvider struct {
	rp   virtualwebauthn.RelyingParty
	auth virtualwebauthn.Authenticator
	cred virtualwebauthn.Credential
}

func newVirtualProvider(cfg *Config) *virtualProvider {
	return &virtualProvider{
		rp: virtualwebauthn.RelyingParty{
			Name:   cfg.RPDisplayName,
			ID:     cfg.RPID,
			Origin: cfg.RPOrigins[0],
		},
		auth: virtualwebauthn.NewAuthenticator(),
		cred: virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2),
	}
}

func (p *virtualProvider) Supported() bool { return true }

func (p *virtualProvider) Permission(context.Context, string) (platform.PermissionState, error) {
	return platform.PermissionGranted, nil
}

func (p *virtualProvider) TopLevel(context.Context) (bool, error) { return true, nil }

func (p *virtualProvider) PlatformAuthenticatorAvailable(context.Context) (bool, error) {
	return true, nil
}

func (p *virtualProvider) Create(_ context.Context, opts *protocol.PublicKeyCredentialCreationOptions) (*protocol.ParsedCredentialCreationData, error) {
	optionsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	if err != nil {
		return nil, err
	}
	attestation := virtualwebauthn.CreateAttestationResponse(p.rp, p.auth, p.cred, *parsedOptions)
	p.auth.AddCredential(p.cred)

	var ccr protocol.CredentialCreationResponse
	if err := json.Unmarshal([]byte(attestation), &ccr); err != nil {
		return nil, err
	}
	return ccr.Parse()
}

func (p *virtualProvider) Get(_ context.Context, opts *protocol.PublicKeyCredentialRequestOptions) (*protocol.ParsedCredentialAssertionData, error) {
	optionsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	if err != nil {
		return nil, err
	}
	assertion := virtualwebauthn.CreateAssertionResponse(p.rp, p.auth, p.cred, *parsedOptions)

	var car protocol.CredentialAssertionResponse
	if err := json.Unmarshal([]byte(assertion), &car); err != nil {
		return nil, err
	}
	return car.Parse()
}

func TestVerifier_VirtualAuthenticator(t *testing.T) {
	ctx := context.Background()
	cfg := verifiedConfig(true)
	cfg.UserVerification = string(protocol.VerificationPreferred)
	cfg.SetDefaults()

	store := credstore.New(storage.NewMemory())
	svc := newVerifiedService(t, cfg, newVirtualProvider(cfg), store)

	ok, err := svc.Register(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	r, ok := store.Get(ctx, "alice")
	require.True(t, ok)
	assert.Equal(t, credstore.MethodNative, r.Method())

	ok, err = svc.Authenticate(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}
