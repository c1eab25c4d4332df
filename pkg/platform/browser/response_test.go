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

package browser

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-biosecure/pkg/platform"
)

var testRP = virtualwebauthn.RelyingParty{
	Name:   "Test",
	ID:     "localhost",
	Origin: "https://localhost",
}

func TestParseAttestation(t *testing.T) {
	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	opts := &protocol.PublicKeyCredentialCreationOptions{
		RelyingParty: protocol.RelyingPartyEntity{
			CredentialEntity: protocol.CredentialEntity{Name: testRP.Name},
			ID:               testRP.ID,
		},
		User: protocol.UserEntity{
			CredentialEntity: protocol.CredentialEntity{Name: "alice"},
			DisplayName:      "alice",
			ID:               protocol.URLEncodedBase64("alice-handle"),
		},
		Challenge: protocol.URLEncodedBase64("0123456789abcdef0123456789abcdef"),
		Parameters: []protocol.CredentialParameter{
			{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
		},
	}
	optionsJSON, err := json.Marshal(opts)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	var ccr protocol.CredentialCreationResponse
	require.NoError(t, json.Unmarshal([]byte(virtualwebauthn.CreateAttestationResponse(testRP, auth, cred, *parsedOptions)), &ccr))

	data, err := parseAttestation(&attestation{
		ID:                ccr.ID,
		RawID:             ccr.RawID,
		Type:              ccr.Type,
		Attachment:        string(protocol.Platform),
		ClientDataJSON:    ccr.AttestationResponse.ClientDataJSON,
		AttestationObject: ccr.AttestationResponse.AttestationObject,
		Transports:        []string{"internal"},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte(ccr.RawID), []byte(data.RawID))
	assert.Equal(t, protocol.Platform, data.AuthenticatorAttachment)
	assert.Equal(t, []protocol.AuthenticatorTransport{protocol.Internal}, data.Response.Transports)
	assert.Equal(t, protocol.CreateCeremony, data.Response.CollectedClientData.Type)
}

func TestParseAssertion(t *testing.T) {
	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	auth.AddCredential(cred)

	opts := &protocol.PublicKeyCredentialRequestOptions{
		Challenge:      protocol.URLEncodedBase64("fedcba9876543210fedcba9876543210"),
		RelyingPartyID: testRP.ID,
		AllowedCredentials: []protocol.CredentialDescriptor{
			{Type: protocol.PublicKeyCredentialType, CredentialID: cred.ID},
		},
	}
	optionsJSON, err := json.Marshal(opts)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	var car protocol.CredentialAssertionResponse
	require.NoError(t, json.Unmarshal([]byte(virtualwebauthn.CreateAssertionResponse(testRP, auth, cred, *parsedOptions)), &car))

	data, err := parseAssertion(&assertion{
		ID:                car.ID,
		RawID:             car.RawID,
		Type:              car.Type,
		ClientDataJSON:    car.AssertionResponse.ClientDataJSON,
		AuthenticatorData: car.AssertionResponse.AuthenticatorData,
		Signature:         car.AssertionResponse.Signature,
		UserHandle:        car.AssertionResponse.UserHandle,
	})
	require.NoError(t, err)
	assert.Equal(t, cred.ID, []byte(data.RawID))
	assert.Equal(t, protocol.AssertCeremony, data.Response.CollectedClientData.Type)
}

func TestParseMalformed(t *testing.T) {
	_, err := parseAttestation(&attestation{ID: "x", RawID: []byte("x"), Type: "public-key"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, platform.ErrUnknown))

	_, err = parseAssertion(&assertion{ID: "x", RawID: []byte("x"), Type: "public-key"})
	require.Error(t, err)
	assert.Equal(t, platform.NameUnknown, platform.Classify(err))
}

func TestDOMError(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{platform.NameNotAllowed, "denied", platform.NameNotAllowed},
		{platform.NameSecurity, "iframe", platform.NameSecurity},
		{platform.NameInvalidState, "exists", platform.NameInvalidState},
		{"TypeError", "bad", platform.NameUnknown},
		{"", "bad", platform.NameUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := domError(tt.name, tt.message)
			assert.Equal(t, tt.want, err.Name)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}
