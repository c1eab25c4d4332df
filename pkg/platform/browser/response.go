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

// Package browser implements platform.Provider over the WebAuthn API of
// the hosting browser (window.PublicKeyCredential and
// navigator.credentials). The adapter itself is only built for js/wasm;
// the response encoding in this file is shared with host builds.
package browser

import (
	"bytes"
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/jeremyhahn/go-biosecure/pkg/platform"
)

// attestation is the credential returned by navigator.credentials.create,
// with its buffers copied out of JavaScript.
type attestation struct {
	ID                string
	RawID             []byte
	Type              string
	Attachment        string
	ClientDataJSON    []byte
	AttestationObject []byte
	Transports        []string
}

// assertion is the credential returned by navigator.credentials.get.
type assertion struct {
	ID                string
	RawID             []byte
	Type              string
	Attachment        string
	ClientDataJSON    []byte
	AuthenticatorData []byte
	Signature         []byte
	UserHandle        []byte
}

type attestationBody struct {
	ID         string                    `json:"id"`
	RawID      protocol.URLEncodedBase64 `json:"rawId"`
	Type       string                    `json:"type"`
	Attachment string                    `json:"authenticatorAttachment,omitempty"`
	Response   attestationResponseBody   `json:"response"`
	Extensions map[string]interface{}    `json:"clientExtensionResults"`
}

type attestationResponseBody struct {
	ClientDataJSON    protocol.URLEncodedBase64 `json:"clientDataJSON"`
	AttestationObject protocol.URLEncodedBase64 `json:"attestationObject"`
	Transports        []string                  `json:"transports,omitempty"`
}

type assertionBody struct {
	ID         string                    `json:"id"`
	RawID      protocol.URLEncodedBase64 `json:"rawId"`
	Type       string                    `json:"type"`
	Attachment string                    `json:"authenticatorAttachment,omitempty"`
	Response   assertionResponseBody     `json:"response"`
	Extensions map[string]interface{}    `json:"clientExtensionResults"`
}

type assertionResponseBody struct {
	ClientDataJSON    protocol.URLEncodedBase64 `json:"clientDataJSON"`
	AuthenticatorData protocol.URLEncodedBase64 `json:"authenticatorData"`
	Signature         protocol.URLEncodedBase64 `json:"signature"`
	UserHandle        protocol.URLEncodedBase64 `json:"userHandle,omitempty"`
}

// parseAttestation runs the browser result through the protocol parser so
// callers receive the same structure a relying party server would.
func parseAttestation(a *attestation) (*protocol.ParsedCredentialCreationData, error) {
	body, err := json.Marshal(attestationBody{
		ID:         a.ID,
		RawID:      a.RawID,
		Type:       a.Type,
		Attachment: a.Attachment,
		Response: attestationResponseBody{
			ClientDataJSON:    a.ClientDataJSON,
			AttestationObject: a.AttestationObject,
			Transports:        a.Transports,
		},
		Extensions: map[string]interface{}{},
	})
	if err != nil {
		return nil, &platform.Error{Name: platform.NameUnknown, Message: "encode attestation", Err: err}
	}
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(body))
	if err != nil {
		return nil, &platform.Error{Name: platform.NameUnknown, Message: "malformed attestation", Err: err}
	}
	return parsed, nil
}

func parseAssertion(a *assertion) (*protocol.ParsedCredentialAssertionData, error) {
	body, err := json.Marshal(assertionBody{
		ID:         a.ID,
		RawID:      a.RawID,
		Type:       a.Type,
		Attachment: a.Attachment,
		Response: assertionResponseBody{
			ClientDataJSON:    a.ClientDataJSON,
			AuthenticatorData: a.AuthenticatorData,
			Signature:         a.Signature,
			UserHandle:        a.UserHandle,
		},
		Extensions: map[string]interface{}{},
	})
	if err != nil {
		return nil, &platform.Error{Name: platform.NameUnknown, Message: "encode assertion", Err: err}
	}
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(body))
	if err != nil {
		return nil, &platform.Error{Name: platform.NameUnknown, Message: "malformed assertion", Err: err}
	}
	return parsed, nil
}

// domError converts a rejected DOMException to a platform error. Names
// outside the WebAuthn set are reported as UnknownError.
func domError(name, message string) *platform.Error {
	switch name {
	case platform.NameNotAllowed, platform.NameSecurity, platform.NameNotSupported,
		platform.NameInvalidState, platform.NameAbort:
		return platform.NewError(name, message)
	case "":
		return platform.NewError(platform.NameUnknown, message)
	default:
		return platform.NewError(platform.NameUnknown, name+": "+message)
	}
}
