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
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

const (
	flagUP = 0x01
	flagUV = 0x04
	flagAT = 0x40
)

// coseKey encodes an ES256 public key as a COSE_Key map.
func coseKey(pub *ecdsa.PublicKey) ([]byte, error) {
	x := make([]byte, 32)
	y := make([]byte, 32)
	pub.X.FillBytes(x)
	pub.Y.FillBytes(y)

	return webauthncbor.Marshal(map[int]interface{}{
		1:  int(webauthncose.EllipticKey),
		3:  int(webauthncose.AlgES256),
		-1: int(webauthncose.P256),
		-2: x,
		-3: y,
	})
}

// authenticatorData lays out rpIdHash | flags | signCount and, when
// attested is non-nil, the attested credential data.
func authenticatorData(rpID string, flags byte, counter uint32, attested []byte) []byte {
	var buf bytes.Buffer
	hash := sha256.Sum256([]byte(rpID))
	buf.Write(hash[:])

	if attested != nil {
		flags |= flagAT
	}
	buf.WriteByte(flags)

	var count [4]byte
	binary.BigEndian.PutUint32(count[:], counter)
	buf.Write(count[:])

	buf.Write(attested)
	return buf.Bytes()
}

// attestedCredentialData lays out aaguid | idLength | id | publicKey.
func attestedCredentialData(aaguid, credID, publicKey []byte) []byte {
	var buf bytes.Buffer
	buf.Write(aaguid)

	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(credID)))
	buf.Write(n[:])
	buf.Write(credID)
	buf.Write(publicKey)
	return buf.Bytes()
}

// attestationObject wraps authData in a "none" attestation.
func attestationObject(authData []byte) ([]byte, error) {
	return webauthncbor.Marshal(map[string]interface{}{
		"fmt":      string(protocol.AttestationFormatNone),
		"attStmt":  map[string]interface{}{},
		"authData": authData,
	})
}

func clientDataJSON(ceremony protocol.CeremonyType, challenge protocol.URLEncodedBase64, origin string) ([]byte, error) {
	return json.Marshal(protocol.CollectedClientData{
		Type:      ceremony,
		Challenge: challenge.String(),
		Origin:    origin,
	})
}
