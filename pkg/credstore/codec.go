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

package credstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Wire values of registrationMethod. Directories written by earlier
// browser clients carry "webauthn" for native credentials; any value other
// than "simulated" decodes as native.
const (
	wireMethodNative    = string(MethodNative)
	wireMethodSimulated = string(MethodSimulated)
)

// wireRecord is the persisted JSON shape of a single record.
type wireRecord struct {
	ID                 string     `json:"id"`
	RawID              string     `json:"rawId"`
	PublicKey          string     `json:"publicKey"`
	IsSimulated        bool       `json:"isSimulated,omitempty"`
	RegistrationMethod string     `json:"registrationMethod"`
	Transports         []string   `json:"transports,omitempty"`
	CreatedAt          *time.Time `json:"createdAt,omitempty"`
}

func encodeRecord(r Record) (*wireRecord, error) {
	var (
		c          Credential
		method     string
		simulated  bool
		transports []string
	)
	switch rec := r.(type) {
	case *NativeRecord:
		c, method, transports = rec.Credential, wireMethodNative, rec.Transports
	case *SimulatedRecord:
		c, method, simulated = rec.Credential, wireMethodSimulated, true
	default:
		return nil, fmt.Errorf("credstore: unsupported record type %T", r)
	}
	w := &wireRecord{
		ID:                 c.ID,
		RawID:              base64.StdEncoding.EncodeToString(c.RawID),
		PublicKey:          base64.StdEncoding.EncodeToString(c.PublicMaterial),
		IsSimulated:        simulated,
		RegistrationMethod: method,
		Transports:         transports,
	}
	if !c.CreatedAt.IsZero() {
		t := c.CreatedAt.UTC()
		w.CreatedAt = &t
	}
	return w, nil
}

// decodeRecord converts a wire record. A record is simulated when either
// marker says so; an unrecognized method is treated as native.
func decodeRecord(w *wireRecord) (Record, error) {
	rawID, err := decodeBase64(w.RawID)
	if err != nil {
		return nil, fmt.Errorf("rawId: %w", err)
	}
	material, err := decodeBase64(w.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("publicKey: %w", err)
	}
	c := Credential{
		ID:             w.ID,
		RawID:          rawID,
		PublicMaterial: material,
	}
	if w.CreatedAt != nil {
		c.CreatedAt = *w.CreatedAt
	}
	if w.IsSimulated || w.RegistrationMethod == wireMethodSimulated {
		return &SimulatedRecord{Credential: c}, nil
	}
	return &NativeRecord{Credential: c, Transports: w.Transports}, nil
}

// decodeBase64 accepts padded standard Base64 as written by this package
// and falls back to the unpadded and URL-safe alphabets.
func decodeBase64(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// Marshal encodes a directory into the persisted JSON object.
func Marshal(d Directory) ([]byte, error) {
	return marshalRetaining(d, nil)
}

// marshalRetaining encodes d and carries over the raw entries in retain
// for users that d does not hold.
func marshalRetaining(d Directory, retain map[string]json.RawMessage) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d)+len(retain))
	for user, msg := range retain {
		out[user] = msg
	}
	for user, r := range d {
		if r == nil {
			continue
		}
		w, err := encodeRecord(r)
		if err != nil {
			return nil, err
		}
		msg, err := json.Marshal(w)
		if err != nil {
			return nil, err
		}
		out[user] = msg
	}
	return json.Marshal(out)
}

// Unmarshal decodes a persisted directory. Entries that cannot be decoded
// are returned in skipped rather than failing the whole directory; a
// malformed top-level document is an error.
func Unmarshal(data []byte) (d Directory, skipped map[string]error, err error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	d = make(Directory, len(raw))
	for user, msg := range raw {
		r, err := decodeEntry(msg)
		if err != nil {
			if skipped == nil {
				skipped = make(map[string]error)
			}
			skipped[user] = err
			continue
		}
		if r != nil {
			d[user] = r
		}
	}
	return d, skipped, nil
}

// undecodable returns the raw entries of a persisted directory that
// Unmarshal skips.
func undecodable(data []byte) map[string]json.RawMessage {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	var out map[string]json.RawMessage
	for user, msg := range raw {
		if _, err := decodeEntry(msg); err == nil {
			continue
		}
		if out == nil {
			out = make(map[string]json.RawMessage)
		}
		out[user] = msg
	}
	return out
}

// decodeEntry decodes one directory entry. A JSON null yields a nil record.
func decodeEntry(msg json.RawMessage) (Record, error) {
	var w *wireRecord
	if err := json.Unmarshal(msg, &w); err != nil {
		return nil, err
	}
	if w == nil {
		return nil, nil
	}
	return decodeRecord(w)
}
