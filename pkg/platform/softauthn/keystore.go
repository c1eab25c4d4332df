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
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/youmark/pkcs8"

	"github.com/jeremyhahn/go-biosecure/pkg/storage"
)

// storedKey is the persisted form of one credential.
type storedKey struct {
	RPID       string    `json:"rpId"`
	UserHandle []byte    `json:"userHandle"`
	PrivateKey []byte    `json:"privateKey"`
	Encrypted  bool      `json:"encrypted"`
	SignCount  uint32    `json:"signCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// keyStore persists credential private keys as PKCS#8 DER, encrypted with
// the passphrase when one is configured.
type keyStore struct {
	backend    storage.Backend
	passphrase []byte
}

func keyID(credID []byte) string {
	return base64.RawURLEncoding.EncodeToString(credID)
}

func (ks *keyStore) save(credID []byte, sk *storedKey, priv *ecdsa.PrivateKey) error {
	if priv != nil {
		der, err := pkcs8.MarshalPrivateKey(priv, ks.passphrase, nil)
		if err != nil {
			return fmt.Errorf("softauthn: encode private key: %w", err)
		}
		sk.PrivateKey = der
		sk.Encrypted = len(ks.passphrase) > 0
	}
	data, err := json.Marshal(sk)
	if err != nil {
		return fmt.Errorf("softauthn: encode key record: %w", err)
	}
	return ks.backend.Put(storage.AuthenticatorKeyPath(keyID(credID)), data, storage.DefaultOptions())
}

// load returns the record and decrypted private key for credID.
func (ks *keyStore) load(credID []byte) (*storedKey, *ecdsa.PrivateKey, error) {
	data, err := ks.backend.Get(storage.AuthenticatorKeyPath(keyID(credID)))
	if err != nil {
		return nil, nil, err
	}
	var sk storedKey
	if err := json.Unmarshal(data, &sk); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", storage.ErrInvalidData, err)
	}

	var priv *ecdsa.PrivateKey
	if sk.Encrypted {
		if len(ks.passphrase) == 0 {
			return nil, nil, ErrLocked
		}
		priv, err = pkcs8.ParsePKCS8PrivateKeyECDSA(sk.PrivateKey, ks.passphrase)
	} else {
		priv, err = pkcs8.ParsePKCS8PrivateKeyECDSA(sk.PrivateKey)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("softauthn: decode private key: %w", err)
	}
	return &sk, priv, nil
}

func (ks *keyStore) exists(credID []byte) bool {
	ok, err := ks.backend.Exists(storage.AuthenticatorKeyPath(keyID(credID)))
	return err == nil && ok
}

// find returns the first stored credential ID for rpID, trying the allow
// list in order when it is not empty.
func (ks *keyStore) find(rpID string, allowed [][]byte) ([]byte, error) {
	if len(allowed) > 0 {
		for _, id := range allowed {
			sk, _, err := ks.load(id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if sk.RPID == rpID {
				return id, nil
			}
		}
		return nil, storage.ErrNotFound
	}

	ids, err := storage.ListAuthenticatorKeys(ks.backend)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		credID, err := base64.RawURLEncoding.DecodeString(id)
		if err != nil {
			continue
		}
		sk, _, err := ks.load(credID)
		if err != nil {
			continue
		}
		if sk.RPID == rpID {
			return credID, nil
		}
	}
	return nil, storage.ErrNotFound
}
