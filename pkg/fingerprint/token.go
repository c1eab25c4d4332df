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
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	cryptorand "crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token claim names beyond the registered JWT claims.
const (
	ClaimMethod = "method"
)

// TokenIssuer signs session tokens for authenticated users.
type TokenIssuer struct {
	privateKey *ecdsa.PrivateKey
	issuer     string
	audience   []string
	expiresIn  time.Duration
	keyID      string
}

// TokenConfig contains configuration for a TokenIssuer.
type TokenConfig struct {
	// PrivateKey signs tokens with ES256. A P-256 key is generated when nil.
	PrivateKey *ecdsa.PrivateKey

	// Issuer is the iss claim (default: "go-biosecure")
	Issuer string

	// Audience is the aud claim (default: ["go-biosecure"])
	Audience []string

	// ExpiresIn is how long tokens are valid (default: 1 hour)
	ExpiresIn time.Duration

	// KeyID is placed in the kid header when set
	KeyID string
}

// NewTokenIssuer creates a TokenIssuer from config.
func NewTokenIssuer(config *TokenConfig) (*TokenIssuer, error) {
	if config == nil {
		config = &TokenConfig{}
	}

	key := config.PrivateKey
	if key == nil {
		k, err := ecdsa.GenerateKey(elliptic.P256(), cryptorand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate token key: %w", err)
		}
		key = k
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("token key must use P-256")
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = "go-biosecure"
	}
	audience := config.Audience
	if len(audience) == 0 {
		audience = []string{"go-biosecure"}
	}
	expiresIn := config.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	return &TokenIssuer{
		privateKey: key,
		issuer:     issuer,
		audience:   audience,
		expiresIn:  expiresIn,
		keyID:      config.KeyID,
	}, nil
}

// Issue returns a signed token whose subject is user. method records how
// the credential was registered.
func (t *TokenIssuer) Issue(user, method string) (string, error) {
	if user == "" {
		return "", ErrInvalidInput
	}
	now := time.Now()

	claims := jwt.MapClaims{
		"iss":       t.issuer,
		"aud":       t.audience,
		"sub":       user,
		"iat":       now.Unix(),
		"exp":       now.Add(t.expiresIn).Unix(),
		"nbf":       now.Unix(),
		ClaimMethod: method,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	if t.keyID != "" {
		token.Header["kid"] = t.keyID
	}
	signed, err := token.SignedString(t.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, issuer, audience and expiry of tokenString
// and returns its claims.
func (t *TokenIssuer) Verify(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) {
			return &t.privateKey.PublicKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience[0]),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	return claims, nil
}

// PublicKey returns the key that verifies issued tokens.
func (t *TokenIssuer) PublicKey() crypto.PublicKey {
	return &t.privateKey.PublicKey
}

// ExpiresIn returns the token lifetime.
func (t *TokenIssuer) ExpiresIn() time.Duration {
	return t.expiresIn
}
