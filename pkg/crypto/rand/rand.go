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

// Package rand supplies the random bytes used for ceremony challenges,
// simulated credential identifiers and authenticator keys.
//
// Applications create a Resolver at startup and share it:
//
//	rng, _ := rand.NewResolver(rand.ModeSoftware)
//	challenge, _ := rng.Rand(32)
//
// A Resolver is an io.Reader, so it can be handed to ecdsa.GenerateKey.
// Tests that need repeatable output wrap a fixed stream with FromReader.
package rand

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Mode selects the entropy source.
type Mode string

const (
	// ModeSoftware uses crypto/rand. In a browser this is
	// crypto.getRandomValues.
	ModeSoftware Mode = "software"
)

// Resolver produces random bytes. Implementations are safe for concurrent
// use.
type Resolver interface {
	// Rand returns n random bytes.
	Rand(n int) ([]byte, error)

	// Read implements io.Reader.
	Read(p []byte) (int, error)

	// Available reports whether the source can produce output.
	Available() bool

	// Close releases resources held by the source.
	Close() error
}

// NewResolver returns a Resolver for mode. An empty mode means software.
func NewResolver(mode Mode) (Resolver, error) {
	switch mode {
	case "", ModeSoftware:
		return Software(), nil
	default:
		return nil, fmt.Errorf("unknown RNG mode: %s", mode)
	}
}

// Software returns the crypto/rand backed resolver.
func Software() Resolver {
	return &readerResolver{r: rand.Reader}
}

// FromReader returns a Resolver that draws from r.
func FromReader(r io.Reader) Resolver {
	return &readerResolver{r: r}
}

type readerResolver struct {
	r io.Reader
}

func (s *readerResolver) Rand(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("rand: negative length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return nil, fmt.Errorf("rand: %w", err)
	}
	return buf, nil
}

func (s *readerResolver) Read(p []byte) (int, error) {
	return io.ReadFull(s.r, p)
}

func (s *readerResolver) Available() bool {
	return s.r != nil
}

func (s *readerResolver) Close() error {
	return nil
}
