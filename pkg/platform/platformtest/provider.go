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

// Package platformtest provides a deterministic platform.Provider for tests.
// Every probe answer and ceremony outcome is programmable, and every
// ceremony request is recorded.
package platformtest

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/jeremyhahn/go-biosecure/pkg/platform"
)

// Provider is a programmable platform.Provider. The zero value is not
// usable; construct with New.
type Provider struct {
	mu sync.Mutex

	supported     bool
	permission    platform.PermissionState
	permissionErr error
	topLevel      bool
	topLevelErr   error
	available     bool
	availableErr  error
	createErr     error
	getErr        error
	createFunc    CreateFunc
	getFunc       GetFunc

	creates []*protocol.PublicKeyCredentialCreationOptions
	gets    []*protocol.PublicKeyCredentialRequestOptions
}

// CreateFunc replaces the canned creation result.
type CreateFunc func(ctx context.Context, opts *protocol.PublicKeyCredentialCreationOptions) (*protocol.ParsedCredentialCreationData, error)

// GetFunc replaces the canned assertion result.
type GetFunc func(ctx context.Context, opts *protocol.PublicKeyCredentialRequestOptions) (*protocol.ParsedCredentialAssertionData, error)

// Option configures a Provider.
type Option func(*Provider)

// New returns a Provider for an unrestricted environment with a working
// platform authenticator. Options adjust individual answers.
func New(opts ...Option) *Provider {
	p := &Provider{
		supported:  true,
		permission: platform.PermissionGranted,
		topLevel:   true,
		available:  true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Unsupported makes the capability absent.
func Unsupported() Option {
	return func(p *Provider) { p.supported = false }
}

// WithPermission sets the permissions-policy answer.
func WithPermission(state platform.PermissionState, err error) Option {
	return func(p *Provider) { p.permission, p.permissionErr = state, err }
}

// Embedded reports a non-top-level context.
func Embedded() Option {
	return func(p *Provider) { p.topLevel = false }
}

// WithTopLevelError makes the embedding probe fail.
func WithTopLevelError(err error) Option {
	return func(p *Provider) { p.topLevelErr = err }
}

// WithAuthenticator sets the platform authenticator probe answer.
func WithAuthenticator(available bool, err error) Option {
	return func(p *Provider) { p.available, p.availableErr = available, err }
}

// WithCreateError makes every Create fail with err.
func WithCreateError(err error) Option {
	return func(p *Provider) { p.createErr = err }
}

// WithGetError makes every Get fail with err.
func WithGetError(err error) Option {
	return func(p *Provider) { p.getErr = err }
}

// WithCreateFunc delegates Create to fn.
func WithCreateFunc(fn CreateFunc) Option {
	return func(p *Provider) { p.createFunc = fn }
}

// WithGetFunc delegates Get to fn.
func WithGetFunc(fn GetFunc) Option {
	return func(p *Provider) { p.getFunc = fn }
}

// Set applies options to an existing Provider.
func (p *Provider) Set(opts ...Option) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, opt := range opts {
		opt(p)
	}
}

func (p *Provider) Supported() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.supported
}

func (p *Provider) Permission(_ context.Context, _ string) (platform.PermissionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission, p.permissionErr
}

func (p *Provider) TopLevel(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.topLevel, p.topLevelErr
}

func (p *Provider) PlatformAuthenticatorAvailable(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available, p.availableErr
}

// Create records opts and returns the programmed outcome. Without an error
// or CreateFunc it returns a credential whose ID is derived from the user
// handle.
func (p *Provider) Create(ctx context.Context, opts *protocol.PublicKeyCredentialCreationOptions) (*protocol.ParsedCredentialCreationData, error) {
	p.mu.Lock()
	p.creates = append(p.creates, opts)
	fn, err := p.createFunc, p.createErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, opts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return CannedCredential(platform.UserHandle(opts)), nil
}

// Get records opts and returns the programmed outcome. Without an error or
// GetFunc it asserts the first allowed credential.
func (p *Provider) Get(ctx context.Context, opts *protocol.PublicKeyCredentialRequestOptions) (*protocol.ParsedCredentialAssertionData, error) {
	p.mu.Lock()
	p.gets = append(p.gets, opts)
	fn, err := p.getFunc, p.getErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, opts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rawID []byte
	if len(opts.AllowedCredentials) > 0 {
		rawID = opts.AllowedCredentials[0].CredentialID
	}
	data := &protocol.ParsedCredentialAssertionData{}
	data.ID = base64.RawURLEncoding.EncodeToString(rawID)
	data.Type = string(protocol.PublicKeyCredentialType)
	data.RawID = rawID
	data.Response.AuthenticatorData.Flags = protocol.FlagUserPresent | protocol.FlagUserVerified
	return data, nil
}

// CreateCalls returns the recorded creation requests.
func (p *Provider) CreateCalls() []*protocol.PublicKeyCredentialCreationOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*protocol.PublicKeyCredentialCreationOptions(nil), p.creates...)
}

// GetCalls returns the recorded assertion requests.
func (p *Provider) GetCalls() []*protocol.PublicKeyCredentialRequestOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*protocol.PublicKeyCredentialRequestOptions(nil), p.gets...)
}

// CannedCredential builds a parsed creation result whose raw ID is the
// first 16 bytes of SHA-256(userHandle).
func CannedCredential(userHandle []byte) *protocol.ParsedCredentialCreationData {
	sum := sha256.Sum256(userHandle)
	rawID := sum[:16]
	attestation := append([]byte{0xa3}, sum[16:]...)

	data := &protocol.ParsedCredentialCreationData{}
	data.ID = base64.RawURLEncoding.EncodeToString(rawID)
	data.Type = string(protocol.PublicKeyCredentialType)
	data.RawID = rawID
	data.AuthenticatorAttachment = protocol.Platform
	data.Response.Transports = []protocol.AuthenticatorTransport{protocol.Internal}
	data.Raw.ID = data.ID
	data.Raw.Type = data.Type
	data.Raw.RawID = rawID
	data.Raw.AttestationResponse.AttestationObject = attestation
	data.Raw.AttestationResponse.Transports = []string{string(protocol.Internal)}
	return data
}

var _ platform.Provider = (*Provider)(nil)
