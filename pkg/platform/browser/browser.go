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

//go:build js && wasm

package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/jeremyhahn/go-biosecure/pkg/platform"
)

// Provider answers probes from the browser globals and runs ceremonies
// through navigator.credentials.
type Provider struct {
	global js.Value
}

// New returns a Provider over globalThis.
func New() *Provider {
	return &Provider{global: js.Global()}
}

// Supported reports whether window.PublicKeyCredential is defined.
func (p *Provider) Supported() bool {
	return defined(p.global.Get("PublicKeyCredential"))
}

// Permission asks document.featurePolicy (or document.permissionsPolicy)
// whether feature is allowed. Without either interface the answer is
// PermissionUnknown.
func (p *Provider) Permission(_ context.Context, feature string) (state platform.PermissionState, err error) {
	defer recoverJS(&err)

	doc := p.global.Get("document")
	if !defined(doc) {
		return platform.PermissionUnknown, nil
	}
	policy := doc.Get("featurePolicy")
	if !defined(policy) {
		policy = doc.Get("permissionsPolicy")
	}
	if !defined(policy) || policy.Get("allowsFeature").Type() != js.TypeFunction {
		return platform.PermissionUnknown, nil
	}
	if policy.Call("allowsFeature", feature).Bool() {
		return platform.PermissionGranted, nil
	}
	return platform.PermissionDenied, nil
}

// TopLevel compares window.self with window.top. A cross-origin top
// window that throws on access is returned as an error.
func (p *Provider) TopLevel(_ context.Context) (top bool, err error) {
	defer recoverJS(&err)

	self := p.global.Get("self")
	parent := p.global.Get("top")
	if !defined(parent) {
		return true, nil
	}
	return self.Equal(parent), nil
}

// PlatformAuthenticatorAvailable awaits
// PublicKeyCredential.isUserVerifyingPlatformAuthenticatorAvailable().
func (p *Provider) PlatformAuthenticatorAvailable(ctx context.Context) (ok bool, err error) {
	defer recoverJS(&err)

	pkc := p.global.Get("PublicKeyCredential")
	if !defined(pkc) {
		return false, nil
	}
	fn := pkc.Get("isUserVerifyingPlatformAuthenticatorAvailable")
	if fn.Type() != js.TypeFunction {
		return false, nil
	}
	v, err := await(ctx, pkc.Call("isUserVerifyingPlatformAuthenticatorAvailable"), nil)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

// Create calls navigator.credentials.create with opts.
func (p *Provider) Create(ctx context.Context, opts *protocol.PublicKeyCredentialCreationOptions) (data *protocol.ParsedCredentialCreationData, err error) {
	defer recoverJS(&err)

	if opts == nil {
		return nil, platform.NewError(platform.NameNotSupported, "missing creation options")
	}
	publicKey, err := toJS(opts)
	if err != nil {
		return nil, err
	}
	publicKey.Set("challenge", bytesToJS(opts.Challenge))
	publicKey.Get("user").Set("id", bytesToJS(platform.UserHandle(opts)))
	if exclude := publicKey.Get("excludeCredentials"); defined(exclude) {
		for i, c := range opts.CredentialExcludeList {
			exclude.Index(i).Set("id", bytesToJS(c.CredentialID))
		}
	}

	cred, err := p.ceremony(ctx, "create", publicKey)
	if err != nil {
		return nil, err
	}
	response := cred.Get("response")
	a := &attestation{
		ID:                cred.Get("id").String(),
		RawID:             bytesFromJS(cred.Get("rawId")),
		Type:              cred.Get("type").String(),
		Attachment:        optionalString(cred.Get("authenticatorAttachment")),
		ClientDataJSON:    bytesFromJS(response.Get("clientDataJSON")),
		AttestationObject: bytesFromJS(response.Get("attestationObject")),
	}
	if response.Get("getTransports").Type() == js.TypeFunction {
		transports := response.Call("getTransports")
		for i := 0; i < transports.Length(); i++ {
			a.Transports = append(a.Transports, transports.Index(i).String())
		}
	}
	return parseAttestation(a)
}

// Get calls navigator.credentials.get with opts.
func (p *Provider) Get(ctx context.Context, opts *protocol.PublicKeyCredentialRequestOptions) (data *protocol.ParsedCredentialAssertionData, err error) {
	defer recoverJS(&err)

	if opts == nil {
		return nil, platform.NewError(platform.NameNotSupported, "missing request options")
	}
	publicKey, err := toJS(opts)
	if err != nil {
		return nil, err
	}
	publicKey.Set("challenge", bytesToJS(opts.Challenge))
	if allow := publicKey.Get("allowCredentials"); defined(allow) {
		for i, c := range opts.AllowedCredentials {
			allow.Index(i).Set("id", bytesToJS(c.CredentialID))
		}
	}

	cred, err := p.ceremony(ctx, "get", publicKey)
	if err != nil {
		return nil, err
	}
	response := cred.Get("response")
	a := &assertion{
		ID:                cred.Get("id").String(),
		RawID:             bytesFromJS(cred.Get("rawId")),
		Type:              cred.Get("type").String(),
		Attachment:        optionalString(cred.Get("authenticatorAttachment")),
		ClientDataJSON:    bytesFromJS(response.Get("clientDataJSON")),
		AuthenticatorData: bytesFromJS(response.Get("authenticatorData")),
		Signature:         bytesFromJS(response.Get("signature")),
		UserHandle:        bytesFromJS(response.Get("userHandle")),
	}
	return parseAssertion(a)
}

// ceremony invokes navigator.credentials[method] and aborts it through an
// AbortController when ctx ends first.
func (p *Provider) ceremony(ctx context.Context, method string, publicKey js.Value) (js.Value, error) {
	credentials := p.global.Get("navigator").Get("credentials")
	if !defined(credentials) {
		return js.Undefined(), platform.NewError(platform.NameNotSupported, "navigator.credentials is not available")
	}

	request := js.Global().Get("Object").New()
	request.Set("publicKey", publicKey)

	var abort func()
	if ctrl := p.global.Get("AbortController"); defined(ctrl) {
		controller := ctrl.New()
		request.Set("signal", controller.Get("signal"))
		abort = func() { controller.Call("abort") }
	}

	cred, err := await(ctx, credentials.Call(method, request), abort)
	if err != nil {
		return js.Undefined(), err
	}
	if !defined(cred) {
		return js.Undefined(), platform.NewError(platform.NameNotAllowed, "no credential returned")
	}
	return cred, nil
}

// await blocks until promise settles or ctx ends. On cancellation abort
// is called when set.
func await(ctx context.Context, promise js.Value, abort func()) (js.Value, error) {
	type settled struct {
		value js.Value
		err   error
	}
	done := make(chan settled, 1)

	onResolve := js.FuncOf(func(_ js.Value, args []js.Value) interface{} {
		v := js.Undefined()
		if len(args) > 0 {
			v = args[0]
		}
		done <- settled{value: v}
		return nil
	})
	defer onResolve.Release()

	onReject := js.FuncOf(func(_ js.Value, args []js.Value) interface{} {
		err := domError("", "promise rejected")
		if len(args) > 0 && defined(args[0]) {
			reason := args[0]
			err = domError(optionalString(reason.Get("name")), optionalString(reason.Get("message")))
		}
		done <- settled{err: err}
		return nil
	})
	defer onReject.Release()

	promise.Call("then", onResolve, onReject)

	select {
	case s := <-done:
		return s.value, s.err
	case <-ctx.Done():
		if abort != nil {
			abort()
		}
		return js.Undefined(), &platform.Error{Name: platform.NameNotAllowed, Message: "ceremony canceled", Err: ctx.Err()}
	}
}

// toJS converts v to a plain JavaScript object through its JSON form.
func toJS(v interface{}) (js.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return js.Undefined(), &platform.Error{Name: platform.NameNotSupported, Message: "encode options", Err: err}
	}
	return js.Global().Get("JSON").Call("parse", string(b)), nil
}

func bytesToJS(b []byte) js.Value {
	u := js.Global().Get("Uint8Array").New(len(b))
	js.CopyBytesToJS(u, b)
	return u
}

// bytesFromJS copies an ArrayBuffer or typed array. Null and undefined
// yield nil.
func bytesFromJS(v js.Value) []byte {
	if !defined(v) {
		return nil
	}
	u := js.Global().Get("Uint8Array").New(v)
	b := make([]byte, u.Get("length").Int())
	js.CopyBytesToGo(b, u)
	return b
}

func optionalString(v js.Value) string {
	if v.Type() != js.TypeString {
		return ""
	}
	return v.String()
}

func defined(v js.Value) bool {
	return !v.IsUndefined() && !v.IsNull()
}

// recoverJS converts a thrown JavaScript exception into a platform error.
func recoverJS(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if jsErr, ok := r.(js.Error); ok {
		*err = domError(optionalString(jsErr.Value.Get("name")), optionalString(jsErr.Value.Get("message")))
		return
	}
	*err = platform.NewError(platform.NameUnknown, fmt.Sprint(r))
}

var _ platform.Provider = (*Provider)(nil)
