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

// Command biosecure-wasm exposes the fingerprint service to page scripts.
// It installs globalThis.biosecure with Promise-returning functions:
//
//	registerFingerprint(user)          -> true
//	authenticateWithFingerprint(user)  -> true
//	isFingerprintAvailable()           -> boolean
//	isWebAuthnRestricted()             -> boolean
//	getWebAuthnRestrictionReason()     -> string | null
//	getWebAuthnStatus()                -> {available, restricted, reason}
//
// Rejections are Error objects whose name is the fingerprint error kind.
package main

import (
	"context"
	"errors"
	"log/slog"
	"syscall/js"

	"github.com/jeremyhahn/go-biosecure/pkg/credstore"
	"github.com/jeremyhahn/go-biosecure/pkg/fingerprint"
	"github.com/jeremyhahn/go-biosecure/pkg/logging"
	"github.com/jeremyhahn/go-biosecure/pkg/metrics"
	"github.com/jeremyhahn/go-biosecure/pkg/platform/browser"
	"github.com/jeremyhahn/go-biosecure/pkg/storage"
	"github.com/jeremyhahn/go-biosecure/pkg/storage/webstorage"
)

func main() {
	metrics.Disable()
	logger := logging.New(logging.Config{Level: "warn", Format: logging.FormatText})

	svc, err := newService(logger)
	if err != nil {
		logger.Error(err)
		return
	}

	api := js.Global().Get("Object").New()
	api.Set("registerFingerprint", promiseFunc(func(ctx context.Context, args []js.Value) (interface{}, error) {
		return svc.Register(ctx, stringArg(args))
	}))
	api.Set("authenticateWithFingerprint", promiseFunc(func(ctx context.Context, args []js.Value) (interface{}, error) {
		return svc.Authenticate(ctx, stringArg(args))
	}))
	api.Set("isFingerprintAvailable", promiseFunc(func(ctx context.Context, _ []js.Value) (interface{}, error) {
		return svc.IsAvailable(ctx), nil
	}))
	api.Set("isWebAuthnRestricted", promiseFunc(func(ctx context.Context, _ []js.Value) (interface{}, error) {
		return svc.IsRestricted(ctx), nil
	}))
	api.Set("getWebAuthnRestrictionReason", promiseFunc(func(ctx context.Context, _ []js.Value) (interface{}, error) {
		if reason, ok := svc.RestrictionReason(ctx); ok {
			return reason, nil
		}
		return nil, nil
	}))
	api.Set("getWebAuthnStatus", promiseFunc(func(ctx context.Context, _ []js.Value) (interface{}, error) {
		status := svc.Status(ctx)
		return map[string]interface{}{
			"available":  status.Available,
			"restricted": status.Restricted,
			"reason":     status.Reason,
		}, nil
	}))
	js.Global().Set("biosecure", api)

	logger.Info("biosecure bridge ready")
	select {}
}

// newService builds the service against the page origin. Credentials live
// in localStorage, or in memory when the origin has storage disabled.
func newService(logger *logging.Logger) (*fingerprint.Service, error) {
	location := js.Global().Get("location")
	cfg := fingerprint.DefaultConfig(location.Get("hostname").String())
	cfg.RPOrigins = []string{location.Get("origin").String()}

	var backend storage.Backend
	local, err := webstorage.NewLocal()
	switch {
	case err == nil:
		backend = local
	case errors.Is(err, storage.ErrUnavailable):
		logger.Warn("localStorage unavailable, credentials will not persist", slog.Any("error", err))
		backend = storage.NewMemory()
	default:
		return nil, err
	}

	return fingerprint.NewService(fingerprint.ServiceParams{
		Config:   cfg,
		Provider: browser.New(),
		Store:    credstore.New(backend, credstore.WithLogger(logger)),
		Logger:   logger,
	})
}

type handler func(ctx context.Context, args []js.Value) (interface{}, error)

// promiseFunc wraps fn as a JavaScript function returning a Promise. fn
// runs on its own goroutine because it may await other promises.
func promiseFunc(fn handler) js.Func {
	return js.FuncOf(func(_ js.Value, args []js.Value) interface{} {
		executor := js.FuncOf(func(_ js.Value, p []js.Value) interface{} {
			resolve, reject := p[0], p[1]
			go func() {
				v, err := fn(context.Background(), args)
				if err != nil {
					reject.Invoke(jsError(err))
					return
				}
				resolve.Invoke(v)
			}()
			return nil
		})
		defer executor.Release()
		return js.Global().Get("Promise").New(executor)
	})
}

func jsError(err error) js.Value {
	e := js.Global().Get("Error").New(err.Error())
	e.Set("name", fingerprint.Kind(err))
	return e
}

func stringArg(args []js.Value) string {
	if len(args) == 0 || args[0].Type() != js.TypeString {
		return ""
	}
	return args[0].String()
}
