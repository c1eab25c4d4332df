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

// Package http exposes the fingerprint service over HTTP.
//
// # Usage
//
//	handler := fingerprinthttp.NewHandler(svc).WithTokenIssuer(tokens)
//
//	// For chi router:
//	r.Route("/api/v1/fingerprint", func(r chi.Router) {
//	    fingerprinthttp.MountChi(r, handler)
//	})
//
//	// For stdlib http.ServeMux (Go 1.22+):
//	fingerprinthttp.MountStdlib(mux, "/api/v1/fingerprint", handler)
//
// # Endpoints
//
//	POST   /register          register {"user": ...}
//	POST   /authenticate      authenticate {"user": ...}, returns a token
//	GET    /status            restriction detector answers
//	GET    /users             registered identifiers
//	GET    /users/{user}      credential summary
//	DELETE /users/{user}      remove a credential
//
// Errors use ErrorResponse with 400 for an empty identifier, 409 for a
// repeated registration, 404 for an unknown user and 503 for strict-mode
// native failures.
package http
