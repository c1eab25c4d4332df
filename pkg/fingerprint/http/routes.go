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

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts fingerprint routes on a chi router.
//
// Example:
//
//	handler := fingerprinthttp.NewHandler(svc)
//	r.Route("/api/v1/fingerprint", func(r chi.Router) {
//	    fingerprinthttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/register", h.Register)
	r.Post("/authenticate", h.Authenticate)
	r.Get("/status", h.Status)
	r.Get("/users", h.ListUsers)
	r.Get("/users/{user}", h.GetUser)
	r.Delete("/users/{user}", h.DeleteUser)
}

// MountStdlib mounts fingerprint routes on a stdlib http.ServeMux using
// Go 1.22 method and wildcard patterns.
//
// Example:
//
//	mux := http.NewServeMux()
//	fingerprinthttp.MountStdlib(mux, "/api/v1/fingerprint", handler)
func MountStdlib(mux *http.ServeMux, prefix string, h *Handler) {
	for _, route := range Routes() {
		mux.HandleFunc(route.Method+" "+prefix+route.Path, route.HandlerFunc(h))
	}
}

// RouteEntry describes a single route.
type RouteEntry struct {
	Method      string
	Path        string
	HandlerFunc func(h *Handler) http.HandlerFunc
}

// Routes returns all fingerprint routes for custom router integration.
func Routes() []RouteEntry {
	return []RouteEntry{
		{Method: http.MethodPost, Path: "/register", HandlerFunc: func(h *Handler) http.HandlerFunc { return h.Register }},
		{Method: http.MethodPost, Path: "/authenticate", HandlerFunc: func(h *Handler) http.HandlerFunc { return h.Authenticate }},
		{Method: http.MethodGet, Path: "/status", HandlerFunc: func(h *Handler) http.HandlerFunc { return h.Status }},
		{Method: http.MethodGet, Path: "/users", HandlerFunc: func(h *Handler) http.HandlerFunc { return h.ListUsers }},
		{Method: http.MethodGet, Path: "/users/{user}", HandlerFunc: func(h *Handler) http.HandlerFunc { return h.GetUser }},
		{Method: http.MethodDelete, Path: "/users/{user}", HandlerFunc: func(h *Handler) http.HandlerFunc { return h.DeleteUser }},
	}
}
