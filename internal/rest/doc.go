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

// Package rest serves the fingerprint API over HTTP.
//
// The server mounts the fingerprint handler under /api/v1/fingerprint
// behind per-client rate limiting, exposes Kubernetes-style health probes
// under /health and Prometheus metrics under /metrics, and tags every
// request with a correlation ID that also appears in service log lines.
package rest
