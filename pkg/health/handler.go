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

package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Response is the body of every health endpoint.
type Response struct {
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	Checks  []CheckResult `json:"checks,omitempty"`
}

// Mount registers /health, /health/live, /health/ready and /health/startup
// on r.
func Mount(r chi.Router, c *Checker) {
	r.Get("/health", c.ReadinessHandler)
	r.Head("/health", c.ReadinessHandler)
	r.Get("/health/live", c.LivenessHandler)
	r.Get("/health/ready", c.ReadinessHandler)
	r.Get("/health/startup", c.StartupHandler)
}

// LivenessHandler handles GET /health/live.
func (c *Checker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	result := c.Live(r.Context())
	writeJSON(w, statusCode(result.Status), Response{Status: result.Status, Message: result.Message})
}

// ReadinessHandler handles GET /health/ready. Degraded still answers 200.
func (c *Checker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	results := c.Ready(r.Context())
	overall := AggregateStatus(results)

	resp := Response{Status: overall, Checks: results}
	switch overall {
	case StatusHealthy:
		resp.Message = "All checks passed"
	case StatusDegraded:
		resp.Message = "Service is degraded"
	case StatusUnhealthy:
		resp.Message = "One or more checks failed"
	}
	writeJSON(w, statusCode(overall), resp)
}

// StartupHandler handles GET /health/startup.
func (c *Checker) StartupHandler(w http.ResponseWriter, r *http.Request) {
	result := c.Startup(r.Context())
	writeJSON(w, statusCode(result.Status), Response{Status: result.Status, Message: result.Message})
}

func statusCode(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
