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

// Package metrics provides Prometheus instrumentation for fingerprint
// registration and authentication. Collection can be switched off at
// runtime; every recorder is then a no-op.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace prefixes every metric name.
	Namespace = "biosecure"

	LabelOperation  = "operation"
	LabelPath       = "path"
	LabelStatus     = "status"
	LabelReason     = "reason"
	LabelCondition  = "condition"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	StatusSuccess = "success"
	StatusError   = "error"

	OpRegister     = "register"
	OpAuthenticate = "authenticate"
	OpUnregister   = "unregister"

	// PathNative and PathSimulated name the branch that completed an
	// operation. PathNone is used when validation failed first.
	PathNative    = "native"
	PathSimulated = "simulated"
	PathNone      = "none"
)

var (
	// OperationsTotal counts operations by name, completing path and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total fingerprint operations by operation, path and status",
		},
		[]string{LabelOperation, LabelPath, LabelStatus},
	)

	// OperationDuration observes end-to-end operation latency. Native
	// ceremonies wait on the user, so buckets reach one minute.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of fingerprint operations in seconds",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{LabelOperation, LabelPath},
	)

	// FallbacksTotal counts switches to the simulated path by reason:
	// a restriction condition or a platform error class.
	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fallbacks_total",
			Help:      "Total fallbacks to simulated credentials by operation and reason",
		},
		[]string{LabelOperation, LabelReason},
	)

	// RestrictionChecksTotal counts restriction evaluations by outcome.
	RestrictionChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "restriction_checks_total",
			Help:      "Total restriction evaluations by resulting condition",
		},
		[]string{LabelCondition},
	)

	// HTTPRequestsTotal counts API requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration observes API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// RegisteredUsers is the directory size split by registration method.
	RegisteredUsers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "registered_users",
			Help:      "Number of registered users by registration method",
		},
		[]string{LabelMethod},
	)

	// Goroutines is refreshed by ResourceCollector.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes is refreshed by ResourceCollector.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	// ServerUptime is refreshed by ResourceCollector.
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records a completed operation.
//
// Example:
//
//	start := time.Now()
//	ok, err := svc.Register(ctx, user)
//	metrics.RecordOperation(metrics.OpRegister, metrics.PathSimulated,
//	    metrics.StatusSuccess, time.Since(start).Seconds())
func RecordOperation(operation, path, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, path, status).Inc()
	OperationDuration.WithLabelValues(operation, path).Observe(duration)
}

// RecordFallback records a switch to the simulated path.
func RecordFallback(operation, reason string) {
	if !enabled.Load() {
		return
	}
	FallbacksTotal.WithLabelValues(operation, reason).Inc()
}

// RecordRestrictionCheck records a restriction evaluation. An empty
// condition is recorded as "none".
func RecordRestrictionCheck(condition string) {
	if !enabled.Load() {
		return
	}
	if condition == "" {
		condition = "none"
	}
	RestrictionChecksTotal.WithLabelValues(condition).Inc()
}

// RecordHTTPRequest records an API request.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// SetRegisteredUsers sets the directory size gauge for a method.
func SetRegisteredUsers(method string, count int) {
	if !enabled.Load() {
		return
	}
	RegisteredUsers.WithLabelValues(method).Set(float64(count))
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
