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

package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 10})
	defer limiter.Stop()

	stats := limiter.Stats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, 10, stats.Burst)
	assert.InDelta(t, 60.0, stats.RatePerMin, 0.001)
	assert.Zero(t, stats.ActiveKeys)
}

func TestNew_BurstDefaultsToRate(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 30})
	defer limiter.Stop()
	assert.Equal(t, 30, limiter.Stats().Burst)
}

func TestAllow_Burst(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 1, Burst: 3})
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("alice"), "attempt %d", i+1)
	}
	assert.False(t, limiter.Allow("alice"))
	assert.True(t, limiter.Allow("bob"), "keys are independent")
	assert.Equal(t, 2, limiter.Stats().ActiveKeys)
}

func TestDisabled(t *testing.T) {
	for _, limiter := range []*Limiter{New(nil), New(&Config{RequestsPerMinute: 1})} {
		for i := 0; i < 50; i++ {
			require.True(t, limiter.Allow("alice"))
		}
		assert.Zero(t, limiter.Reserve("alice"))
		assert.NoError(t, limiter.Wait(context.Background(), "alice"))
		assert.False(t, limiter.IsEnabled())
		limiter.Stop()
	}
}

func TestReserve(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 1})
	defer limiter.Stop()

	assert.Zero(t, limiter.Reserve("alice"))
	delay := limiter.Reserve("alice")
	assert.Greater(t, delay, time.Duration(0))
	assert.LessOrEqual(t, delay, time.Second)
}

func TestWait_Canceled(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 1, Burst: 1})
	defer limiter.Stop()

	require.NoError(t, limiter.Wait(context.Background(), "alice"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx, "alice"))
}

func TestCleanup(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60, MaxIdle: time.Minute})
	defer limiter.Stop()

	limiter.Allow("alice")
	limiter.cleanup(time.Now())
	assert.Equal(t, 1, limiter.Stats().ActiveKeys)

	limiter.cleanup(time.Now().Add(2 * time.Minute))
	assert.Zero(t, limiter.Stats().ActiveKeys)
}

func TestStopTwice(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60})
	limiter.Stop()
	assert.NotPanics(t, limiter.Stop)
}

func TestMiddleware(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 2})
	defer limiter.Stop()

	handler := Middleware(limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/register", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5678").Code)

	rec := send("10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")

	assert.Equal(t, http.StatusOK, send("10.0.0.2:1234").Code)
}

func TestMiddleware_CustomKey(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 1})
	defer limiter.Stop()

	byHeader := func(r *http.Request) string { return r.Header.Get("X-User") }
	handler := Middleware(limiter, byHeader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, tc := range []struct {
		user string
		want int
	}{
		{"alice", http.StatusOK},
		{"alice", http.StatusTooManyRequests},
		{"bob", http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodPost, "/authenticate", nil)
		req.Header.Set("X-User", tc.user)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, tc.user)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{name: "remote addr", remoteAddr: "192.168.1.1:1234", want: "192.168.1.1"},
		{name: "remote addr without port", remoteAddr: "192.168.1.1", want: "192.168.1.1"},
		{name: "forwarded for", headers: map[string]string{"X-Forwarded-For": "10.0.0.1"}, remoteAddr: "192.168.1.1:1234", want: "10.0.0.1"},
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, remoteAddr: "192.168.1.1:1234", want: "10.0.0.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": " 10.0.0.3 "}, remoteAddr: "192.168.1.1:1234", want: "10.0.0.3"},
		{name: "ipv6", remoteAddr: "[::1]:8080", want: "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
