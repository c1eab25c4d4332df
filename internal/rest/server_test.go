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

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-biosecure/pkg/correlation"
	"github.com/jeremyhahn/go-biosecure/pkg/credstore"
	"github.com/jeremyhahn/go-biosecure/pkg/fingerprint"
	fingerprinthttp "github.com/jeremyhahn/go-biosecure/pkg/fingerprint/http"
	"github.com/jeremyhahn/go-biosecure/pkg/health"
	"github.com/jeremyhahn/go-biosecure/pkg/platform/platformtest"
	"github.com/jeremyhahn/go-biosecure/pkg/ratelimit"
	"github.com/jeremyhahn/go-biosecure/pkg/storage"
)

func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	backend := storage.NewMemory()
	svc, err := fingerprint.NewService(fingerprint.ServiceParams{
		Config:   &fingerprint.Config{RPID: "example.com", RPOrigins: []string{"https://example.com"}},
		Provider: platformtest.New(),
		Store:    credstore.New(backend),
	})
	require.NoError(t, err)

	checker := health.NewChecker()
	checker.RegisterCheck("storage", health.StorageCheck(backend))
	checker.RegisterCheck("platform", health.PlatformCheck(svc))

	cfg := &Config{
		Address:        "127.0.0.1:0",
		Service:        svc,
		Health:         checker,
		MetricsPath:    "/metrics",
		AllowedOrigins: []string{"https://example.com"},
	}
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { cfg.Limiter.Stop() })
	return srv
}

func post(t *testing.T, h http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, &buf))
	return rec
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = NewServer(&Config{})
	assert.ErrorContains(t, err, "fingerprint service is required")
}

func TestServer_RegisterAuthenticate(t *testing.T) {
	tokens, err := fingerprint.NewTokenIssuer(nil)
	require.NoError(t, err)
	srv := newTestServer(t, func(c *Config) { c.Tokens = tokens })
	h := srv.Handler()

	rec := post(t, h, APIPrefix+"/register", fingerprinthttp.UserRequest{User: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(correlation.CorrelationIDHeader))

	rec = post(t, h, APIPrefix+"/authenticate", fingerprinthttp.UserRequest{User: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp fingerprinthttp.AuthenticateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	claims, err := tokens.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims["sub"])
}

func TestServer_RateLimited(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.Limiter = ratelimit.New(&ratelimit.Config{Enabled: true, RequestsPerMinute: 1, Burst: 1})
	})
	h := srv.Handler()

	rec := post(t, h, APIPrefix+"/register", fingerprinthttp.UserRequest{User: "alice"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = post(t, h, APIPrefix+"/register", fingerprinthttp.UserRequest{User: "bob"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// health endpoints are not throttled
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp health.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, health.StatusHealthy, resp.Status)
	assert.Len(t, resp.Checks, 2)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "biosecure_")
}

func TestServer_CorrelationEcho(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, APIPrefix+"/status", nil)
	req.Header.Set(correlation.CorrelationIDHeader, "trace-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trace-42", rec.Header().Get(correlation.CorrelationIDHeader))
}

func TestServer_StartStop(t *testing.T) {
	srv := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	url := "http://" + ln.Addr().String() + "/health/startup"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.NoError(t, <-done)
}
