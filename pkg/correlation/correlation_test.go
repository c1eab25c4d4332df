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

package correlation

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-biosecure/pkg/logging"
)

func TestWithCorrelationID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		id   string
	}{
		{name: "background context", ctx: context.Background(), id: "test-correlation-id"},
		{name: "nil context", ctx: nil, id: "test-correlation-id-2"},
		{name: "empty id", ctx: context.Background(), id: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithCorrelationID(tt.ctx, tt.id)
			require.NotNil(t, ctx)
			assert.Equal(t, tt.id, GetCorrelationID(ctx))
		})
	}
}

func TestGetCorrelationID_Missing(t *testing.T) {
	assert.Empty(t, GetCorrelationID(nil)) //nolint:staticcheck
	assert.Empty(t, GetCorrelationID(context.Background()))
	assert.Empty(t, GetCorrelationID(context.WithValue(context.Background(), CorrelationIDKey, 42)))
}

func TestNewID(t *testing.T) {
	id := NewID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewID())
}

func TestGetOrGenerate(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "existing")
	assert.Equal(t, "existing", GetOrGenerate(ctx))

	_, err := uuid.Parse(GetOrGenerate(context.Background()))
	assert.NoError(t, err)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: "info", Format: logging.FormatJSON, Output: &buf})

	Logger(context.Background(), logger).Info("plain")
	assert.NotContains(t, buf.String(), LogField)

	buf.Reset()
	Logger(WithCorrelationID(context.Background(), "abc"), logger).Info("traced")
	assert.Contains(t, buf.String(), `"correlation_id":"abc"`)
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "correlation header", headers: map[string]string{CorrelationIDHeader: "corr-1"}, want: "corr-1"},
		{name: "request header", headers: map[string]string{RequestIDHeader: "req-1"}, want: "req-1"},
		{name: "correlation wins", headers: map[string]string{CorrelationIDHeader: "corr-2", RequestIDHeader: "req-2"}, want: "corr-2"},
		{name: "generated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetCorrelationID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if tt.want != "" {
				assert.Equal(t, tt.want, seen)
			} else {
				_, err := uuid.Parse(seen)
				assert.NoError(t, err)
			}
			assert.Equal(t, seen, rec.Header().Get(CorrelationIDHeader))
		})
	}
}
