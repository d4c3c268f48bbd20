package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timchenkailiang/bilibili-live-bot/pkg/log"
)

func TestHTTPMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var inner string
	handler := log.HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The request-scoped logger carries the request fields.
		log.Ctx(r.Context()).Info().Msg("handled")
		inner = buf.String()
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	reqID := rec.Header().Get("X-Request-ID")
	require.NotEmpty(t, reqID)
	require.Contains(t, inner, reqID)
	require.Contains(t, inner, `"path":"/healthz"`)

	var entry struct {
		RequestID string `json:"request_id"`
		Status    int    `json:"status"`
		Message   string `json:"message"`
	}
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	require.Equal(t, reqID, entry.RequestID)
	require.Equal(t, http.StatusNoContent, entry.Status)
	require.Equal(t, "request completed", entry.Message)
}

func TestHTTPMiddlewareKeepsCallerRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := log.HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	require.Contains(t, buf.String(), `"request_id":"req-123"`)
}

func TestCtxFallsBackToGlobal(t *testing.T) {
	require.Equal(t, log.L(), log.Ctx(context.Background()))
}
