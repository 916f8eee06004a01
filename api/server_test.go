package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aulalab/maisa/internal/log"
)

func newTestServer(t *testing.T, replier Replier) *Server {
	t.Helper()
	s, err := NewServer(Config{Sessions: replier, Logger: log.NewNop()})
	require.NoError(t, err)
	return s
}

func TestNewServer_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Config{Logger: log.NewNop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session replier is required")

	_, err = NewServer(Config{Sessions: &stubReplier{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger is required")
}

func TestServer_Routes(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubReplier{reply: "hello"})
	handler := s.Handler()

	t.Run("chat round trip", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPost, "/api/chat",
			strings.NewReader(`{"session_id":"s-1","message":"hi"}`))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp ChatResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "hello", resp.Reply)
	})

	t.Run("chat rejects GET", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("liveness", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", w.Body.String())
	})

	t.Run("readiness without pool", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("unknown route", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/nope", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
