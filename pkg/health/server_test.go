package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, active StatusFunc) *Server {
	t.Helper()
	s, err := NewServer(ServerOptions{Host: "127.0.0.1", Port: 8080}, nil, active, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestNewServer(t *testing.T) {
	t.Run("requires a session reporter", func(t *testing.T) {
		_, err := NewServer(ServerOptions{}, nil, nil, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("applies defaults", func(t *testing.T) {
		s, err := NewServer(ServerOptions{}, nil, func() int { return 0 }, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:8080", s.Addr())
	})
}

func TestHandleRoot(t *testing.T) {
	s := newTestServer(t, func() int { return 0 })

	t.Run("answers the keep-alive ping", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.handleRoot(rec, httptest.NewRequest("GET", "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "I'm alive!", rec.Body.String())
	})

	t.Run("unknown paths 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.handleRoot(rec, httptest.NewRequest("GET", "/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, func() int { return 3 })

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["activeSessions"])
	assert.NotZero(t, body["timestamp"])

	t.Run("rejects non-GET", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.handleHealth(rec, httptest.NewRequest("POST", "/health", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestShutdownRejectsRequests(t *testing.T) {
	s := newTestServer(t, func() int { return 0 })
	s.isShuttingDown = true

	rec := httptest.NewRecorder()
	s.handleRoot(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
