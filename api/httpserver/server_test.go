package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type pingRegistrar struct{}

func (pingRegistrar) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("pong"))
	})
}

func setupTestServer(t *testing.T) *BaseServer {
	t.Helper()
	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, pingRegistrar{})
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	srv := setupTestServer(t)

	require.Equal(t, http.StatusOK, get(t, srv.srv.Handler, "/livez").Code)
	require.Equal(t, http.StatusOK, get(t, srv.srv.Handler, "/readyz").Code)
	require.Equal(t, http.StatusOK, get(t, srv.srv.Handler, "/ping").Code)
}

func TestDrainUndrain(t *testing.T) {
	srv := setupTestServer(t)

	require.Equal(t, http.StatusOK, get(t, srv.srv.Handler, "/drain").Code)
	require.Equal(t, http.StatusServiceUnavailable, get(t, srv.srv.Handler, "/readyz").Code)

	require.Equal(t, http.StatusOK, get(t, srv.srv.Handler, "/undrain").Code)
	require.Equal(t, http.StatusOK, get(t, srv.srv.Handler, "/readyz").Code)
}
