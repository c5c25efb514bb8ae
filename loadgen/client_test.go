package loadgen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/rozbb/blindsig-benches/blindsig"
	"github.com/rozbb/blindsig-benches/server"
)

func setupTestSigner(t *testing.T) (*server.Signer, http.Handler) {
	t.Helper()
	return setupTestSignerScheme(t, nil)
}

func setupTestSignerScheme(t *testing.T, scheme blindsig.ServerScheme) (*server.Signer, http.Handler) {
	t.Helper()

	signer, err := server.NewSigner(&server.Config{SessionTTL: time.Minute}, scheme, nil)
	require.NoError(t, err)

	router := chi.NewRouter()
	server.NewHandler(signer, nil).RegisterRoutes(router)
	return signer, router
}

// testScheme builds the client half matching a signer's key, for tests that
// construct a Client by hand.
func testScheme(t *testing.T, signer *server.Signer) blindsig.ClientScheme {
	t.Helper()
	scheme, err := blindsig.NewClientScheme(signer.SchemeName(), signer.PublicKey())
	require.NoError(t, err)
	return scheme
}

func testConfig(url string) *Config {
	cfg := DefaultConfig()
	cfg.ServerURL = url
	cfg.BackoffBase = 20 * time.Millisecond
	cfg.BackoffMax = 100 * time.Millisecond
	cfg.JitterFrac = 0
	return cfg
}

func TestRoundTrip(t *testing.T) {
	_, handler := setupTestSigner(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), srv.URL)
	require.NoError(t, err)

	elapsed, retries, err := client.RoundTrip(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, retries)
	require.Greater(t, elapsed, time.Duration(0))
}

func TestRoundTripWithAbeScheme(t *testing.T) {
	scheme, err := blindsig.NewServerScheme(blindsig.SchemeAbe, nil)
	require.NoError(t, err)
	_, handler := setupTestSignerScheme(t, scheme)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Scheme = blindsig.SchemeAbe
	client, err := NewClient(cfg, srv.URL)
	require.NoError(t, err)
	require.Equal(t, blindsig.SchemeAbe, client.SchemeName())

	_, retries, err := client.RoundTrip(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, retries)
}

func TestClientRejectsSchemeMismatch(t *testing.T) {
	scheme, err := blindsig.NewServerScheme(blindsig.SchemeAbe, nil)
	require.NoError(t, err)
	_, handler := setupTestSignerScheme(t, scheme)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	// Default config expects Schnorr; the signer announces Abe.
	_, err = NewClient(testConfig(srv.URL), srv.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "scheme")
}

func TestRoundTripRetriesTransientFailure(t *testing.T) {
	_, handler := setupTestSigner(t)

	// Reject the first session request with a busy response; everything
	// after goes through.
	failures := atomic.NewInt64(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session" && failures.Dec() >= 0 {
			http.Error(w, "busy", http.StatusTooManyRequests)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), srv.URL)
	require.NoError(t, err)

	elapsed, retries, err := client.RoundTrip(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, retries)
	// The 20ms backoff sleep must not show up in the reported latency.
	require.Less(t, elapsed, 20*time.Millisecond)
}

func TestRoundTripIncludesBackoffWaitWhenAsked(t *testing.T) {
	_, handler := setupTestSigner(t)

	failures := atomic.NewInt64(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session" && failures.Dec() >= 0 {
			http.Error(w, "busy", http.StatusTooManyRequests)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.IncludeBackoffWait = true
	client, err := NewClient(cfg, srv.URL)
	require.NoError(t, err)

	elapsed, retries, err := client.RoundTrip(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, retries)
	require.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestRoundTripExhaustsRetryBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	signer, _ := setupTestSigner(t)
	cfg := testConfig(srv.URL)
	cfg.MaxAttempts = 3
	client := &Client{
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		baseURL: srv.URL,
		scheme:  testScheme(t, signer),
		backoff: cfg.backoff(),
		msg:     []byte(cfg.Message),
	}

	_, retries, err := client.RoundTrip(context.Background())
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, 2, retries)
}

func TestRoundTripProtocolViolationNotRetried(t *testing.T) {
	requests := atomic.NewInt64(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Inc()
		http.Error(w, "no such session", http.StatusNotFound)
	}))
	defer srv.Close()

	signer, _ := setupTestSigner(t)
	cfg := testConfig(srv.URL)
	client := &Client{
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		baseURL: srv.URL,
		scheme:  testScheme(t, signer),
		backoff: cfg.backoff(),
		msg:     []byte(cfg.Message),
	}

	_, retries, err := client.RoundTrip(context.Background())
	require.ErrorIs(t, err, ErrProtocolViolation)
	require.Equal(t, 0, retries)
	require.Equal(t, int64(1), requests.Load())
}

func TestRoundTripConnectionRefusedIsTransient(t *testing.T) {
	signer, _ := setupTestSigner(t)
	cfg := testConfig("http://127.0.0.1:1")
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffMax = 2 * time.Millisecond
	cfg.MaxAttempts = 2
	client := &Client{
		http:    &http.Client{Timeout: time.Second},
		baseURL: "http://127.0.0.1:1",
		scheme:  testScheme(t, signer),
		backoff: cfg.backoff(),
		msg:     []byte(cfg.Message),
	}

	_, retries, err := client.RoundTrip(context.Background())
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, 1, retries)
}
