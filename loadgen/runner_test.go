package loadgen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rozbb/blindsig-benches/blindsig"
	"github.com/rozbb/blindsig-benches/results"
)

func TestRunnerSingleLevel(t *testing.T) {
	_, handler := setupTestSigner(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Levels = []int{1}
	cfg.RequestsPerLevel = 100

	client, err := NewClient(cfg, srv.URL)
	require.NoError(t, err)

	agg := results.NewAggregator()
	summary, err := NewRunner(cfg, client, agg, nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Records, 1)
	require.Equal(t, blindsig.SchemeSchnorr, summary.Scheme)
	rec := summary.Records[0]
	require.Equal(t, 1, rec.Level)
	require.Equal(t, 100, rec.Count)
	require.Equal(t, 0, rec.FailureCount)
	require.Greater(t, rec.P50, time.Duration(0))
}

func TestRunnerSweep(t *testing.T) {
	_, handler := setupTestSigner(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Levels = []int{1, 2, 4, 8, 16}
	cfg.RequestsPerLevel = 32

	client, err := NewClient(cfg, srv.URL)
	require.NoError(t, err)

	agg := results.NewAggregator()
	summary, err := NewRunner(cfg, client, agg, nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Records, 5)
	for i, level := range cfg.Levels {
		require.Equal(t, level, summary.Records[i].Level)
		require.Equal(t, 32, summary.Records[i].Count)
		require.Equal(t, 0, summary.Records[i].FailureCount)
	}
}

func TestRunnerAbortsWhenEverythingFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	signer, _ := setupTestSigner(t)
	cfg := testConfig(srv.URL)
	cfg.Levels = []int{2}
	cfg.RequestsPerLevel = 4
	client := &Client{
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		baseURL: srv.URL,
		scheme:  testScheme(t, signer),
		backoff: cfg.backoff(),
		msg:     []byte(cfg.Message),
	}

	agg := results.NewAggregator()
	_, err := NewRunner(cfg, client, agg, nil).Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "all 4 round-trips failed")
}

func TestRunnerHonorsCancellation(t *testing.T) {
	_, handler := setupTestSigner(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Levels = []int{2}
	cfg.RequestsPerLevel = 10000

	client, err := NewClient(cfg, srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	agg := results.NewAggregator()
	_, err = NewRunner(cfg, client, agg, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunnerWithInterarrivalPacing(t *testing.T) {
	_, handler := setupTestSigner(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Levels = []int{4}
	cfg.RequestsPerLevel = 16
	cfg.InterarrivalMean = time.Millisecond

	client, err := NewClient(cfg, srv.URL)
	require.NoError(t, err)

	agg := results.NewAggregator()
	summary, err := NewRunner(cfg, client, agg, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 16, summary.Records[0].Count)
}
