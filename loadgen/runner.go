package loadgen

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/atomic"

	"github.com/rozbb/blindsig-benches/results"
)

// Runner sweeps the configured concurrency levels against one signer,
// feeding every round-trip into the aggregator.
type Runner struct {
	cfg    *Config
	client *Client
	agg    *results.Aggregator
	log    *slog.Logger
}

// NewRunner wires a runner to a client and an aggregator sink.
func NewRunner(cfg *Config, client *Client, agg *results.Aggregator, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{cfg: cfg, client: client, agg: agg, log: log}
}

// Run executes the full sweep. Levels run sequentially so they never contend
// with each other; within a level, the workers drain a shared quota so
// exactly RequestsPerLevel round-trips are attempted no matter how unevenly
// the levels divide the work.
func (r *Runner) Run(ctx context.Context) (*results.Summary, error) {
	for _, level := range r.cfg.Levels {
		r.log.Info("starting level", "level", level, "requests", r.cfg.RequestsPerLevel)

		failures, err := r.runLevel(ctx, level)
		if err != nil {
			return nil, err
		}
		if failures == r.cfg.RequestsPerLevel {
			return nil, fmt.Errorf("level %d: all %d round-trips failed, server unreachable or misconfigured",
				level, failures)
		}

		r.log.Info("level complete", "level", level, "failures", failures)
	}

	summary, err := r.agg.Export()
	if err != nil {
		return nil, err
	}
	summary.Scheme = r.client.SchemeName()
	return summary, nil
}

func (r *Runner) runLevel(ctx context.Context, level int) (int, error) {
	quota := atomic.NewInt64(int64(r.cfg.RequestsPerLevel))
	failures := atomic.NewInt64(0)

	p := pool.New().WithMaxGoroutines(level)
	for w := 0; w < level; w++ {
		p.Go(func() {
			r.worker(ctx, level, quota, failures)
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int(failures.Load()), nil
}

// worker loops until the level's quota is drained. Each iteration is one
// complete issuance round-trip; a failed round-trip (retry budget spent or
// protocol rejection) still consumes quota and is recorded as a failure.
func (r *Runner) worker(ctx context.Context, level int, quota, failures *atomic.Int64) {
	for quota.Dec() >= 0 {
		if ctx.Err() != nil {
			return
		}

		if r.cfg.InterarrivalMean > 0 {
			pause := time.Duration(rand.ExpFloat64() * float64(r.cfg.InterarrivalMean))
			select {
			case <-time.After(pause):
			case <-ctx.Done():
				return
			}
		}

		elapsed, retries, err := r.client.RoundTrip(ctx)
		sample := results.Sample{
			Level:   level,
			Elapsed: elapsed,
			Outcome: results.Success,
			Retries: retries,
		}
		if err != nil {
			sample.Outcome = results.Failure
			failures.Inc()
			r.log.Warn("round-trip failed", "level", level, "err", err)
		}
		r.agg.Submit(sample)
	}
}
