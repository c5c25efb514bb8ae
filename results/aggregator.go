package results

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamiealquiza/tachymeter"
)

// Outcome classifies a completed or abandoned round-trip.
type Outcome int

const (
	// Success means the round-trip completed and the signature verified.
	Success Outcome = iota

	// Failure means the round-trip was abandoned (retries exhausted or a
	// protocol error).
	Failure
)

// Sample is one timed round-trip. Elapsed covers the three protocol legs;
// whether backoff waits are included is the harness's documented choice.
type Sample struct {
	Level   int
	Elapsed time.Duration
	Outcome Outcome
	Retries int
}

// Record is the aggregate for one concurrency level. Latency fields cover
// successful round-trips only.
type Record struct {
	Level        int           `json:"level"`
	Count        int           `json:"count"`
	FailureCount int           `json:"failure_count"`
	Retries      int           `json:"retries"`
	Mean         time.Duration `json:"mean_ns"`
	P50          time.Duration `json:"p50_ns"`
	P95          time.Duration `json:"p95_ns"`
	P99          time.Duration `json:"p99_ns"`
	Min          time.Duration `json:"min_ns"`
	Max          time.Duration `json:"max_ns"`
}

// Summary is the exported artifact: one record per swept concurrency level.
type Summary struct {
	GeneratedAt time.Time `json:"generated_at"`
	Scheme      string    `json:"scheme,omitempty"`
	Records     []Record  `json:"records"`
}

// Aggregator is the sample sink shared by all workers. Submission is a short
// mutex-guarded append so it never becomes the benchmark's own bottleneck.
type Aggregator struct {
	mu      sync.Mutex
	samples map[int][]Sample
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{samples: make(map[int][]Sample)}
}

// Submit records a sample. Safe for concurrent callers; the sample is owned
// by the aggregator afterwards.
func (a *Aggregator) Submit(s Sample) {
	a.mu.Lock()
	a.samples[s.Level] = append(a.samples[s.Level], s)
	a.mu.Unlock()
}

// Levels returns the concurrency levels with at least one sample, ascending.
func (a *Aggregator) Levels() []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	levels := make([]int, 0, len(a.samples))
	for level := range a.samples {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	return levels
}

// Finalize folds all samples for the level into a Record. Percentiles are
// order statistics over the sorted successful latencies.
func (a *Aggregator) Finalize(level int) (Record, error) {
	a.mu.Lock()
	samples := a.samples[level]
	a.mu.Unlock()

	if len(samples) == 0 {
		return Record{}, fmt.Errorf("no samples for concurrency level %d", level)
	}

	rec := Record{Level: level, Count: len(samples)}

	var ok int
	for _, s := range samples {
		rec.Retries += s.Retries
		if s.Outcome == Failure {
			rec.FailureCount++
			continue
		}
		ok++
	}
	if ok == 0 {
		return rec, nil
	}

	tm := tachymeter.New(&tachymeter.Config{Size: ok})
	for _, s := range samples {
		if s.Outcome == Success {
			tm.AddTime(s.Elapsed)
		}
	}

	metrics := tm.Calc()
	rec.Mean = metrics.Time.Avg
	rec.P50 = metrics.Time.P50
	rec.P95 = metrics.Time.P95
	rec.P99 = metrics.Time.P99
	rec.Min = metrics.Time.Min
	rec.Max = metrics.Time.Max
	return rec, nil
}

// Export finalizes every level and returns the summary, one record per level
// in ascending level order.
func (a *Aggregator) Export() (*Summary, error) {
	summary := &Summary{GeneratedAt: time.Now().UTC()}
	for _, level := range a.Levels() {
		rec, err := a.Finalize(level)
		if err != nil {
			return nil, err
		}
		summary.Records = append(summary.Records, rec)
	}
	return summary, nil
}
