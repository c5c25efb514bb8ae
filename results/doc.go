// Package results collects per-round-trip latency samples from the load
// generator and folds them into per-concurrency-level summary statistics.
//
// Samples are immutable once submitted; finalizing a level is a pure fold
// (sort + order-statistic percentiles via tachymeter). Failed round-trips are
// counted but excluded from the latency percentiles. The exported summary is
// a stable JSON shape consumed by the external plotting step.
package results
