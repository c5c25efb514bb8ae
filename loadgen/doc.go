// Package loadgen drives the blind-signature server with controlled
// concurrency and measures per-round-trip latency.
//
// A Runner sweeps a list of concurrency levels. For each level it runs that
// many workers on a goroutine pool; every worker loops pulling from a shared
// request quota and performing one full three-leg issuance round-trip
// (session, challenge, finalize) with the blinding and unblinding done
// locally. Transient transport failures (connection refused or reset, busy
// responses) are retried under exponential backoff; by default the time
// spent waiting in backoff is excluded from the reported latency so the
// numbers reflect steady-state server cost rather than listen-backlog noise.
//
// Workers share nothing but the results.Aggregator sink.
package loadgen
