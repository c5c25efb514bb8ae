// Package cmd provides the CLI commands for the blind-signature benchmark.
//
// # Commands
//
// server: Runs the standalone signing server. The bench command talks to it
// over HTTP, or you can poke it by hand with curl.
//
//	go run ./cmd/server --addr=:8080
//	go run ./cmd/server --addr=:8080 --max-parallel=256 --sim-latency-mean=5ms
//
// bench: Runs the latency sweep against a signer and writes the aggregate
// summary as JSON for the plotting step. With --self-host it spins up an
// in-process signer so a single command produces numbers.
//
//	go run ./cmd/bench --server=http://localhost:8080 --out=summary.json
//	go run ./cmd/bench --self-host --out=summary.json
//	go run ./cmd/bench --config=bench.yaml --postgres-dsn="postgres://..."
//
// # Configuration
//
// The bench command reads a YAML config via --config; command-line flags
// override config file values. Example:
//
//	server_url: "http://localhost:8080"
//	levels: [1, 2, 4, 8, 16]
//	requests_per_level: 100
//	message: "Hello world"
//	backoff_base: 75ms
//	backoff_max: 2s
//	max_attempts: 5
package cmd
