// Command bench runs the blind-signature latency sweep.
//
// It drives full issuance round-trips against a signer at each configured
// concurrency level, prints a summary table, and writes the aggregate records
// as JSON for the plotting step. Results can additionally be stored in
// PostgreSQL for comparison across runs.
//
// # Usage
//
//	go run ./cmd/bench --server=http://localhost:8080 --out=summary.json
//	go run ./cmd/bench --self-host --out=summary.json
//	go run ./cmd/bench --config=bench.yaml --postgres-dsn="postgres://..."
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rozbb/blindsig-benches/api/httpserver"
	"github.com/rozbb/blindsig-benches/blindsig"
	"github.com/rozbb/blindsig-benches/cmd/common"
	"github.com/rozbb/blindsig-benches/loadgen"
	"github.com/rozbb/blindsig-benches/results"
	"github.com/rozbb/blindsig-benches/server"
)

func main() {
	var (
		configPath   = flag.String("config", "", "YAML config file")
		serverURL    = flag.String("server", "", "signer base URL, overrides config")
		schemeName   = flag.String("scheme", "", "blind signature scheme (schnorr or abe), overrides config")
		outPath      = flag.String("out", "summary.json", "output path for the JSON summary")
		postgresDSN  = flag.String("postgres-dsn", "", "also store results in PostgreSQL")
		selfHost     = flag.Bool("self-host", false, "run an in-process signer instead of connecting to one")
		selfHostAddr = flag.String("self-host-addr", "127.0.0.1:8089", "listen address for the in-process signer")
		debug        = flag.Bool("debug", false, "enable debug logging")
		logJSON      = flag.Bool("log-json", false, "log in JSON format")
	)
	flag.Parse()

	log := common.NewLogger(*debug, *logJSON)

	cfg := loadgen.DefaultConfig()
	if *configPath != "" {
		loaded, err := loadgen.LoadConfig(*configPath)
		if err != nil {
			fmt.Printf("Config error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *schemeName != "" {
		cfg.Scheme = *schemeName
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *selfHost {
		url, shutdown, err := startSelfHosted(ctx, *selfHostAddr, cfg.Scheme, log)
		if err != nil {
			fmt.Printf("Self-hosted signer error: %v\n", err)
			os.Exit(1)
		}
		defer shutdown()
		cfg.ServerURL = url
	}
	if cfg.ServerURL == "" {
		fmt.Println("Error: --server, server_url in config, or --self-host is required")
		os.Exit(1)
	}

	client, err := loadgen.NewClient(cfg, cfg.ServerURL)
	if err != nil {
		fmt.Printf("Connecting to signer: %v\n", err)
		os.Exit(1)
	}

	agg := results.NewAggregator()
	summary, err := loadgen.NewRunner(cfg, client, agg, log).Run(ctx)
	if err != nil {
		fmt.Printf("Benchmark failed: %v\n", err)
		os.Exit(1)
	}

	printSummary(summary)

	if err := (&results.FileStore{Path: *outPath}).SaveSummary(summary); err != nil {
		fmt.Printf("Writing summary: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Summary written to %s\n", *outPath)

	if *postgresDSN != "" {
		store, err := results.NewPostgresStore(*postgresDSN)
		if err != nil {
			fmt.Printf("Connecting to PostgreSQL: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		if err := store.SaveSummary(summary); err != nil {
			fmt.Printf("Storing summary: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Summary stored in PostgreSQL")
	}
}

// startSelfHosted runs a signer in-process so the bench needs no separate
// server. Loopback keeps the network out of the measurement.
func startSelfHosted(ctx context.Context, addr, schemeName string, log *slog.Logger) (string, func(), error) {
	scheme, err := blindsig.NewServerScheme(schemeName, nil)
	if err != nil {
		return "", nil, err
	}
	signer, err := server.NewSigner(&server.Config{SessionTTL: time.Minute}, scheme, log)
	if err != nil {
		return "", nil, err
	}
	signer.Start(ctx)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               addr,
		Log:                      log,
		GracefulShutdownDuration: 5 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, server.NewHandler(signer, log))
	if err != nil {
		return "", nil, err
	}

	srv.RunInBackground()
	// Give the listener a moment before the client fetches the public key.
	time.Sleep(100 * time.Millisecond)

	return "http://" + addr, srv.Shutdown, nil
}

func printSummary(summary *results.Summary) {
	fmt.Printf("Scheme: %s\n", summary.Scheme)
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tCOUNT\tFAIL\tRETRIES\tMEAN\tP50\tP95\tP99\tMIN\tMAX")
	for _, rec := range summary.Records {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Level, rec.Count, rec.FailureCount, rec.Retries,
			rec.Mean.Round(time.Microsecond),
			rec.P50.Round(time.Microsecond),
			rec.P95.Round(time.Microsecond),
			rec.P99.Round(time.Microsecond),
			rec.Min.Round(time.Microsecond),
			rec.Max.Round(time.Microsecond),
		)
	}
	w.Flush()
}
