// Command server runs the standalone blind-signature signing server.
//
// The server holds the signing key and drives the three-leg issuance protocol
// over HTTP: POST /session, POST /challenge, POST /finalize. GET /pubkey
// returns the verification key and GET /stats the session counters.
//
// # Usage
//
//	go run ./cmd/server --addr=:8080
//	go run ./cmd/server --addr=:8080 --max-parallel=256 --sim-latency-mean=5ms
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rozbb/blindsig-benches/api/httpserver"
	"github.com/rozbb/blindsig-benches/cmd/common"
	"github.com/rozbb/blindsig-benches/server"
)

func main() {
	var (
		addr          = flag.String("addr", ":8080", "HTTP listen address")
		signingKeyHex = flag.String("signing-key", "", "signing key (hex, generates if empty)")
		schemeName    = flag.String("scheme", "schnorr", "blind signature scheme (schnorr or abe)")
		sessionTTL    = flag.Duration("session-ttl", time.Minute, "how long abandoned sessions stay reachable")
		maxParallel   = flag.Int("max-parallel", 0, "cap on live sessions, 0 for unlimited")
		simMean       = flag.Duration("sim-latency-mean", 0, "mean of simulated per-request latency, 0 disables")
		simStdDev     = flag.Duration("sim-latency-stddev", 0, "standard deviation of simulated latency")
		enablePprof   = flag.Bool("pprof", false, "enable pprof debugging endpoints")
		enableCORS    = flag.Bool("cors", false, "allow cross-origin requests to the API")
		debug         = flag.Bool("debug", false, "enable debug logging")
		logJSON       = flag.Bool("log-json", false, "log in JSON format")
	)
	flag.Parse()

	log := common.NewLogger(*debug, *logJSON)

	scheme, err := common.NewServerScheme(*schemeName, *signingKeyHex)
	if err != nil {
		fmt.Printf("Signing key error: %v\n", err)
		os.Exit(1)
	}

	signer, err := server.NewSigner(&server.Config{
		SessionTTL:          *sessionTTL,
		MaxParallelSessions: *maxParallel,
		SimLatencyMean:      *simMean,
		SimLatencyStdDev:    *simStdDev,
	}, scheme, log)
	if err != nil {
		fmt.Printf("Create signer error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Signer public key (%s): %s\n", signer.SchemeName(), hex.EncodeToString(signer.PublicKey()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signer.Start(ctx)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               *addr,
		EnablePprof:              *enablePprof,
		EnableCORS:               *enableCORS,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, server.NewHandler(signer, log))
	if err != nil {
		fmt.Printf("Create server error: %v\n", err)
		os.Exit(1)
	}

	srv.RunInBackground()
	fmt.Printf("Server listening on %s\n", *addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("Shutting down server...")
	cancel()
	srv.Shutdown()
}
