// Package common provides shared utilities for the benchmark CLI commands.
//
// This package contains helpers used by both the server and bench binaries:
// signing key loading and structured logger construction.
package common

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/rozbb/blindsig-benches/blindsig"
)

// NewServerScheme builds the named blind signature scheme from a hex-encoded
// signing key. An empty key generates a fresh key pair; an empty name means
// blind Schnorr.
func NewServerScheme(name, hexKey string) (blindsig.ServerScheme, error) {
	var keyBytes []byte
	if hexKey != "" {
		var err error
		keyBytes, err = hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
	}
	return blindsig.NewServerScheme(name, keyBytes)
}

// NewLogger builds the slog logger the commands share. Debug lowers the
// level, json switches to machine-readable output.
func NewLogger(debug, json bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
