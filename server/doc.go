// Package server implements the HTTP-facing blind-signature signer.
//
// The signer sequences the three protocol legs per session:
//
//	POST /session   → hand out a commitment and a fresh session id
//	POST /challenge → answer the blinded challenge (consumes the nonce)
//	POST /finalize  → verify the unblinded signature (single-use)
//
// Per-session state lives in a session.Store; handlers never hold any
// cross-session lock, so throughput under concurrent load is bounded by the
// crypto and the store's per-entry transitions, which is exactly what the
// load-generation harness measures.
package server
