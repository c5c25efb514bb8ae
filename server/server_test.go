package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/rozbb/blindsig-benches/blindsig"
	"github.com/rozbb/blindsig-benches/session"
)

func setupTestSigner(t *testing.T, cfg *Config) *Signer {
	if cfg == nil {
		cfg = &Config{SessionTTL: time.Minute}
	}
	signer, err := NewSigner(cfg, nil, nil)
	require.NoError(t, err)
	return signer
}

// signerPub parses the signer's wire-encoded Schnorr public key.
func signerPub(t *testing.T, signer *Signer) *blindsig.PublicKey {
	t.Helper()
	pub, err := blindsig.NewPublicKeyFromBytes(signer.PublicKey())
	require.NoError(t, err)
	return pub
}

// Drives the full three-leg protocol through the signer API.
func issueSignature(t *testing.T, signer *Signer, msg []byte) (string, bool) {
	ctx := context.Background()

	id, commitment, err := signer.InitSession(ctx)
	require.NoError(t, err)

	state, blinded, err := blindsig.Blind(signerPub(t, signer), msg, commitment)
	require.NoError(t, err)

	response, err := signer.IssueChallenge(ctx, id, blinded)
	require.NoError(t, err)

	sig, err := blindsig.Unblind(signerPub(t, signer), state, response)
	require.NoError(t, err)

	verified, err := signer.Finalize(ctx, id, msg, sig)
	require.NoError(t, err)
	return id, verified
}

func TestFullIssuance(t *testing.T) {
	signer := setupTestSigner(t, nil)

	_, verified := issueSignature(t, signer, []byte("Hello world"))
	require.True(t, verified)

	stats := signer.Stats()
	require.Equal(t, int64(1), stats.Sessions.Created)
	require.Equal(t, int64(1), stats.Sessions.Finalized)
	require.Equal(t, int64(0), stats.Sessions.Active)
}

func TestSessionIDsAreUnique(t *testing.T) {
	signer := setupTestSigner(t, nil)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, _, err := signer.InitSession(ctx)
		require.NoError(t, err)
		require.False(t, seen[id], "session id reused: %s", id)
		seen[id] = true
	}
}

func TestChallengeWrongState(t *testing.T) {
	signer := setupTestSigner(t, nil)
	ctx := context.Background()

	id, commitment, err := signer.InitSession(ctx)
	require.NoError(t, err)

	_, blinded, err := blindsig.Blind(signerPub(t, signer), []byte("m"), commitment)
	require.NoError(t, err)

	_, err = signer.IssueChallenge(ctx, id, blinded)
	require.NoError(t, err)

	// Replaying leg 2 is a stale transition.
	_, err = signer.IssueChallenge(ctx, id, blinded)
	require.ErrorIs(t, err, session.ErrStaleSession)
}

func TestFinalizeBeforeChallenge(t *testing.T) {
	signer := setupTestSigner(t, nil)
	ctx := context.Background()

	id, _, err := signer.InitSession(ctx)
	require.NoError(t, err)

	sig := &blindsig.Signature{
		Commitment: make([]byte, blindsig.ValueSize),
		Response:   make([]byte, blindsig.ValueSize),
	}
	_, err = signer.Finalize(ctx, id, []byte("m"), sig)
	require.ErrorIs(t, err, session.ErrStaleSession)
}

func TestUnknownSession(t *testing.T) {
	signer := setupTestSigner(t, nil)
	ctx := context.Background()

	_, err := signer.IssueChallenge(ctx, "no-such-session", make([]byte, blindsig.ValueSize))
	require.ErrorIs(t, err, session.ErrUnknownSession)
}

func TestVerificationFailureStillConsumesSession(t *testing.T) {
	signer := setupTestSigner(t, nil)
	ctx := context.Background()

	id, commitment, err := signer.InitSession(ctx)
	require.NoError(t, err)

	_, blinded, err := blindsig.Blind(signerPub(t, signer), []byte("m"), commitment)
	require.NoError(t, err)

	_, err = signer.IssueChallenge(ctx, id, blinded)
	require.NoError(t, err)

	// A forged signature: valid encodings, wrong equation.
	_, forgedPub := blindsig.GenerateKey()
	forged := &blindsig.Signature{
		Commitment: forgedPub.Bytes(),
		Response:   blinded,
	}

	verified, err := signer.Finalize(ctx, id, []byte("m"), forged)
	require.NoError(t, err)
	require.False(t, verified)

	// Single-use: the session is gone, retrying is a protocol violation.
	_, err = signer.Finalize(ctx, id, []byte("m"), forged)
	require.ErrorIs(t, err, session.ErrUnknownSession)
}

func TestMalformedChallenge(t *testing.T) {
	signer := setupTestSigner(t, nil)
	ctx := context.Background()

	id, _, err := signer.InitSession(ctx)
	require.NoError(t, err)

	_, err = signer.IssueChallenge(ctx, id, []byte("short"))
	require.ErrorIs(t, err, blindsig.ErrMalformedInput)

	// The malformed input must not have advanced the session.
	require.Equal(t, 1, signer.Store().Len())
}

func TestMaxParallelSessions(t *testing.T) {
	signer := setupTestSigner(t, &Config{
		SessionTTL:          time.Minute,
		MaxParallelSessions: 2,
	})
	ctx := context.Background()

	_, _, err := signer.InitSession(ctx)
	require.NoError(t, err)
	id2, _, err := signer.InitSession(ctx)
	require.NoError(t, err)

	_, _, err = signer.InitSession(ctx)
	require.ErrorIs(t, err, ErrServerBusy)
	require.Equal(t, int64(1), signer.Stats().BusyRejected)

	// Finishing a session frees a slot.
	signer.Store().Remove(id2)
	_, _, err = signer.InitSession(ctx)
	require.NoError(t, err)
}

// The cap must hold even when leg 1 requests race: with maxLive live slots,
// N concurrent inits admit exactly maxLive sessions.
func TestConcurrentInitSessionsRespectCap(t *testing.T) {
	const maxLive = 3
	signer := setupTestSigner(t, &Config{
		SessionTTL:          time.Minute,
		MaxParallelSessions: maxLive,
	})
	ctx := context.Background()

	const n = 24
	admitted := atomic.NewInt64(0)
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, _, err := signer.InitSession(ctx)
			if err == nil {
				admitted.Inc()
			}
			done <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			require.ErrorIs(t, err, ErrServerBusy)
		}
	}

	require.Equal(t, int64(maxLive), admitted.Load())
	require.Equal(t, maxLive, signer.Store().Len())
	require.Equal(t, int64(n-maxLive), signer.Stats().BusyRejected)
}

func TestFullIssuanceWithAbeScheme(t *testing.T) {
	scheme, err := blindsig.NewServerScheme(blindsig.SchemeAbe, nil)
	require.NoError(t, err)
	signer, err := NewSigner(&Config{SessionTTL: time.Minute}, scheme, nil)
	require.NoError(t, err)
	require.Equal(t, blindsig.SchemeAbe, signer.SchemeName())

	client, err := blindsig.NewClientScheme(blindsig.SchemeAbe, signer.PublicKey())
	require.NoError(t, err)

	ctx := context.Background()
	msg := []byte("Hello world")

	id, commitment, err := signer.InitSession(ctx)
	require.NoError(t, err)

	state, blinded, err := client.Blind(msg, commitment)
	require.NoError(t, err)

	response, err := signer.IssueChallenge(ctx, id, blinded)
	require.NoError(t, err)

	sig, err := client.Unblind(state, msg, response)
	require.NoError(t, err)

	verified, err := signer.Finalize(ctx, id, msg, sig)
	require.NoError(t, err)
	require.True(t, verified)
}

func TestConcurrentFinalizeExactlyOneSucceeds(t *testing.T) {
	signer := setupTestSigner(t, nil)
	ctx := context.Background()
	msg := []byte("contested")

	id, commitment, err := signer.InitSession(ctx)
	require.NoError(t, err)

	state, blinded, err := blindsig.Blind(signerPub(t, signer), msg, commitment)
	require.NoError(t, err)

	response, err := signer.IssueChallenge(ctx, id, blinded)
	require.NoError(t, err)

	sig, err := blindsig.Unblind(signerPub(t, signer), state, response)
	require.NoError(t, err)

	const n = 16
	successes := atomic.NewInt64(0)
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			verified, err := signer.Finalize(ctx, id, msg, sig)
			if err == nil && verified {
				successes.Inc()
			}
			done <- err
		}()
	}

	var violations int
	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			require.True(t,
				err == session.ErrStaleSession || err == session.ErrUnknownSession,
				"unexpected error: %v", err)
			violations++
		}
	}

	require.Equal(t, int64(1), successes.Load())
	require.Equal(t, n-1, violations)
}

func TestExpiredSessionRejected(t *testing.T) {
	signer := setupTestSigner(t, &Config{SessionTTL: 10 * time.Millisecond})
	ctx := context.Background()

	id, commitment, err := signer.InitSession(ctx)
	require.NoError(t, err)

	_, blinded, err := blindsig.Blind(signerPub(t, signer), []byte("m"), commitment)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = signer.IssueChallenge(ctx, id, blinded)
	require.ErrorIs(t, err, session.ErrUnknownSession)
}
