package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/rozbb/blindsig-benches/blindsig"
	"github.com/rozbb/blindsig-benches/session"
)

// ErrServerBusy indicates the parallel-session cap was hit on leg 1. Clients
// treat it as transient and retry with backoff.
var ErrServerBusy = errors.New("server: too many parallel sessions")

// Config contains signer configuration.
type Config struct {
	// SessionTTL is how long an abandoned session stays reachable.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// ExpiryInterval is how often the expiry sweep runs. Defaults to
	// SessionTTL when zero.
	ExpiryInterval time.Duration `yaml:"expiry_interval"`

	// MaxParallelSessions caps live sessions; 0 means unlimited. Leg 1
	// requests beyond the cap get a busy response.
	MaxParallelSessions int `yaml:"max_parallel_sessions"`

	// SimLatencyMean/SimLatencyStdDev add a normally distributed pause to
	// every request, modeling network distance to the signer. Zero disables.
	SimLatencyMean   time.Duration `yaml:"sim_latency_mean"`
	SimLatencyStdDev time.Duration `yaml:"sim_latency_stddev"`
}

// Signer drives the per-session protocol state machine for one blind
// signature scheme. All mutable state is in the session store.
type Signer struct {
	cfg    *Config
	scheme blindsig.ServerScheme
	store  *session.Store
	log    *slog.Logger

	busyRejected atomic.Int64
}

// NewSigner creates a signer for the given scheme. A nil scheme gets a blind
// Schnorr signer with a fresh key.
func NewSigner(cfg *Config, scheme blindsig.ServerScheme, log *slog.Logger) (*Signer, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if scheme == nil {
		priv, _ := blindsig.GenerateKey()
		scheme = blindsig.NewSchnorrServer(priv)
	}

	return &Signer{
		cfg:    cfg,
		scheme: scheme,
		store:  session.NewStore(cfg.SessionTTL),
		log:    log,
	}, nil
}

// PublicKey returns the wire encoding of the signer's public key.
func (s *Signer) PublicKey() []byte {
	return s.scheme.PublicKeyBytes()
}

// SchemeName returns the name of the scheme this signer runs.
func (s *Signer) SchemeName() string {
	return s.scheme.Name()
}

// Store exposes the session store for stats and tests.
func (s *Signer) Store() *session.Store {
	return s.store
}

// Start launches the background expiry sweep.
func (s *Signer) Start(ctx context.Context) {
	interval := s.cfg.ExpiryInterval
	if interval <= 0 {
		interval = s.cfg.SessionTTL
	}
	if interval <= 0 {
		return
	}
	go s.store.RunExpiry(ctx, interval)
}

// InitSession handles leg 1: generate the session secret and commitment,
// store the secret under a fresh unguessable id. The parallel-session cap is
// enforced atomically with the insert.
func (s *Signer) InitSession(ctx context.Context) (string, []byte, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", nil, fmt.Errorf("generating session id: %w", err)
	}

	secret, commitment := s.scheme.InitSession()
	if err := s.store.InsertCapped(id.String(), secret, s.cfg.MaxParallelSessions); err != nil {
		secret.Zero()
		if errors.Is(err, session.ErrStoreFull) {
			s.busyRejected.Inc()
			return "", nil, ErrServerBusy
		}
		// CSPRNG-derived ids must not collide.
		return "", nil, fmt.Errorf("inserting session: %w", err)
	}

	s.simulateLatency()
	return id.String(), commitment, nil
}

// IssueChallenge handles leg 2: answer the blinded challenge under the session
// entry's lock and consume the secret. The session must be in Initiated state.
func (s *Signer) IssueChallenge(ctx context.Context, id string, blindedChallenge []byte) ([]byte, error) {
	var response []byte
	err := s.store.TryTransition(id, session.Initiated, session.ChallengeIssued,
		func(secret blindsig.Secret) error {
			resp, err := s.scheme.IssueChallenge(secret, blindedChallenge)
			if err != nil {
				return err
			}
			// The secret is single-use; drop it with the transition.
			secret.Zero()
			response = resp
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.simulateLatency()
	return response, nil
}

// Finalize handles leg 3: move the session to Finalized and verify the
// unblinded signature. The transition happens before verification so a failed
// proof still consumes the session (single-use), and the entry is removed
// either way.
func (s *Signer) Finalize(ctx context.Context, id string, msg []byte, sig *blindsig.Signature) (bool, error) {
	err := s.store.TryTransition(id, session.ChallengeIssued, session.Finalized, nil)
	if err != nil {
		return false, err
	}
	defer s.store.Remove(id)

	verified, err := s.scheme.VerifyFinalization(msg, sig)
	if err != nil {
		return false, err
	}

	s.simulateLatency()
	return verified, nil
}

// Stats returns session counters plus busy rejections.
func (s *Signer) Stats() Stats {
	return Stats{
		Sessions:     s.store.Stats(),
		BusyRejected: s.busyRejected.Load(),
	}
}

// Stats is the payload of the stats endpoint.
type Stats struct {
	Sessions     session.Counters `json:"sessions"`
	BusyRejected int64            `json:"busy_rejected"`
}

func (s *Signer) simulateLatency() {
	if s.cfg.SimLatencyMean <= 0 {
		return
	}
	pause := time.Duration(rand.NormFloat64()*float64(s.cfg.SimLatencyStdDev)) + s.cfg.SimLatencyMean
	if pause > 0 {
		time.Sleep(pause)
	}
}
