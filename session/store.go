// Package session provides the signer's concurrent store of in-flight
// issuance sessions.
//
// Every session advances Initiated → ChallengeIssued → Finalized and never
// moves backwards. Transitions are compare-and-swap on the individual entry:
// two protocol messages racing on the same session serialize on that entry's
// lock, while unrelated sessions never contend. Abandoned sessions are
// reclaimed by a background expiry sweep.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/rozbb/blindsig-benches/blindsig"
)

// State is the position of a session in the three-message protocol.
type State int

const (
	// Initiated means leg 1 completed: a commitment was handed out and the
	// nonce is retained.
	Initiated State = iota

	// ChallengeIssued means leg 2 completed: the challenge response was
	// computed and the nonce consumed.
	ChallengeIssued

	// Finalized means leg 3 completed, successfully or not. A finalized
	// session is single-use and is removed from the store.
	Finalized
)

func (s State) String() string {
	switch s {
	case Initiated:
		return "initiated"
	case ChallengeIssued:
		return "challenge-issued"
	case Finalized:
		return "finalized"
	}
	return "unknown"
}

var (
	// ErrDuplicateSession indicates an insert for an id already present.
	// Ids are drawn from a CSPRNG, so this is an invariant violation rather
	// than an expected condition.
	ErrDuplicateSession = errors.New("session: duplicate session id")

	// ErrUnknownSession indicates a lookup for an id that is absent or has
	// expired.
	ErrUnknownSession = errors.New("session: unknown or expired session")

	// ErrStaleSession indicates a transition whose expected state did not
	// match: either an out-of-order/replayed message, or a concurrent
	// transition won the race.
	ErrStaleSession = errors.New("session: session not in expected state")

	// ErrStoreFull indicates a capped insert when the store is already at
	// its live-session limit.
	ErrStoreFull = errors.New("session: store at capacity")
)

// entry is one in-flight session. The mutex covers state and secret; createdAt
// is written once on insert.
type entry struct {
	mu        sync.Mutex
	state     State
	secret    blindsig.Secret
	createdAt time.Time
}

// Counters exposes monotonic session statistics for the stats endpoint.
type Counters struct {
	Created   int64 `json:"created"`
	Finalized int64 `json:"finalized"`
	Expired   int64 `json:"expired"`
	Active    int64 `json:"active"`
}

// Store is a concurrent map from session id to per-session state.
//
// The sessions map itself is guarded by mu, but only for the duration of a
// map lookup/insert/delete; protocol transitions hold only the entry lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	ttl time.Duration

	created   atomic.Int64
	finalized atomic.Int64
	expired   atomic.Int64
}

// NewStore creates a session store whose entries expire after ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		ttl:      ttl,
	}
}

// Insert records a freshly initiated session owning the given secret.
func (s *Store) Insert(id string, secret blindsig.Secret) error {
	return s.InsertCapped(id, secret, 0)
}

// InsertCapped inserts like Insert but fails with ErrStoreFull once maxLive
// sessions exist; 0 means unlimited. The capacity check and the insert
// happen under one lock, so concurrent inserts cannot overshoot the cap.
func (s *Store) InsertCapped(id string, secret blindsig.Secret, maxLive int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxLive > 0 && len(s.sessions) >= maxLive {
		return ErrStoreFull
	}
	if _, exists := s.sessions[id]; exists {
		return ErrDuplicateSession
	}
	s.sessions[id] = &entry{
		state:     Initiated,
		secret:    secret,
		createdAt: time.Now(),
	}
	s.created.Inc()
	return nil
}

// TryTransition atomically moves the session from expected to next, invoking
// mutator with exclusive access to the session's secret material while the
// entry lock is held. An expired entry behaves as if it were absent.
//
// On ErrStaleSession or ErrUnknownSession nothing is mutated.
func (s *Store) TryTransition(id string, expected, next State, mutator func(blindsig.Secret) error) error {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ErrUnknownSession
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if s.ttl > 0 && time.Since(e.createdAt) > s.ttl {
		// Unreachable even before the sweeper gets to it.
		return ErrUnknownSession
	}
	if e.state != expected {
		return ErrStaleSession
	}
	if mutator != nil {
		if err := mutator(e.secret); err != nil {
			return err
		}
	}
	e.state = next
	if next == Finalized {
		s.finalized.Inc()
	}
	return nil
}

// Remove deletes the session and zeroes its secret material. Removing an
// absent id is a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok && e.secret != nil {
		e.mu.Lock()
		e.secret.Zero()
		e.mu.Unlock()
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stats returns a snapshot of the session counters.
func (s *Store) Stats() Counters {
	return Counters{
		Created:   s.created.Load(),
		Finalized: s.finalized.Load(),
		Expired:   s.expired.Load(),
		Active:    int64(s.Len()),
	}
}

// RunExpiry sweeps expired sessions every interval until ctx is done.
func (s *Store) RunExpiry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expireOnce(time.Now())
		}
	}
}

// expireOnce removes every entry older than the TTL as of now.
func (s *Store) expireOnce(now time.Time) {
	if s.ttl <= 0 {
		return
	}

	s.mu.RLock()
	var stale []string
	for id, e := range s.sessions {
		if now.Sub(e.createdAt) > s.ttl {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range stale {
		s.Remove(id)
		s.expired.Inc()
	}
}
