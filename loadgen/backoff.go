package loadgen

import (
	"errors"
	"math/rand"
	"time"
)

// ErrExhausted indicates the retry budget for one round-trip ran out; the
// round-trip is recorded as a failure and the benchmark continues.
var ErrExhausted = errors.New("loadgen: retry attempts exhausted")

// Backoff computes the wait before retrying a transiently failed request.
//
// The deterministic floor doubles from Base and is capped at MaxWait. Jitter
// adds at most JitterFrac of the floor on top (also capped), desynchronizing
// retry storms across workers. Because JitterFrac is clamped to [0, 1], the
// jittered wait for attempt n never exceeds the floor for attempt n+1, so
// waits are non-decreasing in the attempt number.
type Backoff struct {
	// Base is the wait after the first failure.
	Base time.Duration

	// MaxWait caps the wait regardless of attempt number.
	MaxWait time.Duration

	// MaxAttempts is the retry budget per request; once spent the
	// round-trip is abandoned with ErrExhausted.
	MaxAttempts int

	// JitterFrac in [0, 1] is the maximum random fraction of the floor
	// added to each wait. Zero disables jitter.
	JitterFrac float64
}

// Wait returns the duration to sleep after the attempt-th consecutive
// failure (1-based).
func (b *Backoff) Wait(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	floor := b.Base
	for i := 1; i < attempt; i++ {
		floor *= 2
		if floor >= b.MaxWait {
			floor = b.MaxWait
			break
		}
	}
	if floor > b.MaxWait {
		floor = b.MaxWait
	}

	frac := b.JitterFrac
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}

	wait := floor
	if frac > 0 {
		wait += time.Duration(rand.Float64() * frac * float64(floor))
	}
	if wait > b.MaxWait {
		wait = b.MaxWait
	}
	return wait
}
