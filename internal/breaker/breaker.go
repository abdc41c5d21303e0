// Package breaker implements a three-state circuit breaker (CLOSED, OPEN,
// HALF_OPEN) gating archive uploads. Only upload failures feed it;
// source-side failures are not breaker input.
package breaker

import (
	"sync"
	"time"
)

// State is one of the three breaker states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// maxRecoveryTimeout is the cap the doubling recovery timeout never exceeds.
const maxRecoveryTimeout = 300 * time.Second

// Breaker gates archive uploads. All mutations happen inside a mutex to
// prevent two probes being admitted simultaneously; the open→half-open
// transition is computed lazily from elapsed monotonic time rather than
// via a timer.
type Breaker struct {
	mu sync.Mutex

	threshold       int
	baseRecovery    time.Duration
	recoveryTimeout time.Duration

	state         State
	failureCount  int
	openedAt      time.Time
	probeInFlight bool // true between a HALF_OPEN admission and its recorded outcome
	nowFunc       func() time.Time
}

// New returns a breaker with the given failure threshold and base recovery
// timeout. threshold defaults to 5 and recoveryTimeout to 60s when <= 0,
// matching the component design's defaults.
func New(threshold int, recoveryTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 60 * time.Second
	}
	return &Breaker{
		threshold:       threshold,
		baseRecovery:    recoveryTimeout,
		recoveryTimeout: recoveryTimeout,
		state:           Closed,
		nowFunc:         time.Now,
	}
}

// currentState lazily computes the observed state: an OPEN breaker whose
// recovery timeout has elapsed is observed as HALF_OPEN. Must be called
// with mu held.
func (b *Breaker) currentState() State {
	if b.state == Open && b.nowFunc().Sub(b.openedAt) >= b.recoveryTimeout {
		return HalfOpen
	}
	return b.state
}

// AllowRequest reports whether a call may proceed. CLOSED always allows;
// OPEN never allows (until its lazy HALF_OPEN transition); HALF_OPEN
// admits exactly one probe and denies every other caller until that
// probe's outcome is recorded via RecordSuccess/RecordFailure — the
// probeInFlight latch, set here and cleared there, is what makes this
// true under concurrent callers, not just the mutex around the check.
func (b *Breaker) AllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case Closed:
		return true
	case HalfOpen:
		if b.probeInFlight {
			return false
		}
		b.state = HalfOpen
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess resets the breaker to CLOSED with the failure count and
// recovery timeout both reset to their base values, and clears the
// HALF_OPEN probe latch.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.state = Closed
	b.recoveryTimeout = b.baseRecovery
	b.probeInFlight = false
}

// RecordFailure registers a failure. From HALF_OPEN it reopens the breaker
// immediately with a doubled (capped) recovery timeout and clears the
// probe latch; from CLOSED it opens once failureCount reaches threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	observed := b.currentState()
	switch observed {
	case HalfOpen:
		b.recoveryTimeout = min(b.recoveryTimeout*2, maxRecoveryTimeout)
		b.state = Open
		b.openedAt = b.nowFunc()
		b.probeInFlight = false
	default:
		b.failureCount++
		if b.failureCount >= b.threshold {
			b.state = Open
			b.openedAt = b.nowFunc()
		}
	}
}

// State returns the lazily-computed observed state, for status reporting.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

func min(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
