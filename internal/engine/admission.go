package engine

import (
	"sync"
	"time"
)

// AdmissionPolicy decides whether the engine may attempt a new entry this
// tick. Exits are never gated; the policy only throttles fresh exposure.
type AdmissionPolicy interface {
	Admit(now time.Time) bool
}

// AdmitAll is the default policy: every tick may attempt an entry.
type AdmitAll struct{}

// Admit always returns true.
func (AdmitAll) Admit(time.Time) bool { return true }

// TokenBucket throttles entries to a sustained rate with a small burst
// allowance. Tokens refill continuously; one token is spent per admitted
// entry attempt.
type TokenBucket struct {
	mu       sync.Mutex
	capacity float64
	refill   float64 // tokens per second
	tokens   float64
	last     time.Time
}

// NewTokenBucket creates a bucket admitting at most one entry per interval
// on average, with burst capacity for quiet periods.
func NewTokenBucket(burst int, interval time.Duration) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &TokenBucket{
		capacity: float64(burst),
		refill:   1 / interval.Seconds(),
		tokens:   float64(burst),
	}
}

// Admit spends a token when one is available.
func (b *TokenBucket) Admit(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.last.IsZero() {
		elapsed := now.Sub(b.last).Seconds()
		if elapsed > 0 {
			b.tokens += elapsed * b.refill
			if b.tokens > b.capacity {
				b.tokens = b.capacity
			}
		}
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
