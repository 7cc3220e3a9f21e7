package delivery

import (
	"sync"
	"time"
)

// Breaker trips after a run of consecutive transport failures so a dying
// provider is not hammered. While open, Remaining reports how much of the
// cooldown the worker still has to pause; once the cooldown has elapsed,
// Resume closes the breaker again. Half-open by time: the next failure can
// reopen it.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	failures int
	openedAt time.Time
}

// NewBreaker builds a closed breaker.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Remaining returns the cooldown left to wait out, or zero when the
// breaker is closed or the cooldown has already elapsed.
func (b *Breaker) Remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return 0
	}
	elapsed := b.now().Sub(b.openedAt)
	if elapsed >= b.cooldown {
		return 0
	}
	return b.cooldown - elapsed
}

// Resume closes an open breaker whose cooldown has elapsed. On a closed
// breaker it is a no-op, so an accumulating failure streak is never wiped
// between messages.
func (b *Breaker) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures >= b.threshold && b.now().Sub(b.openedAt) >= b.cooldown {
		b.failures = 0
	}
}

// RecordSuccess closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// RecordFailure counts a failure; crossing the threshold opens the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures >= b.threshold {
		b.openedAt = b.now()
	}
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
