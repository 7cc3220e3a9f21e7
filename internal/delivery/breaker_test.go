package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	b := NewBreaker(5, 10*time.Second)
	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.Zero(t, b.Remaining())
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(5, 10*time.Second)
	b.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, 10*time.Second, b.Remaining())
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := NewBreaker(5, 10*time.Second)
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	assert.Zero(t, b.Remaining(), "non-consecutive failures never open the breaker")
}

func TestBreaker_RemainingCountsDown(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(5, 10*time.Second)
	b.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	clock = clock.Add(4 * time.Second)
	assert.Equal(t, 6*time.Second, b.Remaining())

	clock = clock.Add(6 * time.Second)
	assert.Zero(t, b.Remaining())
}

func TestBreaker_ResumeClosesAfterCooldown(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(5, 10*time.Second)
	b.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	// Cooldown not elapsed: Resume does nothing.
	clock = clock.Add(9 * time.Second)
	b.Resume()
	assert.Equal(t, 5, b.Failures())

	clock = clock.Add(time.Second)
	b.Resume()
	assert.Zero(t, b.Failures())
	assert.Zero(t, b.Remaining())
}

func TestBreaker_ResumeKeepsAccumulatingStreak(t *testing.T) {
	b := NewBreaker(5, 10*time.Second)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	b.Resume()
	assert.Equal(t, 3, b.Failures(), "a closed breaker's streak survives Resume")
}

func TestBreaker_FailureAfterResumeReopens(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(5, 10*time.Second)
	b.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock = clock.Add(10 * time.Second)
	b.Resume()

	// Half-open by time: a fresh streak is needed to reopen.
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, 10*time.Second, b.Remaining())
}
