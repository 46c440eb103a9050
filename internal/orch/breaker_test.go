package orch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock drives a breaker deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg BreakerConfig) (*breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := newBreaker(cfg)
	b.now = clk.now
	return b, clk
}

func TestBreaker_TripsAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 3, Window: time.Minute, Cooldown: time.Minute})

	assert.False(t, b.recordFailure())
	assert.False(t, b.recordFailure())
	assert.False(t, b.open())
	assert.True(t, b.recordFailure())
	assert.True(t, b.open())
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 3, Window: time.Minute, Cooldown: time.Minute})

	b.recordFailure()
	b.recordFailure()
	b.recordSuccess()
	assert.False(t, b.recordFailure())
	assert.False(t, b.recordFailure())
	assert.True(t, b.recordFailure())
}

func TestBreaker_WindowExpiryRestartsCount(t *testing.T) {
	b, clk := newTestBreaker(BreakerConfig{Threshold: 3, Window: time.Minute, Cooldown: time.Minute})

	b.recordFailure()
	b.recordFailure()
	clk.advance(2 * time.Minute)
	// Outside the window: the count starts over at 1.
	assert.False(t, b.recordFailure())
	assert.False(t, b.recordFailure())
	assert.True(t, b.recordFailure())
}

func TestBreaker_CooldownExpires(t *testing.T) {
	b, clk := newTestBreaker(BreakerConfig{Threshold: 1, Window: time.Minute, Cooldown: 30 * time.Second})

	assert.True(t, b.recordFailure())
	assert.True(t, b.open())

	clk.advance(29 * time.Second)
	assert.True(t, b.open())
	clk.advance(2 * time.Second)
	assert.False(t, b.open())
}

func TestBreaker_ResetForceCloses(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 2, Window: time.Minute, Cooldown: time.Hour})

	b.recordFailure()
	b.recordFailure()
	assert.True(t, b.open())

	b.reset()
	assert.False(t, b.open())
	// And the count is back to zero.
	assert.False(t, b.recordFailure())
}

func TestBreaker_ZeroConfigUsesDefaults(t *testing.T) {
	b := newBreaker(BreakerConfig{})
	assert.Equal(t, DefaultBreakerConfig(), b.cfg)
}
