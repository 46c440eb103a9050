package orch

import "time"

// BreakerConfig tunes the circuit breaker that pauses new chunk starts
// after a run of consecutive failures, so an unreachable source or
// destination is not hammered.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that trips the
	// breaker.
	Threshold int
	// Window is the trailing window within which the failures must fall;
	// a quiet gap longer than this restarts the count.
	Window time.Duration
	// Cooldown is how long new starts stay paused once tripped.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns conservative, independently testable
// defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold: 5,
		Window:    2 * time.Minute,
		Cooldown:  time.Minute,
	}
}

// breaker tracks consecutive failures and the open/closed state. It is
// owned by the orchestrator's tick and needs no locking.
type breaker struct {
	cfg BreakerConfig

	consecutive  int
	firstFailure time.Time
	openUntil    time.Time

	now func() time.Time // test hook
}

func newBreaker(cfg BreakerConfig) *breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultBreakerConfig().Threshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultBreakerConfig().Window
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &breaker{cfg: cfg, now: time.Now}
}

// recordFailure counts a failure and reports whether the breaker tripped
// on this call.
func (b *breaker) recordFailure() bool {
	now := b.now()

	if b.consecutive == 0 || now.Sub(b.firstFailure) > b.cfg.Window {
		b.consecutive = 0
		b.firstFailure = now
	}
	b.consecutive++

	if b.consecutive >= b.cfg.Threshold {
		b.openUntil = now.Add(b.cfg.Cooldown)
		b.consecutive = 0
		return true
	}
	return false
}

// recordSuccess resets the consecutive-failure count.
func (b *breaker) recordSuccess() {
	b.consecutive = 0
}

// open reports whether the cooldown is still in effect.
func (b *breaker) open() bool {
	return b.now().Before(b.openUntil)
}

// reset force-closes the breaker (operator resume).
func (b *breaker) reset() {
	b.consecutive = 0
	b.openUntil = time.Time{}
}
