package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter checks whether a request should be allowed based on
// the identity's service tier.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig holds rate limit settings for a service tier.
type TierConfig struct {
	RequestsPerMinute int
}

// LimitError is returned when a caller exhausted its window. It matches
// ErrTooManyRequests with errors.Is.
type LimitError struct {
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrTooManyRequests, e.RetryAfter.Round(time.Second))
}

func (e *LimitError) Unwrap() error { return ErrTooManyRequests }

// InProcessLimiter is a fixed-window rate limiter that tracks request
// counts per subject and tier in memory.
type InProcessLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int
	now        func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewInProcessLimiter creates a rate limiter with per-tier configuration.
// Tiers without an entry use defaultRPM; zero means unlimited.
func NewInProcessLimiter(tiers map[string]TierConfig, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		now:        time.Now,
		counters:   make(map[string]*counter),
	}
}

// Allow checks if the request is within the rate limit.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.ServiceTier
	if tier == "" {
		tier = "default"
	}

	rpm := l.defaultRPM
	if tc, ok := l.tiers[tier]; ok {
		rpm = tc.RequestsPerMinute
	}
	if rpm <= 0 {
		return nil
	}

	key := identity.Subject + ":" + tier

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		l.counters[key] = &counter{count: 1, windowAt: now}
		l.sweep(now)
		return nil
	}

	if c.count >= rpm {
		return &LimitError{RetryAfter: c.windowAt.Add(time.Minute).Sub(now)}
	}
	c.count++
	return nil
}

// sweep drops expired windows so idle subjects do not accumulate.
func (l *InProcessLimiter) sweep(now time.Time) {
	for key, c := range l.counters {
		if now.Sub(c.windowAt) >= time.Minute {
			delete(l.counters, key)
		}
	}
}
