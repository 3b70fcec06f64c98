package executor

import "sync/atomic"

// Limiter caps concurrent executions with an atomic counter. Callers that
// do not get a slot are rejected instead of queued.
type Limiter struct {
	max     int32
	current atomic.Int32
}

// NewLimiter returns a Limiter allowing up to max concurrent holders.
func NewLimiter(max int) *Limiter {
	return &Limiter{max: int32(max)}
}

// TryAcquire takes a slot if one is free.
func (l *Limiter) TryAcquire() bool {
	if l.current.Add(1) > l.max {
		l.current.Add(-1)
		return false
	}
	return true
}

// Release returns a slot taken by TryAcquire.
func (l *Limiter) Release() {
	l.current.Add(-1)
}

// InFlight returns the number of held slots.
func (l *Limiter) InFlight() int {
	return int(l.current.Load())
}

// Capacity returns the slot count.
func (l *Limiter) Capacity() int {
	return int(l.max)
}
