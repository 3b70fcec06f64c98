package executor

import (
	"errors"
	"time"
)

// ErrNegativeTimeout is returned by TimeoutPolicy.Effective for negative requests.
var ErrNegativeTimeout = errors.New("timeout must not be negative")

// TimeoutPolicy resolves the timeout a request actually runs with.
type TimeoutPolicy struct {
	// Default is both the fallback and the ceiling, in seconds.
	Default int
}

// Effective returns the timeout for a request. A missing or zero timeout
// falls back to Default, and larger requests are capped at Default.
func (p TimeoutPolicy) Effective(requested *int) (time.Duration, error) {
	secs := p.Default
	if requested != nil {
		switch {
		case *requested < 0:
			return 0, ErrNegativeTimeout
		case *requested > 0 && *requested < p.Default:
			secs = *requested
		}
	}
	return time.Duration(secs) * time.Second, nil
}
