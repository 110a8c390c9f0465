// ABOUTME: Monotonic clock used for playback position interpolation
// ABOUTME: Real clock backed by time.Since, fake clock for deterministic tests
package clock

import (
	"sync"
	"time"
)

// Clock reports elapsed time on a monotonic timeline. Values are only
// meaningful relative to each other.
type Clock interface {
	Now() time.Duration
}

// Monotonic reads the runtime's monotonic clock. Wall clock adjustments
// never move it.
type Monotonic struct {
	start time.Time
}

// New returns a clock whose zero is the moment of the call
func New() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// Now returns the time elapsed since New
func (m *Monotonic) Now() time.Duration {
	return time.Since(m.start)
}

// Fake is a manually driven clock
type Fake struct {
	mu  sync.Mutex
	now time.Duration
}

// NewFake returns a fake clock starting at start
func NewFake(start time.Duration) *Fake {
	return &Fake{now: start}
}

// Now returns the current fake time
func (f *Fake) Now() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward. Negative values are ignored so the
// clock stays monotonic.
func (f *Fake) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	f.mu.Lock()
	f.now += d
	f.mu.Unlock()
}
