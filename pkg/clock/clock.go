// Package clock abstracts wall-clock time so latency measurements can be
// driven by a fake source in tests.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current wall-clock time in nanoseconds.
type Clock interface {
	NowNanos() int64
}

// Real reads from the system clock.
type Real struct{}

func (Real) NowNanos() int64 { return time.Now().UnixNano() }

// Fake is a manually advanced clock for deterministic tests.
// It is safe for concurrent use.
type Fake struct {
	mu  sync.Mutex
	now int64
}

// NewFake returns a fake clock starting at 10 seconds past the epoch,
// so durations never go negative even if a test rewinds slightly.
func NewFake() *Fake {
	return &Fake{now: 10 * int64(time.Second)}
}

func (f *Fake) NowNanos() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now += int64(d)
	f.mu.Unlock()
}
