package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrBreakerOpen is returned when a launch is rejected because the breaker
// is open.
var ErrBreakerOpen = eris.New("browser launch breaker is open")

// LaunchBreaker stops the pool from hammering the OS with browser launches
// after repeated failures. Closed = launches allowed; open = fail fast until
// the reset timeout passes, then a single probe launch is allowed.
type LaunchBreaker struct {
	mu sync.Mutex

	failureThreshold int
	resetTimeout     time.Duration

	consecutiveFailures int
	openedAt            time.Time
	open                bool

	nowFunc func() time.Time
}

// NewLaunchBreaker creates a breaker that opens after threshold consecutive
// launch failures and allows a probe after resetTimeout.
func NewLaunchBreaker(threshold int, resetTimeout time.Duration) *LaunchBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &LaunchBreaker{
		failureThreshold: threshold,
		resetTimeout:     resetTimeout,
		nowFunc:          time.Now,
	}
}

// Allow reports whether a launch attempt may proceed. When the breaker is
// open and the reset timeout has passed, one probe is allowed through.
func (b *LaunchBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}
	if b.nowFunc().Sub(b.openedAt) >= b.resetTimeout {
		// Half-open: let one probe through. A failure reopens immediately.
		return nil
	}
	return ErrBreakerOpen
}

// Record feeds the result of a launch attempt into the breaker.
func (b *LaunchBreaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.consecutiveFailures = 0
		b.open = false
		return
	}

	b.consecutiveFailures++
	if b.consecutiveFailures >= b.failureThreshold {
		b.open = true
		b.openedAt = b.nowFunc()
	}
}

// Reset closes the breaker and clears the failure count, allowing launches
// immediately.
func (b *LaunchBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.consecutiveFailures = 0
}

// Open reports whether the breaker currently rejects launches.
func (b *LaunchBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && b.nowFunc().Sub(b.openedAt) < b.resetTimeout
}
