package resilience

import (
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy decides whether a failed task gets another attempt and how long
// to wait before it. One policy instance is shared by every task in a phase.
type RetryPolicy struct {
	// MaxRetries is the number of extra attempts beyond the first. Zero
	// means a single attempt; negative is treated as zero.
	MaxRetries int

	// InitialBackoff is the base delay before the first retry. Default: 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration. Default: 15s.
	MaxBackoff time.Duration

	// JitterFraction adds random jitter as a fraction of the computed delay.
	// Default: 0.25.
	JitterFraction float64

	// Classify optionally overrides the default transient-error check.
	Classify func(err error) bool
}

// DefaultRetryPolicy returns the policy used when the caller passes no
// overrides.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     15 * time.Second,
		JitterFraction: 0.25,
	}
}

// ShouldRetry reports whether a task on its given attempt (0-based) may be
// retried after err. Permanent errors never retry.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxRetries() {
		return false
	}
	classify := p.Classify
	if classify == nil {
		classify = IsTransient
	}
	return classify(err)
}

// Backoff returns the delay before retry number attempt (0-based), following
// base * 2^attempt capped at MaxBackoff, with jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := p.InitialBackoff
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxBackoff := p.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 15 * time.Second
	}

	delay := float64(base) * math.Pow(2, float64(attempt))
	if delay > float64(maxBackoff) {
		delay = float64(maxBackoff)
	}

	if p.JitterFraction > 0 {
		jitterRange := delay * p.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// MaxAttempts is the total number of attempts a task can make.
func (p RetryPolicy) MaxAttempts() int {
	return p.maxRetries() + 1
}

func (p RetryPolicy) maxRetries() int {
	if p.MaxRetries < 0 {
		return 0
	}
	return p.MaxRetries
}

// LogRetry emits the standard retry log line for a task attempt.
func LogRetry(phase, taskURL string, attempt int, delay time.Duration, err error) {
	zap.L().Warn("retrying task",
		zap.String("phase", phase),
		zap.String("url", taskURL),
		zap.Int("attempt", attempt),
		zap.Duration("backoff", delay),
		zap.Error(err),
	)
}
