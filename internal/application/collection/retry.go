package collection

import (
	"context"
	"time"

	"github.com/bestseller/tracker/internal/domain/market"
)

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// Sleeper waits for a duration or until ctx is done
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock
type SystemClock struct{}

// Now returns time.Now in UTC
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// TimerSleeper sleeps on a real timer
type TimerSleeper struct{}

// Sleep blocks for d, returning ctx.Err() if ctx ends first
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy bounds the attempts made against one platform
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first
	MaxAttempts int
	// Delay is multiplied by the attempt number to give the wait after that attempt
	Delay time.Duration
	// Timeout bounds each attempt
	Timeout time.Duration
}

// RetryState tracks the attempts made for one platform in one run
type RetryState struct {
	Attempt      int
	NextEligible time.Time
	LastErr      error
	done         bool
}

// Exhausted reports whether no further attempt may be made
func (s *RetryState) Exhausted() bool {
	return s.done
}

// Begin records the start of an attempt
func (s *RetryState) Begin() {
	s.Attempt++
}

// Fail records a failed attempt at now. It returns the delay before the next
// attempt, or false when the error is not retryable or the policy is used up.
func (s *RetryState) Fail(p RetryPolicy, err error, now time.Time) (time.Duration, bool) {
	s.LastErr = err
	if !market.IsRetryable(err) || s.Attempt >= p.MaxAttempts {
		s.done = true
		return 0, false
	}
	delay := p.Delay * time.Duration(s.Attempt)
	s.NextEligible = now.Add(delay)
	return delay, true
}

// Succeed records a successful attempt
func (s *RetryState) Succeed() {
	s.LastErr = nil
	s.done = true
}
