package retry

import "time"

// Backoff maps a 1-based attempt number to the delay taken after that
// attempt fails. Implementations must be pure so policies stay testable
// without a clock.
type Backoff func(attempt int) time.Duration

// Exponential doubles the delay each attempt, starting at base and clamped
// to max. Attempt 1 waits base, attempt 2 waits 2*base, and so on.
func Exponential(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		// Shifts past 32 would overflow any sane base; the clamp wins anyway.
		if attempt-1 > 32 {
			return max
		}
		d := base << (attempt - 1)
		if d <= 0 || d > max {
			return max
		}
		return d
	}
}

// Fixed waits the same delay after every failed attempt.
func Fixed(d time.Duration) Backoff {
	return func(int) time.Duration {
		return d
	}
}
