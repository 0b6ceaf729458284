// Package retry executes fallible operations with bounded attempts and
// increasing backoff. Terminal failures short-circuit immediately; every
// outcome reports how many attempts ran so callers can surface the count.
package retry

import (
	"context"
	"errors"
	"time"

	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/platform/sentinel"
)

// Defaults applied when a Policy leaves fields zero.
const (
	DefaultMaxAttempts = 3
	DefaultBase        = 1 * time.Second
	DefaultCap         = 30 * time.Second
)

// Policy bounds an execution. The zero value is usable: three attempts,
// exponential backoff from one second, real sleeping.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	// Sleep waits between attempts. Tests inject a recorder; the default
	// honors context cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Result reports how an execution ended. Err is nil on success; Attempts
// counts every attempt that actually ran, including the failing ones.
type Result struct {
	Attempts int
	Err      error
}

// retriableError is implemented by collaborator API errors that know whether
// their status class is worth retrying.
type retriableError interface {
	Retriable() bool
}

// delayHinter is implemented by errors carrying a server-provided pacing
// hint (Retry-After). The hint overrides the policy backoff when present.
type delayHinter interface {
	RetryAfter() (time.Duration, bool)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as terminal: Do will not attempt again after seeing it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err must not be retried. An explicit Permanent
// mark wins; otherwise collaborator errors decide via Retriable(), and coded
// domain errors are terminal when retrying cannot change the answer.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	var re retriableError
	if errors.As(err, &re) {
		return !re.Retriable()
	}
	// A definitive answer cannot change on retry.
	if errors.Is(err, sentinel.ErrNotFound) ||
		errors.Is(err, sentinel.ErrConflict) ||
		errors.Is(err, sentinel.ErrInvalidState) {
		return true
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		switch de.Code {
		case dErrors.CodeBadRequest,
			dErrors.CodeValidation,
			dErrors.CodeInvalidInput,
			dErrors.CodeInvariantViolation,
			dErrors.CodeNotFound,
			dErrors.CodeConflict,
			dErrors.CodeNoCapacity,
			dErrors.CodeQuotaExceeded:
			return true
		}
	}
	return false
}

// Do runs op under the policy until it succeeds, fails terminally, or the
// attempt budget is spent. The returned Result always carries the attempt
// count; on failure Err is the last operation error, or the context error
// joined with it when cancellation interrupted the wait.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) Result {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = Exponential(DefaultBase, DefaultCap)
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return Result{Attempts: attempt}
		}
		if IsPermanent(err) || attempt >= maxAttempts {
			return Result{Attempts: attempt, Err: err}
		}
		delay := backoff(attempt)
		var dh delayHinter
		if errors.As(err, &dh) {
			if hint, ok := dh.RetryAfter(); ok && hint > delay {
				delay = hint
			}
		}
		if serr := sleep(ctx, delay); serr != nil {
			return Result{Attempts: attempt, Err: errors.Join(serr, err)}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
