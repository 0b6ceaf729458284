package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/platform/sentinel"
)

// recordedSleep captures requested delays instead of waiting.
func recordedSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

type statusError struct {
	status int
}

func (e *statusError) Error() string { return "status error" }
func (e *statusError) Retriable() bool {
	return e.status == 429 || e.status >= 500
}

type throttledError struct {
	statusError
	after time.Duration
}

func (e *throttledError) RetryAfter() (time.Duration, bool) {
	return e.after, e.after > 0
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	var delays []time.Duration
	res := Do(context.Background(), Policy{Sleep: recordedSleep(&delays)}, func(context.Context) error {
		return nil
	})

	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, delays)
}

func TestDo_RetriesTransientFailures(t *testing.T) {
	// Two unavailable responses, then success: three attempts total.
	var delays []time.Duration
	calls := 0
	res := Do(context.Background(), Policy{
		MaxAttempts: 3,
		Backoff:     Exponential(time.Second, 30*time.Second),
		Sleep:       recordedSleep(&delays),
	}, func(context.Context) error {
		calls++
		if calls < 3 {
			return &statusError{status: 503}
		}
		return nil
	})

	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestDo_ExhaustsAttemptBudget(t *testing.T) {
	var delays []time.Duration
	failure := &statusError{status: 500}
	res := Do(context.Background(), Policy{MaxAttempts: 3, Sleep: recordedSleep(&delays)}, func(context.Context) error {
		return failure
	})

	require.Error(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.ErrorIs(t, res.Err, failure)
	assert.Len(t, delays, 2)
}

func TestDo_PermanentShortCircuits(t *testing.T) {
	calls := 0
	res := Do(context.Background(), Policy{MaxAttempts: 5}, func(context.Context) error {
		calls++
		return Permanent(errors.New("unrecoverable"))
	})

	require.Error(t, res.Err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, calls)
}

func TestDo_TerminalDomainCodesShortCircuit(t *testing.T) {
	for _, code := range []dErrors.Code{
		dErrors.CodeNoCapacity,
		dErrors.CodeQuotaExceeded,
		dErrors.CodeInvalidInput,
		dErrors.CodeNotFound,
	} {
		calls := 0
		res := Do(context.Background(), Policy{MaxAttempts: 4}, func(context.Context) error {
			calls++
			return dErrors.New(code, "terminal")
		})
		require.Error(t, res.Err, "code %s", code)
		assert.Equal(t, 1, res.Attempts, "code %s", code)
		assert.Equal(t, 1, calls, "code %s", code)
	}
}

func TestDo_ClientErrorNotRetried(t *testing.T) {
	res := Do(context.Background(), Policy{MaxAttempts: 4}, func(context.Context) error {
		return &statusError{status: 400}
	})

	require.Error(t, res.Err)
	assert.Equal(t, 1, res.Attempts)
}

func TestDo_RetryAfterHintExtendsDelay(t *testing.T) {
	var delays []time.Duration
	calls := 0
	res := Do(context.Background(), Policy{
		MaxAttempts: 2,
		Backoff:     Fixed(time.Second),
		Sleep:       recordedSleep(&delays),
	}, func(context.Context) error {
		calls++
		if calls == 1 {
			return &throttledError{statusError{status: 429}, 5 * time.Second}
		}
		return nil
	})

	require.NoError(t, res.Err)
	assert.Equal(t, []time.Duration{5 * time.Second}, delays)
}

func TestDo_ContextCancelDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opErr := &statusError{status: 503}
	res := Do(ctx, Policy{
		MaxAttempts: 3,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}, func(context.Context) error {
		return opErr
	})

	require.Error(t, res.Err)
	assert.Equal(t, 1, res.Attempts)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.ErrorIs(t, res.Err, opErr)
}

func TestIsPermanent(t *testing.T) {
	assert.False(t, IsPermanent(nil))
	assert.False(t, IsPermanent(errors.New("plain")))
	assert.False(t, IsPermanent(&statusError{status: 503}))
	assert.False(t, IsPermanent(dErrors.New(dErrors.CodeUnavailable, "down")))
	assert.True(t, IsPermanent(&statusError{status: 404}))
	assert.True(t, IsPermanent(Permanent(errors.New("marked"))))
	assert.True(t, IsPermanent(dErrors.Wrap(errors.New("full"), dErrors.CodeNoCapacity, "no site")))
	assert.True(t, IsPermanent(fmt.Errorf("attach: %w", sentinel.ErrConflict)))
	assert.True(t, IsPermanent(fmt.Errorf("lookup: %w", sentinel.ErrNotFound)))
	assert.False(t, IsPermanent(fmt.Errorf("fetch: %w", sentinel.ErrUnavailable)))
}
