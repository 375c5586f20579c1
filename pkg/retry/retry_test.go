package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fast() []Option {
	return []Option{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond), WithJitter(0)}
}

func TestDo_RetriesRetryableUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errFlaky)
		}
		return nil
	}, append(fast(), WithMaxAttempts(5))...)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPlainError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	}, fast()...)

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentIsUnwrapped(t *testing.T) {
	err := Do(context.Background(), func(context.Context) error {
		return Permanent(errFlaky)
	}, fast()...)

	assert.Same(t, errFlaky, err)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	retried := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errFlaky)
	}, append(fast(), WithMaxAttempts(4), WithOnRetry(func(int, error, time.Duration) { retried++ }))...)

	assert.Same(t, errFlaky, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 3, retried)
}

func TestDo_RetryIfOverridesMarkers(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	}, append(fast(), WithMaxAttempts(2), WithRetryIf(func(err error) bool { return errors.Is(err, errFlaky) }))...)

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 2, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	r := New(append(fast(), WithMaxAttempts(3))...)
	v, err := DoWithData(context.Background(), r, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, Retryable(errFlaky)
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestStoreRetrier_Attempts(t *testing.T) {
	assert.Equal(t, 5, StoreRetrier(5, nil).Attempts())
}

func TestCacheRetrier_RetriesWhatRetryIfAccepts(t *testing.T) {
	errCanceled := errors.New("canceled")
	r := CacheRetrier(func(err error) bool { return !errors.Is(err, errCanceled) })
	assert.Equal(t, 3, r.Attempts())

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = r.Do(context.Background(), func(context.Context) error {
		calls++
		return errCanceled
	})
	assert.ErrorIs(t, err, errCanceled)
	assert.Equal(t, 1, calls)
}
