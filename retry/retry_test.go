/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

var errStoreUnavailable = errors.New("store is unavailable")

func TestDo(t *testing.T) {
	fastPolicy := Policy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxAttempts: 3}

	t.Run("succeeds after retries", func(t *testing.T) {
		calls := atomic.NewInt32(0)
		notified := atomic.NewInt32(0)
		err := Do(context.Background(), fastPolicy, func(ctx context.Context) error {
			if calls.Inc() < 3 {
				return errStoreUnavailable
			}
			return nil
		}, Opts{Notify: func(err error, next time.Duration) {
			require.ErrorIs(t, err, errStoreUnavailable)
			notified.Inc()
		}})
		require.NoError(t, err)
		require.Equal(t, int32(3), calls.Load())
		require.Equal(t, int32(2), notified.Load())
	})

	t.Run("attempts are exhausted", func(t *testing.T) {
		calls := atomic.NewInt32(0)
		err := Do(context.Background(), fastPolicy, func(ctx context.Context) error {
			calls.Inc()
			return errStoreUnavailable
		}, Opts{})
		require.ErrorIs(t, err, errStoreUnavailable)
		require.Equal(t, int32(4), calls.Load())
	})

	t.Run("non-retryable error", func(t *testing.T) {
		errAuth := errors.New("WRONGPASS invalid username-password pair")
		calls := atomic.NewInt32(0)
		err := Do(context.Background(), fastPolicy, func(ctx context.Context) error {
			calls.Inc()
			return errAuth
		}, Opts{IsRetryable: func(err error) bool { return !errors.Is(err, errAuth) }})
		require.ErrorIs(t, err, errAuth)
		require.Equal(t, int32(1), calls.Load())
	})

	t.Run("context is done", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := Do(ctx, Policy{InitialInterval: 10 * time.Millisecond}, func(ctx context.Context) error {
			return errStoreUnavailable
		}, Opts{})
		require.ErrorIs(t, err, errStoreUnavailable)
	})

	t.Run("context is done before the first attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Do(ctx, DefaultPolicy(), func(ctx context.Context) error {
			return nil
		}, Opts{})
		require.ErrorIs(t, err, context.Canceled)
	})
}
