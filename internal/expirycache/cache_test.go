/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package expirycache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func incr(ttl time.Duration, clock *fakeClock) UpdateFunc[int] {
	return func(value int, expiresAt time.Time, found bool) (int, time.Time) {
		if !found {
			return 1, clock.Now().Add(ttl)
		}
		return value + 1, expiresAt
	}
}

func TestCache_Update(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	metrics := NewPrometheusMetrics("test", nil)
	cache, err := New[string, int](10, metrics, Options{Now: clock.Now})
	require.NoError(t, err)

	cache.Update("a", incr(time.Second, clock))
	cache.Update("a", incr(time.Second, clock))
	val, expiresAt, ok := cache.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, val)
	require.Equal(t, clock.Now().Add(time.Second), expiresAt)

	// Expiration is kept across updates and the entry restarts once it passes.
	clock.Advance(time.Second)
	_, _, ok = cache.Get("a")
	require.False(t, ok)
	cache.Update("a", incr(time.Second, clock))
	val, _, ok = cache.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, val)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.EntriesAmount))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.HitsTotal))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.MissesTotal))
}

func TestCache_Eviction(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	metrics := NewPrometheusMetrics("test", nil)
	cache, err := New[string, int](2, metrics, Options{Now: clock.Now})
	require.NoError(t, err)

	cache.Update("a", incr(time.Minute, clock))
	cache.Update("b", incr(time.Minute, clock))
	cache.Update("a", incr(time.Minute, clock)) // "b" becomes the least recently used
	cache.Update("c", incr(time.Minute, clock))

	require.Equal(t, 2, cache.Len())
	_, _, ok := cache.Get("b")
	require.False(t, ok)
	val, _, ok := cache.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, val)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.EvictionsTotal))
}

func TestCache_RemoveExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cache, err := New[string, int](10, nil, Options{Now: clock.Now})
	require.NoError(t, err)

	cache.Update("short", incr(time.Second, clock))
	cache.Update("long", incr(time.Hour, clock))
	clock.Advance(time.Minute)

	require.Equal(t, 1, cache.RemoveExpired())
	require.Equal(t, 1, cache.Len())
}

func TestCache_RunPeriodicCleanup(t *testing.T) {
	cache, err := New[string, int](10, nil, Options{})
	require.NoError(t, err)
	cache.Update("a", func(int, time.Time, bool) (int, time.Time) {
		return 1, time.Now().Add(10 * time.Millisecond)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cache.RunPeriodicCleanup(ctx, 5*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return cache.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestNew_InvalidMaxEntries(t *testing.T) {
	_, err := New[string, int](0, nil, Options{})
	require.EqualError(t, err, "maxEntries must be greater than 0")
}
