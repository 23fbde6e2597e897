/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package memorybackend implements backend.Backend with an in-process expiring cache.
// Counters are not shared between processes, so it's meant for tests, local development
// and single-instance deployments.
package memorybackend

import (
	"context"
	"time"

	"github.com/acronis/go-distlimit/backend"
	"github.com/acronis/go-distlimit/internal/expirycache"
)

// Opts represents options for the in-memory backend.
type Opts struct {
	// MetricsCollector receives cache usage metrics. Metrics are disabled when nil.
	MetricsCollector expirycache.MetricsCollector

	// Now returns the current time. time.Now is used when nil.
	Now func() time.Time
}

// Backend keeps counters in process memory. When more than maxKeys counters are live,
// the least recently used one is evicted and its window starts over.
type Backend struct {
	counters *expirycache.Cache[string, int]
	now      func() time.Time
}

var _ backend.Backend = (*Backend)(nil)

// New creates a new in-memory Backend.
func New(maxKeys int, opts Opts) (*Backend, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	counters, err := expirycache.New[string, int](maxKeys, opts.MetricsCollector, expirycache.Options{Now: now})
	if err != nil {
		return nil, err
	}
	return &Backend{counters: counters, now: now}, nil
}

// LoadScript does nothing since the consume operation runs in process. The returned handle is the script name.
func (b *Backend) LoadScript(_ context.Context, script backend.Script) (backend.ScriptHandle, error) {
	return backend.ScriptHandle(script.Name), nil
}

// EvalLimiter consumes one hit for key under the cache lock.
func (b *Backend) EvalLimiter(
	ctx context.Context, key string, limit int, window time.Duration, _ backend.ScriptHandle, _ backend.Script,
) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var blockedFor time.Duration
	b.counters.Update(key, func(count int, expiresAt time.Time, found bool) (int, time.Time) {
		if !found {
			return 1, b.now().Add(window)
		}
		if count+1 > limit {
			blockedFor = backend.RoundUpToMillis(expiresAt.Sub(b.now()))
			return count, expiresAt
		}
		return count + 1, expiresAt
	})
	return blockedFor, nil
}

// RunPeriodicCleanup drops expired counters every interval until ctx is done.
// It's supposed to be run in a separate goroutine.
func (b *Backend) RunPeriodicCleanup(ctx context.Context, interval time.Duration) {
	b.counters.RunPeriodicCleanup(ctx, interval)
}
