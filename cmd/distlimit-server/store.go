/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-distlimit/backend"
	"github.com/acronis/go-distlimit/backend/memorybackend"
	"github.com/acronis/go-distlimit/backend/redisbackend"
	"github.com/acronis/go-distlimit/backend/sqlitebackend"
	"github.com/acronis/go-distlimit/internal/expirycache"
	"github.com/acronis/go-distlimit/log"
	"github.com/acronis/go-distlimit/retry"
)

const memoryStoreCleanupPeriod = time.Minute

// store is the backend chosen by configuration together with its maintenance routine and health probe.
type store struct {
	backend.Backend

	// maintain runs until ctx is done. It's nil when the store needs no maintenance.
	maintain func(ctx context.Context)

	// ping checks the store is reachable. It's nil for the in-process store.
	ping func(ctx context.Context) error
}

var _ backend.Closer = (*store)(nil)

// Close closes the underlying backend if it holds any resources.
func (s *store) Close(ctx context.Context) error {
	if closer, ok := s.Backend.(backend.Closer); ok {
		return closer.Close(ctx)
	}
	return nil
}

func openStore(ctx context.Context, cfg *backend.Config, logger log.FieldLogger, metricsRegisterer prometheus.Registerer) (*store, error) {
	switch cfg.Type {
	case backend.TypeRedis:
		b := redisbackend.NewFromConfig(cfg.Redis, redisbackend.Opts{Logger: logger})
		if err := waitStoreReady(ctx, b.Ping, logger); err != nil {
			_ = b.Close(ctx)
			return nil, fmt.Errorf("redis store %s is not ready: %w", cfg.Redis.Addr, err)
		}
		return &store{Backend: b, ping: b.Ping}, nil

	case backend.TypeSQLite:
		b, err := sqlitebackend.Open(cfg.SQLite, sqlitebackend.Opts{Logger: logger})
		if err != nil {
			return nil, err
		}
		if err = waitStoreReady(ctx, b.Ping, logger); err != nil {
			_ = b.Close(ctx)
			return nil, fmt.Errorf("sqlite store %s is not ready: %w", cfg.SQLite.Path, err)
		}
		return &store{Backend: b, ping: b.Ping, maintain: func(ctx context.Context) {
			b.RunPeriodicPurge(ctx, cfg.SQLite.PurgeInterval)
		}}, nil

	case backend.TypeMemory:
		var metrics expirycache.MetricsCollector
		if metricsRegisterer != nil {
			promMetrics := expirycache.NewPrometheusMetrics("distlimit", prometheus.Labels{"cache": "rate_limit_counters"})
			metricsRegisterer.MustRegister(promMetrics.EntriesAmount, promMetrics.HitsTotal, promMetrics.MissesTotal,
				promMetrics.EvictionsTotal)
			metrics = promMetrics
		}
		b, err := memorybackend.New(cfg.Memory.MaxKeys, memorybackend.Opts{MetricsCollector: metrics})
		if err != nil {
			return nil, err
		}
		return &store{Backend: b, maintain: func(ctx context.Context) {
			b.RunPeriodicCleanup(ctx, memoryStoreCleanupPeriod)
		}}, nil
	}
	return nil, fmt.Errorf("unknown store type %q", cfg.Type)
}

// waitStoreReady pings the store with exponential backoff, so instances may start before the store does.
func waitStoreReady(ctx context.Context, ping func(ctx context.Context) error, logger log.FieldLogger) error {
	return retry.Do(ctx, retry.DefaultPolicy(), ping, retry.Opts{
		Notify: func(err error, next time.Duration) {
			logger.Warn("store is not ready, retrying", log.Error(err), log.Int64("retry_in_ms", next.Milliseconds()))
		},
	})
}
