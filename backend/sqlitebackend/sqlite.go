/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package sqlitebackend implements backend.Backend on top of a SQLite database file
// that may be shared by several processes on the same host.
package sqlitebackend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/acronis/go-distlimit/backend"
	"github.com/acronis/go-distlimit/log"
)

const driverName = "sqlite"

const (
	createTableQuery = `CREATE TABLE IF NOT EXISTS rate_limit_counters (
	key TEXT PRIMARY KEY,
	count INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
)`
	selectCounterQuery = `SELECT count, expires_at FROM rate_limit_counters WHERE key = ?`
	upsertCounterQuery = `INSERT INTO rate_limit_counters (key, count, expires_at) VALUES (?, 1, ?)
ON CONFLICT(key) DO UPDATE SET count = 1, expires_at = excluded.expires_at`
	incrementCounterQuery = `UPDATE rate_limit_counters SET count = count + 1 WHERE key = ?`
	purgeCountersQuery    = `DELETE FROM rate_limit_counters WHERE expires_at <= ?`
)

// Opts represents options for the SQLite backend.
type Opts struct {
	// Logger is used for reporting schema reloads and purge failures. Disabled logger is used when nil.
	Logger log.FieldLogger

	// Now returns the current time. time.Now is used when nil.
	Now func() time.Time
}

// Backend keeps counters in a SQLite table. SQLite has no server-side scripting,
// so the consume operation runs as an immediate (write-locked) transaction and "loading the script"
// means creating the counters table.
type Backend struct {
	db          *sql.DB
	logger      log.FieldLogger
	now         func() time.Time
	reloadGroup singleflight.Group
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.Closer = (*Backend)(nil)

// Open opens (or creates) the database file described by cfg.
func Open(cfg backend.SQLiteConfig, opts Opts) (*Backend, error) {
	db, err := sql.Open(driverName, makeDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", cfg.Path, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Backend{db: db, logger: logger, now: now}, nil
}

func makeDSN(cfg backend.SQLiteConfig) string {
	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = backend.DefaultSQLiteBusyTimeout
	}
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	params.Add("_pragma", "journal_mode(WAL)")
	params.Set("_txlock", "immediate")
	return "file:" + cfg.Path + "?" + params.Encode()
}

// LoadScript makes sure the counters table exists. The returned handle is the script name.
func (b *Backend) LoadScript(ctx context.Context, script backend.Script) (backend.ScriptHandle, error) {
	if _, err := b.db.ExecContext(ctx, createTableQuery); err != nil {
		return "", fmt.Errorf("create counters table for %q script: %w", script.Name, err)
	}
	return backend.ScriptHandle(script.Name), nil
}

type consumeResult struct {
	blockedFor time.Duration
	err        error
}

// EvalLimiter runs the consume transaction in a separate goroutine so a slow or locked database file
// never holds the caller past its context. If the counters table has been dropped,
// it's created again and the transaction is retried once.
func (b *Backend) EvalLimiter(
	ctx context.Context, key string, limit int, window time.Duration, _ backend.ScriptHandle, script backend.Script,
) (time.Duration, error) {
	resultCh := make(chan consumeResult, 1)
	go func() {
		// The transaction must finish as a whole even if the caller leaves.
		txCtx := context.WithoutCancel(ctx)
		blockedFor, err := b.consumeWithReload(txCtx, key, limit, window, script)
		resultCh <- consumeResult{blockedFor, err}
	}()

	select {
	case res := <-resultCh:
		return res.blockedFor, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (b *Backend) consumeWithReload(
	ctx context.Context, key string, limit int, window time.Duration, script backend.Script,
) (time.Duration, error) {
	blockedFor, err := b.consume(ctx, key, limit, window)
	if err == nil || !errors.Is(err, backend.ErrScriptNotLoaded) {
		return blockedFor, err
	}

	b.logger.Warn("rate limiting counters table is missing, recreating", log.String("script", script.Name))
	if _, err, _ = b.reloadGroup.Do(script.Name, func() (interface{}, error) {
		return b.LoadScript(ctx, script)
	}); err != nil {
		return 0, err
	}
	return b.consume(ctx, key, limit, window)
}

func (b *Backend) consume(ctx context.Context, key string, limit int, window time.Duration) (blockedFor time.Duration, err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	nowMs := b.now().UnixMilli()
	var count, expiresAt int64
	switch err = tx.QueryRowContext(ctx, selectCounterQuery, key).Scan(&count, &expiresAt); {
	case errors.Is(err, sql.ErrNoRows):
		count, expiresAt = 0, 0
	case err != nil:
		return 0, wrapQueryErr(err)
	}

	switch {
	case expiresAt <= nowMs:
		if _, err = tx.ExecContext(ctx, upsertCounterQuery, key, nowMs+window.Milliseconds()); err != nil {
			return 0, wrapQueryErr(err)
		}
	case count+1 > int64(limit):
		blockedFor = time.Duration(expiresAt-nowMs) * time.Millisecond
	default:
		if _, err = tx.ExecContext(ctx, incrementCounterQuery, key); err != nil {
			return 0, wrapQueryErr(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return blockedFor, nil
}

func wrapQueryErr(err error) error {
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: %v", backend.ErrScriptNotLoaded, err)
	}
	return err
}

// Purge deletes expired counters and returns how many were deleted.
// Expired rows are already ignored by EvalLimiter, so purging only bounds the file size.
func (b *Backend) Purge(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx, purgeCountersQuery, b.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge expired counters: %w", err)
	}
	return res.RowsAffected()
}

// RunPeriodicPurge calls Purge every interval until ctx is done.
// It's supposed to be run in a separate goroutine.
func (b *Backend) RunPeriodicPurge(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := b.Purge(ctx)
			if err != nil {
				if ctx.Err() == nil {
					b.logger.Error("failed to purge expired rate limiting counters", log.Error(err))
				}
				continue
			}
			if n > 0 {
				b.logger.Debug("expired rate limiting counters purged", log.Int64("purged", n))
			}
		}
	}
}

// Ping checks the database file can be opened.
func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close closes the database.
func (b *Backend) Close(_ context.Context) error {
	return b.db.Close()
}
