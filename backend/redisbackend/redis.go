/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package redisbackend implements backend.Backend on top of Redis (or any store speaking its protocol)
// using server-side Lua scripts cached by SHA1.
package redisbackend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/acronis/go-distlimit/backend"
	"github.com/acronis/go-distlimit/log"
)

// Opts represents options for the Redis backend.
type Opts struct {
	// Logger is used for reporting script reloads. Disabled logger is used when nil.
	Logger log.FieldLogger
}

// Backend runs the consume script in Redis.
type Backend struct {
	client      redis.UniversalClient
	ownsClient  bool
	logger      log.FieldLogger
	reloadGroup singleflight.Group
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.Closer = (*Backend)(nil)

// New creates a new Backend over the existing client. The caller keeps ownership of the client,
// so Close doesn't close it.
func New(client redis.UniversalClient, opts Opts) *Backend {
	return newBackend(client, false, opts)
}

// NewFromConfig creates a new Backend with its own client built from cfg. Close releases the client.
func NewFromConfig(cfg backend.RedisConfig, opts Opts) *Backend {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newBackend(client, true, opts)
}

func newBackend(client redis.UniversalClient, ownsClient bool, opts Opts) *Backend {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &Backend{client: client, ownsClient: ownsClient, logger: logger}
}

// Ping checks that the store is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// LoadScript installs the script in the store script cache and returns its SHA1 digest.
func (b *Backend) LoadScript(ctx context.Context, script backend.Script) (backend.ScriptHandle, error) {
	sha, err := b.client.ScriptLoad(ctx, script.Lua).Result()
	if err != nil {
		return "", fmt.Errorf("load %q script: %w", script.Name, err)
	}
	return backend.ScriptHandle(sha), nil
}

// EvalLimiter runs the script by its digest. If the store has lost the script,
// it's loaded again and the call is retried once.
func (b *Backend) EvalLimiter(
	ctx context.Context, key string, limit int, window time.Duration, handle backend.ScriptHandle, script backend.Script,
) (time.Duration, error) {
	blockedFor, err := b.evalSha(ctx, key, limit, window, handle)
	if err == nil || !errors.Is(err, backend.ErrScriptNotLoaded) {
		return blockedFor, err
	}

	b.logger.Warn("rate limiting script is missing in the store, reloading",
		log.String("script", script.Name), log.String("sha", string(handle)))
	if handle, err = b.reloadScript(ctx, script); err != nil {
		return 0, err
	}
	return b.evalSha(ctx, key, limit, window, handle)
}

// reloadScript loads the script once for all callers that hit the missing script concurrently.
func (b *Backend) reloadScript(ctx context.Context, script backend.Script) (backend.ScriptHandle, error) {
	res, err, _ := b.reloadGroup.Do(script.Name, func() (interface{}, error) {
		return b.LoadScript(ctx, script)
	})
	if err != nil {
		return "", err
	}
	return res.(backend.ScriptHandle), nil
}

func (b *Backend) evalSha(
	ctx context.Context, key string, limit int, window time.Duration, handle backend.ScriptHandle,
) (time.Duration, error) {
	res, err := b.client.EvalSha(ctx, string(handle), []string{key}, limit, window.Milliseconds()).Int64()
	if err != nil {
		if isNoScriptErr(err) {
			return 0, fmt.Errorf("%w: %v", backend.ErrScriptNotLoaded, err)
		}
		return 0, err
	}
	if res <= 0 {
		return 0, nil
	}
	return time.Duration(res) * time.Millisecond, nil
}

func isNoScriptErr(err error) bool {
	return strings.HasPrefix(err.Error(), "NOSCRIPT")
}

// Close closes the client if it was created by the Backend.
func (b *Backend) Close(_ context.Context) error {
	if !b.ownsClient {
		return nil
	}
	if err := b.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
