/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-distlimit/backend/redisbackend"
	"github.com/acronis/go-distlimit/log/logtest"
)

func TestRegistry_Init(t *testing.T) {
	t.Run("script is loaded", func(t *testing.T) {
		b := &mockBackend{}
		logRecorder := logtest.NewRecorder()
		reg := NewRegistry()
		require.False(t, reg.IsInitialized())
		require.NoError(t, reg.Init(context.Background(), b, InitOpts{Logger: logRecorder}))
		require.True(t, reg.IsInitialized())
		require.Equal(t, int32(1), b.loadCalls.Load())

		entry, found := logRecorder.FindEntry("rate limiter registry initialized")
		require.True(t, found)
		field, found := entry.FindField("key_prefix")
		require.True(t, found)
		require.Equal(t, DefaultKeyPrefix, string(field.Bytes))

		require.ErrorIs(t, reg.Init(context.Background(), b, InitOpts{}), ErrAlreadyInitialized)
		require.NoError(t, reg.Close(context.Background()))
	})

	t.Run("script loading failure is fatal", func(t *testing.T) {
		loadErr := errors.New("connection refused")
		reg := NewRegistry()
		err := reg.Init(context.Background(), &mockBackend{loadErr: loadErr}, InitOpts{})
		require.ErrorIs(t, err, loadErr)
		require.False(t, reg.IsInitialized())

		l, err := NewHTTPLimiter(reg, MustRate(RateParams{Times: 1, Seconds: 1}))
		require.NoError(t, err)
		require.ErrorIs(t, l.Check(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)), ErrNotInitialized)
	})

	t.Run("nil backend", func(t *testing.T) {
		require.Error(t, NewRegistry().Init(context.Background(), nil, InitOpts{}))
	})
}

func TestRegistry_Close(t *testing.T) {
	t.Run("before init", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Close(context.Background()))
		require.NoError(t, reg.Close(context.Background()))
	})

	t.Run("twice", func(t *testing.T) {
		b := &mockBackend{}
		reg := NewRegistry()
		require.NoError(t, reg.Init(context.Background(), b, InitOpts{}))
		require.NoError(t, reg.Close(context.Background()))
		require.NoError(t, reg.Close(context.Background()))
		require.Equal(t, int32(1), b.closeCalls.Load())
		require.False(t, reg.IsInitialized())
	})

	t.Run("limiters fail fast after close", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Init(context.Background(), &mockBackend{}, InitOpts{}))
		httpLimiter, err := NewHTTPLimiter(reg, MustRate(RateParams{Times: 1, Seconds: 1}))
		require.NoError(t, err)
		wsLimiter, err := NewWSLimiter(reg, MustRate(RateParams{Times: 1, Seconds: 1}))
		require.NoError(t, err)
		require.NoError(t, reg.Close(context.Background()))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		require.ErrorIs(t, httpLimiter.Check(httptest.NewRecorder(), req), ErrNotInitialized)
		allowed, err := wsLimiter.Check(context.Background(), &mockWebSocket{req: req}, "user1")
		require.ErrorIs(t, err, ErrNotInitialized)
		require.False(t, allowed)
	})

	t.Run("re-init after close", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Init(context.Background(), &mockBackend{}, InitOpts{}))
		require.NoError(t, reg.Close(context.Background()))
		require.NoError(t, reg.Init(context.Background(), &mockBackend{}, InitOpts{}))
		require.NoError(t, reg.Close(context.Background()))
	})
}

func TestRegistry_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	reg := NewRegistry()
	require.NoError(t, reg.Init(context.Background(), redisbackend.New(client, redisbackend.Opts{}), InitOpts{}))
	defer func() { require.NoError(t, reg.Close(context.Background())) }()

	l, err := NewHTTPLimiter(reg, MustRate(RateParams{Times: 1, Seconds: 10}))
	require.NoError(t, err)
	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/v1/embedding/sentence", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		return req
	}

	t.Run("missing script is reloaded transparently", func(t *testing.T) {
		require.NoError(t, client.ScriptFlush(context.Background()).Err())
		require.NoError(t, l.Check(httptest.NewRecorder(), newReq()))
		require.True(t, mr.Exists("rate-limit:10.0.0.1:/v1/embedding/sentence:0:0"))
	})

	t.Run("window is shared through the store", func(t *testing.T) {
		var exceededErr *RateLimitExceededError
		require.ErrorAs(t, l.Check(httptest.NewRecorder(), newReq()), &exceededErr)
		require.Equal(t, 10, exceededErr.RetryAfter)

		mr.FastForward(10 * time.Second)
		require.NoError(t, l.Check(httptest.NewRecorder(), newReq()))
	})
}
