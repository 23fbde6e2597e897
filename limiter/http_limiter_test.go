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

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-distlimit/log"
	"github.com/acronis/go-distlimit/log/logtest"
)

func makeRequest(remoteAddr, path string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestHTTPLimiter_Check(t *testing.T) {
	t.Run("times=3 seconds=10", func(t *testing.T) {
		metrics := NewPrometheusMetrics("", nil)
		reg := newMemoryRegistry(t, InitOpts{MetricsCollector: metrics})
		l, err := NewHTTPLimiter(reg, MustRate(RateParams{Times: 3, Seconds: 10}))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			require.NoError(t, l.Check(httptest.NewRecorder(), makeRequest("10.0.0.1:1000", "/v1/ping")))
		}
		err = l.Check(httptest.NewRecorder(), makeRequest("10.0.0.1:1000", "/v1/ping"))
		var exceededErr *RateLimitExceededError
		require.ErrorAs(t, err, &exceededErr)
		require.GreaterOrEqual(t, exceededErr.RetryAfter, 1)
		require.LessOrEqual(t, exceededErr.RetryAfter, 10)
		require.Greater(t, exceededErr.BlockedFor, time.Duration(0))
		require.LessOrEqual(t, exceededErr.BlockedFor, 10*time.Second)

		require.Equal(t, 3.0, testutil.ToFloat64(metrics.Decisions.WithLabelValues(KindHTTP, OutcomeAllowed)))
		require.Equal(t, 1.0, testutil.ToFloat64(metrics.Decisions.WithLabelValues(KindHTTP, OutcomeBlocked)))
	})

	t.Run("limit=0 admits the first request only", func(t *testing.T) {
		reg := newMemoryRegistry(t, InitOpts{})
		l, err := NewHTTPLimiter(reg, MustRate(RateParams{Times: 0, Minutes: 1}))
		require.NoError(t, err)

		require.NoError(t, l.Check(httptest.NewRecorder(), makeRequest("10.0.0.1:1000", "/")))
		var exceededErr *RateLimitExceededError
		require.ErrorAs(t, l.Check(httptest.NewRecorder(), makeRequest("10.0.0.1:1000", "/")), &exceededErr)
	})

	t.Run("identities are independent", func(t *testing.T) {
		reg := newMemoryRegistry(t, InitOpts{})
		l, err := NewHTTPLimiter(reg, MustRate(RateParams{Times: 2, Seconds: 10}))
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			require.NoError(t, l.Check(httptest.NewRecorder(), makeRequest("10.0.0.1:1000", "/")))
		}
		require.Error(t, l.Check(httptest.NewRecorder(), makeRequest("10.0.0.1:1000", "/")))

		for i := 0; i < 2; i++ {
			require.NoError(t, l.Check(httptest.NewRecorder(), makeRequest("10.0.0.2:1000", "/")))
		}
		// The same client on another path is another identity by default.
		require.NoError(t, l.Check(httptest.NewRecorder(), makeRequest("10.0.0.1:1000", "/other")))
	})

	t.Run("stacked limiters on one route are independent", func(t *testing.T) {
		var first, second *HTTPLimiter
		resolver := RouteResolverFunc(func(r *http.Request, l *HTTPLimiter) (int, int, bool) {
			switch l {
			case first:
				return 1, 0, true
			case second:
				return 1, 1, true
			}
			return 0, 0, false
		})
		reg := newMemoryRegistry(t, InitOpts{RouteResolver: resolver})
		rate := MustRate(RateParams{Times: 1, Seconds: 10})
		var err error
		first, err = NewHTTPLimiter(reg, rate)
		require.NoError(t, err)
		second, err = NewHTTPLimiter(reg, rate)
		require.NoError(t, err)

		require.NoError(t, first.Check(httptest.NewRecorder(), makeRequest("10.0.0.1:1000", "/")))
		require.Error(t, first.Check(httptest.NewRecorder(), makeRequest("10.0.0.1:1000", "/")))
		require.NoError(t, second.Check(httptest.NewRecorder(), makeRequest("10.0.0.1:1000", "/")))
	})

	t.Run("key layout", func(t *testing.T) {
		b := &mockBackend{}
		reg := NewRegistry()
		resolver := RouteResolverFunc(func(r *http.Request, l *HTTPLimiter) (int, int, bool) {
			if r.URL.Path == "/known" {
				return 3, 2, true
			}
			return 7, 7, false
		})
		require.NoError(t, reg.Init(context.Background(), b, InitOpts{KeyPrefix: "svc", RouteResolver: resolver}))
		defer func() { require.NoError(t, reg.Close(context.Background())) }()
		l, err := NewHTTPLimiter(reg, MustRate(RateParams{Times: 1, Seconds: 1}))
		require.NoError(t, err)

		require.NoError(t, l.Check(httptest.NewRecorder(), makeRequest("10.0.0.1:1000", "/known")))
		require.NoError(t, l.Check(httptest.NewRecorder(), makeRequest("10.0.0.1:1000", "/unknown")))
		require.Equal(t, []string{"svc:10.0.0.1:/known:3:2", "svc:10.0.0.1:/unknown:0:0"}, b.Keys())
	})

	t.Run("custom callback lets the request proceed", func(t *testing.T) {
		reg := newMemoryRegistry(t, InitOpts{})
		teapot := func(rw http.ResponseWriter, _ *http.Request, blockedFor time.Duration) error {
			rw.Header().Set("X-Rate-Limited", "teapot")
			rw.WriteHeader(http.StatusTeapot)
			return nil
		}
		l, err := NewHTTPLimiterWithOpts(reg, MustRate(RateParams{Times: 1, Seconds: 10}), HTTPLimiterOpts{Callback: teapot})
		require.NoError(t, err)

		require.NoError(t, l.Check(httptest.NewRecorder(), makeRequest("10.0.0.1:1000", "/")))
		rec := httptest.NewRecorder()
		require.NoError(t, l.Check(rec, makeRequest("10.0.0.1:1000", "/")))
		require.Equal(t, http.StatusTeapot, rec.Code)
		require.Equal(t, "teapot", rec.Header().Get("X-Rate-Limited"))
	})

	t.Run("registry callback and identity", func(t *testing.T) {
		reg := newMemoryRegistry(t, InitOpts{
			Identity: func(r *http.Request) (string, error) { return r.Header.Get("X-Api-Key"), nil },
			HTTPCallback: func(http.ResponseWriter, *http.Request, time.Duration) error {
				return ErrRequestHandled
			},
		})
		l, err := NewHTTPLimiter(reg, MustRate(RateParams{Times: 1, Seconds: 10}))
		require.NoError(t, err)

		req1 := makeRequest("10.0.0.1:1000", "/")
		req1.Header.Set("X-Api-Key", "key-1")
		req2 := makeRequest("10.0.0.2:1000", "/")
		req2.Header.Set("X-Api-Key", "key-1")
		require.NoError(t, l.Check(httptest.NewRecorder(), req1))
		require.ErrorIs(t, l.Check(httptest.NewRecorder(), req2), ErrRequestHandled)
	})

	t.Run("identity failure", func(t *testing.T) {
		identityErr := errors.New("no api key")
		reg := newMemoryRegistry(t, InitOpts{})
		l, err := NewHTTPLimiterWithOpts(reg, MustRate(RateParams{Times: 1, Seconds: 1}), HTTPLimiterOpts{
			Identity: func(*http.Request) (string, error) { return "", identityErr },
		})
		require.NoError(t, err)

		err = l.Check(httptest.NewRecorder(), makeRequest("10.0.0.1:1000", "/"))
		var idErr *IdentityError
		require.ErrorAs(t, err, &idErr)
		require.ErrorIs(t, err, identityErr)
	})

	t.Run("store failure fails closed", func(t *testing.T) {
		storeErr := errors.New("connection reset by peer")
		b := &mockBackend{evalFunc: func(context.Context, string) (time.Duration, error) { return 0, storeErr }}
		reg := NewRegistry()
		require.NoError(t, reg.Init(context.Background(), b, InitOpts{}))
		defer func() { require.NoError(t, reg.Close(context.Background())) }()
		l, err := NewHTTPLimiter(reg, MustRate(RateParams{Times: 1, Seconds: 1}))
		require.NoError(t, err)

		err = l.Check(httptest.NewRecorder(), makeRequest("10.0.0.1:1000", "/"))
		var sErr *StoreError
		require.ErrorAs(t, err, &sErr)
		require.Equal(t, "rate-limit:10.0.0.1:/:0:0", sErr.Key)
		require.ErrorIs(t, err, storeErr)
	})

	t.Run("cancellation fails open", func(t *testing.T) {
		b := &mockBackend{evalFunc: func(ctx context.Context, _ string) (time.Duration, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		}}
		logRecorder := logtest.NewRecorder()
		metrics := NewPrometheusMetrics("", nil)
		reg := NewRegistry()
		require.NoError(t, reg.Init(context.Background(), b, InitOpts{Logger: logRecorder, MetricsCollector: metrics}))
		defer func() { require.NoError(t, reg.Close(context.Background())) }()
		l, err := NewHTTPLimiter(reg, MustRate(RateParams{Times: 1, Seconds: 1}))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := makeRequest("10.0.0.1:1000", "/").WithContext(ctx)
		require.NoError(t, l.Check(httptest.NewRecorder(), req))

		entry, found := logRecorder.FindEntry("rate limit check interrupted by request cancellation, letting it through")
		require.True(t, found)
		require.Equal(t, log.LevelDebug, entry.Level)
		require.Equal(t, 1.0, testutil.ToFloat64(metrics.Decisions.WithLabelValues(KindHTTP, OutcomeCanceled)))
	})

	t.Run("invalid rate", func(t *testing.T) {
		_, err := NewHTTPLimiter(NewRegistry(), Rate{Count: 1})
		require.ErrorIs(t, err, ErrInvalidRate)
		_, err = NewHTTPLimiter(NewRegistry(), Rate{Count: -1, Window: time.Second})
		require.ErrorIs(t, err, ErrInvalidRate)
	})
}
