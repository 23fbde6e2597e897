/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-distlimit/limiter"
)

func TestRouteTable(t *testing.T) {
	routeTable := NewRouteTable()
	reg := newTestRegistry(t, nil, limiter.InitOpts{
		RouteResolver: routeTable,
		// The same identity for all paths, so only route indexes tell the counters apart.
		Identity: func(r *http.Request) (string, error) { return "client", nil },
	})
	rate := limiter.MustRate(limiter.RateParams{Times: 1, Seconds: 10})
	perSecond := limiter.MustHTTPLimiter(reg, rate, limiter.HTTPLimiterOpts{})
	perBurst := limiter.MustHTTPLimiter(reg, rate, limiter.HTTPLimiterOpts{})
	shared := limiter.MustHTTPLimiter(reg, rate, limiter.HTTPLimiterOpts{})

	router := chi.NewRouter()
	next, servedCount := makeNext()
	routeTable.Handle(router, http.MethodPost, "/v1/embedding/keywords", next, testErrDomain, perSecond, perBurst)
	routeTable.Handle(router, http.MethodPost, "/v1/embedding/sentence", next, testErrDomain, shared)
	routeTable.Handle(router, http.MethodPost, "/v1/items/{id}", next, testErrDomain, shared)

	send := func(path string) int {
		respRec := httptest.NewRecorder()
		router.ServeHTTP(respRec, httptest.NewRequest(http.MethodPost, path, nil))
		return respRec.Code
	}

	t.Run("resolve", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/embedding/keywords", nil)
		ri, di, found := routeTable.ResolveRoute(req, perBurst)
		require.True(t, found)
		require.Equal(t, 1, ri)
		require.Equal(t, 1, di)

		_, _, found = routeTable.ResolveRoute(httptest.NewRequest(http.MethodGet, "/v1/embedding/keywords", nil), perBurst)
		require.False(t, found)
		_, _, found = routeTable.ResolveRoute(req, shared)
		require.False(t, found)
	})

	t.Run("stacked limiters use separate counters", func(t *testing.T) {
		// Both limiters admit the first request; if they shared a counter, perBurst would reject it.
		require.Equal(t, http.StatusOK, send("/v1/embedding/keywords"))
		require.Equal(t, http.StatusTooManyRequests, send("/v1/embedding/keywords"))
	})

	t.Run("shared limiter counts every route separately", func(t *testing.T) {
		require.Equal(t, http.StatusOK, send("/v1/embedding/sentence"))
		require.Equal(t, http.StatusOK, send("/v1/items/1"))
		// Route pattern, not path, identifies the route.
		require.Equal(t, http.StatusTooManyRequests, send("/v1/items/2"))
		require.Equal(t, http.StatusTooManyRequests, send("/v1/embedding/sentence"))
	})

	require.Equal(t, int32(3), servedCount.Load())
}

func TestRouteTable_AnyMethod(t *testing.T) {
	routeTable := NewRouteTable()
	reg := newTestRegistry(t, nil, limiter.InitOpts{RouteResolver: routeTable})
	l := limiter.MustHTTPLimiter(reg, limiter.MustRate(limiter.RateParams{Times: 1, Seconds: 10}), limiter.HTTPLimiterOpts{})

	routeTable.Bind("", "/ping", l)
	ri, di, found := routeTable.ResolveRoute(httptest.NewRequest(http.MethodDelete, "/ping", nil), l)
	require.True(t, found)
	require.Equal(t, 1, ri)
	require.Equal(t, 0, di)
}

func TestRouteTable_Subrouters(t *testing.T) {
	routeTable := NewRouteTable()
	reg := newTestRegistry(t, nil, limiter.InitOpts{
		RouteResolver: routeTable,
		Identity:      func(r *http.Request) (string, error) { return "client", nil },
	})
	rate := limiter.MustRate(limiter.RateParams{Times: 1, Seconds: 10})
	perSecond := limiter.MustHTTPLimiter(reg, rate, limiter.HTTPLimiterOpts{})
	perBurst := limiter.MustHTTPLimiter(reg, rate, limiter.HTTPLimiterOpts{})
	shared := limiter.MustHTTPLimiter(reg, rate, limiter.HTTPLimiterOpts{})

	next, servedCount := makeNext()
	router := chi.NewRouter()
	router.Route("/v1", func(r chi.Router) {
		routeTable.Handle(r, http.MethodGet, "/x", next, testErrDomain, perSecond, perBurst)
		routeTable.Handle(r, http.MethodGet, "/y", next, testErrDomain, shared)
	})
	router.Route("/v2", func(r chi.Router) {
		routeTable.Handle(r, http.MethodGet, "/y", next, testErrDomain, shared)
	})
	mounted := chi.NewRouter()
	routeTable.Handle(mounted, http.MethodGet, "/z", next, testErrDomain, perSecond, perBurst)
	router.Mount("/v3", mounted)

	send := func(path string) int {
		respRec := httptest.NewRecorder()
		router.ServeHTTP(respRec, httptest.NewRequest(http.MethodGet, path, nil))
		return respRec.Code
	}

	// The first request passes both stacked limiters only if their counters are separate.
	require.Equal(t, http.StatusOK, send("/v1/x"))
	require.Equal(t, http.StatusTooManyRequests, send("/v1/x"))

	require.Equal(t, http.StatusOK, send("/v3/z"))
	require.Equal(t, http.StatusTooManyRequests, send("/v3/z"))

	// Equal relative patterns of different subrouters are different routes.
	require.Equal(t, http.StatusOK, send("/v1/y"))
	require.Equal(t, http.StatusOK, send("/v2/y"))
	require.Equal(t, http.StatusTooManyRequests, send("/v2/y"))

	require.Equal(t, int32(4), servedCount.Load())
}
