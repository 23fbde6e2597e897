/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-distlimit/limiter"
)

type routeKey struct {
	method  string
	pattern string
}

type boundRoute struct {
	index    int
	limiters []*limiter.HTTPLimiter
}

// RouteTable remembers which limiters guard which chi route and implements limiter.RouteResolver.
// Routes are numbered from 1 in the order of binding, so 0 is left for requests of unknown routes.
// A limiter's dependency index is its position among the limiters bound to the route.
type RouteTable struct {
	mu        sync.RWMutex
	routes    map[routeKey]*boundRoute
	lastIndex int
}

var _ limiter.RouteResolver = (*RouteTable)(nil)

// NewRouteTable creates a new empty RouteTable.
func NewRouteTable() *RouteTable {
	return &RouteTable{routes: make(map[routeKey]*boundRoute)}
}

// Bind appends limiters to the route identified by method (empty for any method) and chi pattern.
// The pattern must be the full one as chi reports it for the request, so routes of subrouters should be
// registered with Handle instead.
func (rt *RouteTable) Bind(method, pattern string, limiters ...*limiter.HTTPLimiter) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	key := routeKey{strings.ToUpper(method), pattern}
	route, ok := rt.routes[key]
	if !ok {
		route = rt.newRoute()
		rt.routes[key] = route
	}
	route.limiters = append(route.limiters, limiters...)
}

// bindNew always creates a new route, so equal relative patterns of different subrouters don't share one.
// The route is reachable by pattern only if no other route has been bound to it yet.
func (rt *RouteTable) bindNew(method, pattern string, limiters ...*limiter.HTTPLimiter) *boundRoute {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	route := rt.newRoute()
	route.limiters = append(route.limiters, limiters...)
	key := routeKey{strings.ToUpper(method), pattern}
	if _, ok := rt.routes[key]; !ok {
		rt.routes[key] = route
	}
	return route
}

func (rt *RouteTable) newRoute() *boundRoute {
	rt.lastIndex++
	return &boundRoute{index: rt.lastIndex}
}

// Handle binds limiters to the route and registers the handler in the router behind the RateLimit middleware
// for each of them, stacked in the given order. The route is attached to the request context before the limiters run,
// so it's resolved the same way whether router is the root one, a subrouter or a mounted one.
func (rt *RouteTable) Handle(
	router chi.Router, method, pattern string, handler http.Handler, errDomain string, limiters ...*limiter.HTTPLimiter,
) {
	route := rt.bindNew(method, pattern, limiters...)
	mws := make([]func(http.Handler) http.Handler, 0, len(limiters)+1)
	mws = append(mws, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), ctxKeyBoundRoute, route)))
		})
	})
	for _, l := range limiters {
		mws = append(mws, RateLimit(l, errDomain))
	}
	if method == "" {
		router.With(mws...).Handle(pattern, handler)
		return
	}
	router.With(mws...).Method(method, pattern, handler)
}

// ResolveRoute finds the route of the request and the position of l among the limiters of the route.
// A route attached to the request context by Handle wins. Otherwise the route is looked up by the chi route pattern
// (the URL path if the request isn't routed by chi), and routes bound to the request method take precedence
// over the ones bound to any method.
func (rt *RouteTable) ResolveRoute(r *http.Request, l *limiter.HTTPLimiter) (routeIndex, dependencyIndex int, found bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	if route, ok := r.Context().Value(ctxKeyBoundRoute).(*boundRoute); ok {
		if i, ok := route.indexOf(l); ok {
			return route.index, i, true
		}
	}

	pattern := GetChiRoutePattern(r)
	if pattern == "" {
		pattern = r.URL.Path
	}

	for _, key := range [...]routeKey{{r.Method, pattern}, {"", pattern}} {
		route, ok := rt.routes[key]
		if !ok {
			continue
		}
		if i, ok := route.indexOf(l); ok {
			return route.index, i, true
		}
	}
	return 0, 0, false
}

func (br *boundRoute) indexOf(l *limiter.HTTPLimiter) (int, bool) {
	for i, boundLimiter := range br.limiters {
		if boundLimiter == l {
			return i, true
		}
	}
	return 0, false
}
