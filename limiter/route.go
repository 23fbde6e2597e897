/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import "net/http"

// RouteResolver tells which route the request is served by and at which position the limiter is declared
// among the limiters of that route. found is false when the route is unknown, then both indexes are 0.
type RouteResolver interface {
	ResolveRoute(r *http.Request, l *HTTPLimiter) (routeIndex, dependencyIndex int, found bool)
}

// RouteResolverFunc is an adapter to allow the use of ordinary functions as RouteResolver.
type RouteResolverFunc func(r *http.Request, l *HTTPLimiter) (routeIndex, dependencyIndex int, found bool)

// ResolveRoute calls f(r, l).
func (f RouteResolverFunc) ResolveRoute(r *http.Request, l *HTTPLimiter) (routeIndex, dependencyIndex int, found bool) {
	return f(r, l)
}
