/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RoutePatternGetterFunc is a function for getting route pattern from the request.
type RoutePatternGetterFunc func(r *http.Request) string

// GetChiRoutePattern extracts the full chi route pattern ("/v1/items/{id}") from the request.
func GetChiRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

// WrapResponseWriterIfNeeded wraps an http.ResponseWriter (if it is not already wrapped), so the status code
// and the number of written bytes may be read after the handler is done.
// The wrapper keeps http.Hijacker, so WebSocket upgrades pass through.
func WrapResponseWriterIfNeeded(rw http.ResponseWriter, protoMajor int) chimw.WrapResponseWriter {
	if wrw, ok := rw.(chimw.WrapResponseWriter); ok {
		return wrw
	}
	return chimw.NewWrapResponseWriter(rw, protoMajor)
}
