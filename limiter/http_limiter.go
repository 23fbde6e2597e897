/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"net/http"
	"strconv"
)

// HTTPLimiterOpts represents options for HTTPLimiter. Nil fields fall back to the registry settings.
type HTTPLimiterOpts struct {
	Identity IdentityFunc
	Callback HTTPCallback
}

// HTTPLimiter admits at most Rate.Count requests per Rate.Window for every client identity and route.
type HTTPLimiter struct {
	registry *Registry
	rate     Rate
	identity IdentityFunc
	callback HTTPCallback
}

// NewHTTPLimiter creates a new HTTPLimiter.
func NewHTTPLimiter(registry *Registry, rate Rate) (*HTTPLimiter, error) {
	return NewHTTPLimiterWithOpts(registry, rate, HTTPLimiterOpts{})
}

// NewHTTPLimiterWithOpts is a more configurable version of NewHTTPLimiter.
func NewHTTPLimiterWithOpts(registry *Registry, rate Rate, opts HTTPLimiterOpts) (*HTTPLimiter, error) {
	if err := rate.validate(); err != nil {
		return nil, err
	}
	return &HTTPLimiter{registry: registry, rate: rate, identity: opts.Identity, callback: opts.Callback}, nil
}

// MustHTTPLimiter is a version of NewHTTPLimiterWithOpts that panics if an error occurs.
func MustHTTPLimiter(registry *Registry, rate Rate, opts HTTPLimiterOpts) *HTTPLimiter {
	l, err := NewHTTPLimiterWithOpts(registry, rate, opts)
	if err != nil {
		panic(err)
	}
	return l
}

// Rate returns the rate the limiter admits requests with.
func (l *HTTPLimiter) Rate() Rate {
	return l.rate
}

// Check counts the request and decides whether it may proceed.
// It returns nil if the request is admitted (or the callback let it through).
// When the request is rejected, the result of the callback is returned,
// which is *RateLimitExceededError for the default one.
func (l *HTTPLimiter) Check(rw http.ResponseWriter, r *http.Request) error {
	st := l.registry.snapshot()
	if st == nil {
		return ErrNotInitialized
	}

	routeIndex, dependencyIndex := 0, 0
	if st.routeResolver != nil {
		if ri, di, found := st.routeResolver.ResolveRoute(r, l); found {
			routeIndex, dependencyIndex = ri, di
		}
	}

	identity := l.identity
	if identity == nil {
		identity = st.identity
	}
	if identity == nil {
		return ErrIdentityNotConfigured
	}
	callback := l.callback
	if callback == nil {
		callback = st.httpCallback
	}
	if callback == nil {
		return ErrCallbackNotConfigured
	}

	id, err := identity(r)
	if err != nil {
		st.metrics.IncDecisions(KindHTTP, OutcomeError)
		return &IdentityError{Err: err}
	}
	key := makeHTTPKey(st.keyPrefix, id, routeIndex, dependencyIndex)

	blockedFor, canceled, err := st.consume(r.Context(), KindHTTP, key, l.rate)
	if err != nil {
		return err
	}
	if canceled {
		return nil
	}
	if blockedFor == 0 {
		st.metrics.IncDecisions(KindHTTP, OutcomeAllowed)
		return nil
	}
	st.metrics.IncDecisions(KindHTTP, OutcomeBlocked)
	return callback(rw, r, blockedFor)
}

func makeHTTPKey(prefix, identity string, routeIndex, dependencyIndex int) string {
	return prefix + ":" + identity + ":" + strconv.Itoa(routeIndex) + ":" + strconv.Itoa(dependencyIndex)
}
