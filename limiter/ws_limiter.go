/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"context"
)

// WSLimiterOpts represents options for WSLimiter. Nil fields fall back to the registry settings.
type WSLimiterOpts struct {
	Identity IdentityFunc
	Callback WSCallback
}

// WSLimiter limits messages (or connections) of a WebSocket client.
// Instead of a route, the counter key embeds a caller-supplied context key,
// so one socket handler may keep independent limits for its sub-streams.
type WSLimiter struct {
	registry *Registry
	rate     Rate
	identity IdentityFunc
	callback WSCallback
}

// NewWSLimiter creates a new WSLimiter.
func NewWSLimiter(registry *Registry, rate Rate) (*WSLimiter, error) {
	return NewWSLimiterWithOpts(registry, rate, WSLimiterOpts{})
}

// NewWSLimiterWithOpts is a more configurable version of NewWSLimiter.
func NewWSLimiterWithOpts(registry *Registry, rate Rate, opts WSLimiterOpts) (*WSLimiter, error) {
	if err := rate.validate(); err != nil {
		return nil, err
	}
	return &WSLimiter{registry: registry, rate: rate, identity: opts.Identity, callback: opts.Callback}, nil
}

// Rate returns the rate the limiter admits messages with.
func (l *WSLimiter) Rate() Rate {
	return l.rate
}

// Check counts a hit for the connection and the context key.
// allowed is false when the hit is rejected, the callback has been called then
// (the default one closes the connection with CloseCodeTryAgainLater) and its error is returned.
func (l *WSLimiter) Check(ctx context.Context, ws WebSocket, contextKey string) (allowed bool, err error) {
	st := l.registry.snapshot()
	if st == nil {
		return false, ErrNotInitialized
	}

	identity := l.identity
	if identity == nil {
		identity = st.identity
	}
	if identity == nil {
		return false, ErrIdentityNotConfigured
	}
	callback := l.callback
	if callback == nil {
		callback = st.wsCallback
	}
	if callback == nil {
		return false, ErrCallbackNotConfigured
	}

	id, err := identity(ws.Request())
	if err != nil {
		st.metrics.IncDecisions(KindWebSocket, OutcomeError)
		return false, &IdentityError{Err: err}
	}
	key := makeWSKey(st.keyPrefix, id, contextKey)

	blockedFor, canceled, err := st.consume(ctx, KindWebSocket, key, l.rate)
	if err != nil {
		return false, err
	}
	if canceled {
		return true, nil
	}
	if blockedFor == 0 {
		st.metrics.IncDecisions(KindWebSocket, OutcomeAllowed)
		return true, nil
	}
	st.metrics.IncDecisions(KindWebSocket, OutcomeBlocked)
	return false, callback(ctx, ws, blockedFor)
}

func makeWSKey(prefix, identity, contextKey string) string {
	return prefix + ":ws:" + identity + ":" + contextKey
}
