/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"context"
	"net/http"
	"time"

	"github.com/acronis/go-distlimit/log"
)

// CloseCodeTryAgainLater is the WebSocket close code (1013) sent when a connection exceeds its rate.
const CloseCodeTryAgainLater = 1013

// CloseReasonRateLimitExceeded is the close reason sent along with CloseCodeTryAgainLater.
const CloseReasonRateLimitExceeded = "rate limit exceeded"

// HTTPCallback is called when the request is rejected. blockedFor is the time left until the window expires.
// A nil result lets the request proceed (e.g. after annotating the response),
// ErrRequestHandled stops it as already handled, any other error is returned by HTTPLimiter.Check.
type HTTPCallback func(rw http.ResponseWriter, r *http.Request, blockedFor time.Duration) error

// WSCallback is called when a WebSocket message (or connection) is rejected.
type WSCallback func(ctx context.Context, ws WebSocket, blockedFor time.Duration) error

// WebSocket is the part of a WebSocket connection the limiter needs.
type WebSocket interface {
	// Request returns the handshake request. It's used for identifying the client.
	Request() *http.Request
	// Close closes the connection with the given close code and reason.
	Close(code int, reason string) error
}

// DefaultHTTPCallback rejects the request with RateLimitExceededError.
func DefaultHTTPCallback(_ http.ResponseWriter, _ *http.Request, blockedFor time.Duration) error {
	return NewRateLimitExceededError(blockedFor)
}

// NewDefaultWSCallback returns a WSCallback that logs a warning and closes the connection with CloseCodeTryAgainLater.
func NewDefaultWSCallback(logger log.FieldLogger) WSCallback {
	return func(_ context.Context, ws WebSocket, blockedFor time.Duration) error {
		logger.Warn("websocket rate limit exceeded, closing connection",
			log.Int64("blocked_for_ms", blockedFor.Milliseconds()), log.Int("close_code", CloseCodeTryAgainLater))
		return ws.Close(CloseCodeTryAgainLater, CloseReasonRateLimitExceeded)
	}
}
