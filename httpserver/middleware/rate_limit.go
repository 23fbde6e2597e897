/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/acronis/go-distlimit/limiter"
	"github.com/acronis/go-distlimit/log"
	"github.com/acronis/go-distlimit/restapi"
)

// RateLimitErrCode is an error code that is used in a response body
// if the request is rejected by the middleware that limits the rate of HTTP requests.
const RateLimitErrCode = "tooManyRequests"

const headerRetryAfter = "Retry-After"

// RateLimitOnRejectFunc is a function that is called for rejecting HTTP request when the rate limit is exceeded.
type RateLimitOnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, errDomain string, err *limiter.RateLimitExceededError, logger log.FieldLogger)

// RateLimitOnErrorFunc is a function that is called when the rate limit can't be checked.
type RateLimitOnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, errDomain string, err error, logger log.FieldLogger)

// RateLimitOpts represents an options for the RateLimit middleware.
type RateLimitOpts struct {
	OnReject RateLimitOnRejectFunc
	OnError  RateLimitOnErrorFunc
}

type rateLimitHandler struct {
	next      http.Handler
	limiter   *limiter.HTTPLimiter
	errDomain string
	onReject  RateLimitOnRejectFunc
	onError   RateLimitOnErrorFunc
}

// RateLimit is a middleware that checks every request with the limiter before passing it further.
// Rejected requests get 429 with the Retry-After header, requests that can't be checked get 500.
func RateLimit(l *limiter.HTTPLimiter, errDomain string) func(next http.Handler) http.Handler {
	return RateLimitWithOpts(l, errDomain, RateLimitOpts{})
}

// RateLimitWithOpts is a configurable version of a middleware to limit the rate of HTTP requests.
func RateLimitWithOpts(l *limiter.HTTPLimiter, errDomain string, opts RateLimitOpts) func(next http.Handler) http.Handler {
	onReject := opts.OnReject
	if onReject == nil {
		onReject = DefaultRateLimitOnReject
	}
	onError := opts.OnError
	if onError == nil {
		onError = DefaultRateLimitOnError
	}
	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{next: next, limiter: l, errDomain: errDomain, onReject: onReject, onError: onError}
	}
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	err := h.limiter.Check(rw, r)
	lp := GetLoggingParamsFromContext(r.Context())
	if lp != nil {
		lp.AddTimeSlotDurationInMs("rate_limit_ms", time.Since(startTime))
	}
	if err == nil {
		h.next.ServeHTTP(rw, r)
		return
	}
	if errors.Is(err, limiter.ErrRequestHandled) {
		return
	}
	logger := GetLoggerFromContext(r.Context())
	var exceededErr *limiter.RateLimitExceededError
	if errors.As(err, &exceededErr) {
		if lp != nil {
			lp.ExtendFields(log.Int("rate_limit_retry_after", exceededErr.RetryAfter))
		}
		h.onReject(rw, r, h.errDomain, exceededErr, logger)
		return
	}
	h.onError(rw, r, h.errDomain, err, logger)
}

// DefaultRateLimitOnReject sends HTTP response in a typical go-distlimit way when the rate limit is exceeded.
func DefaultRateLimitOnReject(
	rw http.ResponseWriter, r *http.Request, errDomain string, err *limiter.RateLimitExceededError, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(
			log.Int64("retry_after_ms", err.BlockedFor.Milliseconds()),
			log.String("request", r.Method+" "+r.URL.Path),
		)
	}
	rw.Header().Set(headerRetryAfter, strconv.Itoa(err.RetryAfter))
	restapi.RespondError(rw, http.StatusTooManyRequests,
		restapi.NewError(errDomain, RateLimitErrCode, restapi.ErrMessageTooManyRequests), logger)
}

// DefaultRateLimitOnError sends HTTP response in a typical go-distlimit way when the rate limit can't be checked.
func DefaultRateLimitOnError(
	rw http.ResponseWriter, r *http.Request, errDomain string, err error, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Error("rate limiting error", log.Error(err), log.String("path", r.URL.Path))
	}
	restapi.RespondInternalError(rw, errDomain, logger)
}
