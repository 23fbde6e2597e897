/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/rs/xid"

	"github.com/acronis/go-distlimit/log"
)

const headerRequestID = "X-Request-ID"

// RequestIDOpts represents an options for RequestID middleware.
type RequestIDOpts struct {
	GenerateID func() string
}

type requestIDHandler struct {
	next   http.Handler
	logger log.FieldLogger
	opts   RequestIDOpts
}

func newID() string {
	return xid.New().String()
}

// RequestID is a middleware that reads value of X-Request-ID request's HTTP header and generates new one if it's empty.
// The id is returned in the response header, put into request's context
// along with a logger that has the "request_id" field, so rate limiting rejections may be correlated.
func RequestID(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return RequestIDWithOpts(logger, RequestIDOpts{GenerateID: newID})
}

// RequestIDWithOpts is a more configurable version of RequestID middleware.
func RequestIDWithOpts(logger log.FieldLogger, opts RequestIDOpts) func(next http.Handler) http.Handler {
	if opts.GenerateID == nil {
		opts.GenerateID = newID
	}
	return func(next http.Handler) http.Handler {
		return &requestIDHandler{next: next, logger: logger, opts: opts}
	}
}

func (h *requestIDHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(headerRequestID)
	if requestID == "" {
		requestID = h.opts.GenerateID()
	}
	rw.Header().Set(headerRequestID, requestID)

	ctx := NewContextWithRequestID(r.Context(), requestID)
	if h.logger != nil {
		ctx = NewContextWithLogger(ctx, h.logger.With(log.String("request_id", requestID)))
	}
	h.next.ServeHTTP(rw, r.WithContext(ctx))
}
