/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/acronis/go-distlimit/log"
	"github.com/acronis/go-distlimit/restapi"
)

// RecoveryDefaultStackSize defines the default size of stack part which will be logged.
const RecoveryDefaultStackSize = 8192

type recoveryHandler struct {
	next      http.Handler
	errDomain string
}

// Recovery is a middleware that recovers from panics, logs the panic value and a stacktrace,
// returns 500 HTTP status code and error in body in right format.
func Recovery(errDomain string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &recoveryHandler{next: next, errDomain: errDomain}
	}
}

func (h *recoveryHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if p == http.ErrAbortHandler {
			// Sentinel panic for aborting a handler, http.Server doesn't log it either.
			panic(p)
		}
		logger := GetLoggerFromContext(r.Context())
		if logger != nil {
			stack := make([]byte, RecoveryDefaultStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			logger.Error(fmt.Sprintf("Panic: %+v", p), log.String("stack", string(stack)))
		}
		restapi.RespondInternalError(rw, h.errDomain, logger)
	}()
	h.next.ServeHTTP(rw, r)
}
