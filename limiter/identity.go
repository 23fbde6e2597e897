/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"errors"
	"net"
	"net/http"
	"strings"
)

const headerXForwardedFor = "X-Forwarded-For"

// IdentityFunc returns the string requests are attributed to.
type IdentityFunc func(r *http.Request) (string, error)

// DefaultIdentity attributes the request to the first address of the X-Forwarded-For header,
// or to the peer host if the header is absent, and appends ":" and the request path.
func DefaultIdentity(r *http.Request) (string, error) {
	if r == nil {
		return "", errors.New("no request")
	}
	clientAddr := ""
	if forwarded := r.Header.Get(headerXForwardedFor); forwarded != "" {
		clientAddr = strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
	}
	if clientAddr == "" {
		clientAddr = r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			clientAddr = host
		}
	}
	if clientAddr == "" {
		return "", errors.New("client address is unknown")
	}
	return clientAddr + ":" + r.URL.Path, nil
}
