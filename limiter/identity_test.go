/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIdentity(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
		wantErr    bool
	}{
		{name: "peer address", remoteAddr: "10.0.0.5:43210", want: "10.0.0.5:/v1/embedding/keywords"},
		{name: "ipv6 peer address", remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1:/v1/embedding/keywords"},
		{
			name:       "first forwarded address",
			remoteAddr: "10.0.0.5:43210",
			forwarded:  "203.0.113.7, 198.51.100.2",
			want:       "203.0.113.7:/v1/embedding/keywords",
		},
		{name: "address without port", remoteAddr: "10.0.0.5", want: "10.0.0.5:/v1/embedding/keywords"},
		{name: "no address", remoteAddr: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/embedding/keywords?lang=en", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			got, err := DefaultIdentity(req)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := DefaultIdentity(nil)
	require.Error(t, err)
}
