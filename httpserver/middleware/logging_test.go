/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-distlimit/log"
	"github.com/acronis/go-distlimit/log/logtest"
)

type mockLoggingNextHandler struct {
	called                   int
	lastContextLogger        log.FieldLogger
	lastContextLoggingParams *LoggingParams
	respStatusCode           int
	delay                    time.Duration
}

func (h *mockLoggingNextHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	h.called++
	h.lastContextLogger = GetLoggerFromContext(r.Context())
	h.lastContextLoggingParams = GetLoggingParamsFromContext(r.Context())
	if lp := h.lastContextLoggingParams; lp != nil {
		lp.ExtendFields(log.String("model", "keywords"))
		lp.AddTimeSlotDurationInMs("embedding_ms", h.delay)
	}
	time.Sleep(h.delay)
	rw.WriteHeader(h.respStatusCode)
	_, _ = rw.Write([]byte(http.StatusText(h.respStatusCode)))
}

func requireLogFieldString(t *testing.T, entry logtest.RecordedEntry, key, want string) {
	t.Helper()
	field, found := entry.FindField(key)
	require.True(t, found, "field %q is not found", key)
	require.Equal(t, want, string(field.Bytes))
}

func requireLogFieldInt(t *testing.T, entry logtest.RecordedEntry, key string, want int) {
	t.Helper()
	field, found := entry.FindField(key)
	require.True(t, found, "field %q is not found", key)
	require.Equal(t, int64(want), field.Int)
}

func TestLoggingHandler_ServeHTTP(t *testing.T) {
	const (
		reqID       = "external-request-id"
		userAgent   = "http-client"
		urlPath     = "/v1/embedding/keywords"
		bodyContent = `{"text":"hello"}`
	)

	newRequest := func(target string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(bodyContent))
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set(headerForwardedFor, "203.0.113.7, 10.0.0.1")
		req.RemoteAddr = "10.0.0.1:5555"
		return req.WithContext(NewContextWithRequestID(req.Context(), reqID))
	}

	requireCommonFields := func(t *testing.T, entry logtest.RecordedEntry) {
		t.Helper()
		requireLogFieldString(t, entry, "request_id", reqID)
		requireLogFieldString(t, entry, "method", http.MethodPost)
		requireLogFieldString(t, entry, "uri", urlPath)
		requireLogFieldInt(t, entry, "content_length", len(bodyContent))
		requireLogFieldString(t, entry, "user_agent", userAgent)
		requireLogFieldString(t, entry, "remote_addr_ip", "10.0.0.1")
		requireLogFieldInt(t, entry, "remote_addr_port", 5555)
		requireLogFieldString(t, entry, "origin_addr", "203.0.113.7")
	}

	tests := []struct {
		name       string
		opts       LoggingOpts
		statusCode int
	}{
		{name: "request start is not logged", statusCode: http.StatusTooManyRequests},
		{name: "request start is logged", opts: LoggingOpts{RequestStart: true}, statusCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logtest.NewRecorder()
			next := &mockLoggingNextHandler{respStatusCode: tt.statusCode}
			LoggingWithOpts(logger, tt.opts)(next).ServeHTTP(httptest.NewRecorder(), newRequest(urlPath))
			require.Equal(t, 1, next.called)
			require.NotNil(t, next.lastContextLogger)
			require.NotNil(t, next.lastContextLoggingParams)

			wantEntries := 1
			if tt.opts.RequestStart {
				wantEntries++
				requireCommonFields(t, logger.Entries()[0])
				require.Equal(t, "request started", logger.Entries()[0].Text)
			}
			require.Len(t, logger.Entries(), wantEntries)

			entry := logger.Entries()[wantEntries-1]
			require.True(t, strings.HasPrefix(entry.Text, "response completed in "))
			require.Equal(t, log.LevelInfo, entry.Level)
			requireCommonFields(t, entry)
			requireLogFieldInt(t, entry, "status", tt.statusCode)
			requireLogFieldInt(t, entry, "bytes_sent", len(http.StatusText(tt.statusCode)))
			requireLogFieldString(t, entry, "model", "keywords")
			_, found := entry.FindField("time_slots")
			require.False(t, found)
		})
	}

	t.Run("slow request has time slots", func(t *testing.T) {
		logger := logtest.NewRecorder()
		next := &mockLoggingNextHandler{respStatusCode: http.StatusOK, delay: 20 * time.Millisecond}
		LoggingWithOpts(logger, LoggingOpts{SlowRequestThreshold: 10 * time.Millisecond})(next).
			ServeHTTP(httptest.NewRecorder(), newRequest(urlPath))
		require.Len(t, logger.Entries(), 1)
		field, found := logger.Entries()[0].FindField("time_slots")
		require.True(t, found)
		require.Equal(t, loggableIntMap{"embedding_ms": 20}, field.Any)
	})

	t.Run("excluded endpoint", func(t *testing.T) {
		logger := logtest.NewRecorder()
		mw := LoggingWithOpts(logger, LoggingOpts{ExcludedEndpoints: []string{urlPath}})
		mw(&mockLoggingNextHandler{respStatusCode: http.StatusOK}).ServeHTTP(httptest.NewRecorder(), newRequest(urlPath))
		require.Empty(t, logger.Entries())

		mw(&mockLoggingNextHandler{respStatusCode: http.StatusTooManyRequests}).
			ServeHTTP(httptest.NewRecorder(), newRequest(urlPath))
		require.Len(t, logger.Entries(), 1)
	})

	t.Run("secret query params", func(t *testing.T) {
		logger := logtest.NewRecorder()
		mw := LoggingWithOpts(logger, LoggingOpts{SecretQueryParams: []string{"token"}})
		mw(&mockLoggingNextHandler{respStatusCode: http.StatusOK}).
			ServeHTTP(httptest.NewRecorder(), newRequest(urlPath+"?stream=chat&token=secret"))
		require.Len(t, logger.Entries(), 1)
		requireLogFieldString(t, logger.Entries()[0], "uri", urlPath+"?stream=chat&token="+LoggingSecretQueryPlaceholder)
	})
}
