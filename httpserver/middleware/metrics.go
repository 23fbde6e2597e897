/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	httpRequestMetricsLabelMethod        = "method"
	httpRequestMetricsLabelRoutePattern  = "route_pattern"
	httpRequestMetricsLabelUserAgentType = "user_agent_type"
	httpRequestMetricsLabelStatusCode    = "status_code"
)

const (
	userAgentTypeBrowser    = "browser"
	userAgentTypeHTTPClient = "http-client"
)

// DefaultHTTPRequestDurationBuckets is default buckets into which observations of serving HTTP requests are counted.
var DefaultHTTPRequestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// HTTPRequestMetricsCollectorOpts represents an options for HTTPRequestMetricsCollector.
type HTTPRequestMetricsCollectorOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// DurationBuckets is a list of buckets into which observations of serving HTTP requests are counted.
	DurationBuckets []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// HTTPRequestMetricsCollector represents collector of metrics for incoming HTTP requests.
// Requests rejected by the rate limiter are observed with the 429 status code.
type HTTPRequestMetricsCollector struct {
	Durations *prometheus.HistogramVec
	InFlight  *prometheus.GaugeVec
}

// NewHTTPRequestMetricsCollector creates a new metrics collector.
func NewHTTPRequestMetricsCollector(opts HTTPRequestMetricsCollectorOpts) *HTTPRequestMetricsCollector {
	durBuckets := opts.DurationBuckets
	if durBuckets == nil {
		durBuckets = DefaultHTTPRequestDurationBuckets
	}
	return &HTTPRequestMetricsCollector{
		Durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   opts.Namespace,
				Name:        "http_request_duration_seconds",
				Help:        "A histogram of the HTTP request durations.",
				Buckets:     durBuckets,
				ConstLabels: opts.ConstLabels,
			},
			[]string{
				httpRequestMetricsLabelMethod,
				httpRequestMetricsLabelRoutePattern,
				httpRequestMetricsLabelUserAgentType,
				httpRequestMetricsLabelStatusCode,
			},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   opts.Namespace,
				Name:        "http_requests_in_flight",
				Help:        "Current number of HTTP requests being served.",
				ConstLabels: opts.ConstLabels,
			},
			[]string{
				httpRequestMetricsLabelMethod,
				httpRequestMetricsLabelRoutePattern,
				httpRequestMetricsLabelUserAgentType,
			},
		),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (c *HTTPRequestMetricsCollector) MustRegister(registerer prometheus.Registerer) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerer.MustRegister(c.Durations, c.InFlight)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (c *HTTPRequestMetricsCollector) Unregister(registerer prometheus.Registerer) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerer.Unregister(c.InFlight)
	registerer.Unregister(c.Durations)
}

type httpRequestInfo struct {
	method        string
	routePattern  string
	userAgentType string
}

func (hri *httpRequestInfo) makeLabels() prometheus.Labels {
	return prometheus.Labels{
		httpRequestMetricsLabelMethod:        hri.method,
		httpRequestMetricsLabelRoutePattern:  hri.routePattern,
		httpRequestMetricsLabelUserAgentType: hri.userAgentType,
	}
}

func (c *HTTPRequestMetricsCollector) trackRequestEnd(reqInfo *httpRequestInfo, status int, startTime time.Time) {
	labels := reqInfo.makeLabels()
	labels[httpRequestMetricsLabelStatusCode] = strconv.Itoa(status)
	c.Durations.With(labels).Observe(time.Since(startTime).Seconds())
}

// HTTPRequestMetricsOpts represents an options for HTTPRequestMetrics middleware.
type HTTPRequestMetricsOpts struct {
	GetRoutePattern   RoutePatternGetterFunc
	ExcludedEndpoints []string
}

type httpRequestMetricsHandler struct {
	next      http.Handler
	collector *HTTPRequestMetricsCollector
	opts      HTTPRequestMetricsOpts
}

// HTTPRequestMetrics is a middleware that collects metrics for incoming HTTP requests using Prometheus data types.
// The route pattern label is taken from chi unless opts.GetRoutePattern is set.
func HTTPRequestMetrics(
	collector *HTTPRequestMetricsCollector, opts HTTPRequestMetricsOpts,
) func(next http.Handler) http.Handler {
	if opts.GetRoutePattern == nil {
		opts.GetRoutePattern = GetChiRoutePattern
	}
	return func(next http.Handler) http.Handler {
		return &httpRequestMetricsHandler{next: next, collector: collector, opts: opts}
	}
}

func (h *httpRequestMetricsHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	for i := range h.opts.ExcludedEndpoints {
		if r.URL.Path == h.opts.ExcludedEndpoints[i] {
			h.next.ServeHTTP(rw, r)
			return
		}
	}

	startTime := GetRequestStartTimeFromContext(r.Context())
	if startTime.IsZero() {
		startTime = time.Now()
		r = r.WithContext(NewContextWithRequestStartTime(r.Context(), startTime))
	}

	// The route is known only after chi has matched it, so the in-flight gauge uses the label of unmatched requests.
	reqInfo := &httpRequestInfo{
		method:        r.Method,
		routePattern:  h.opts.GetRoutePattern(r),
		userAgentType: determineUserAgentType(r),
	}
	inFlightGauge := h.collector.InFlight.With(reqInfo.makeLabels())
	inFlightGauge.Inc()
	defer inFlightGauge.Dec()

	wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
	defer func() {
		if reqInfo.routePattern == "" {
			reqInfo.routePattern = h.opts.GetRoutePattern(r)
		}
		if p := recover(); p != nil {
			if p != http.ErrAbortHandler {
				h.collector.trackRequestEnd(reqInfo, http.StatusInternalServerError, startTime)
			}
			panic(p)
		}
		h.collector.trackRequestEnd(reqInfo, wrw.Status(), startTime)
	}()

	h.next.ServeHTTP(wrw, r)
}

func determineUserAgentType(r *http.Request) string {
	if strings.Contains(strings.ToLower(r.UserAgent()), "mozilla") {
		return userAgentTypeBrowser
	}
	return userAgentTypeHTTPClient
}
