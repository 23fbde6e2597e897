/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-distlimit/httpserver/middleware"
	"github.com/acronis/go-distlimit/limiter"
	"github.com/acronis/go-distlimit/log"
)

// Route is an application endpoint. Method may be empty to match any method.
type Route struct {
	Method  string
	Pattern string
	Handler http.Handler
}

// RouterOpts represents options for creating chi.Router.
type RouterOpts struct {
	ErrorDomain string

	// Registry builds limiters for Rules. It must use RouteTable as its route resolver.
	Registry   *limiter.Registry
	RouteTable *middleware.RouteTable
	Rules      []limiter.RuleConfig
	Routes     []Route

	HealthCheck    HealthCheck
	MetricsHandler http.Handler

	// HTTPRequestMetrics collects metrics of served requests. Requests aren't measured when nil.
	HTTPRequestMetrics *middleware.HTTPRequestMetricsCollector
}

const (
	metricsEndpoint     = "/metrics"
	healthCheckEndpoint = "/healthz"
)

// NewRouter creates a new chi.Router with request id, logging, recovery, metrics and request body limiting middlewares,
// metrics and health-check endpoints, and the application routes guarded by the limiters declared in rules.
func NewRouter(cfg *Config, logger log.FieldLogger, opts RouterOpts) (chi.Router, error) {
	router := chi.NewRouter()
	applyDefaultMiddlewaresToRouter(router, cfg, logger, opts)

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, metricsEndpoint, metricsHandler)
	router.Method(http.MethodGet, healthCheckEndpoint, NewHealthCheckHandler(opts.HealthCheck))

	if err := MountRateLimitedRoutes(router, opts); err != nil {
		return nil, err
	}
	return router, nil
}

func applyDefaultMiddlewaresToRouter(router chi.Router, cfg *Config, logger log.FieldLogger, opts RouterOpts) {
	router.Use(middleware.RequestID(logger))
	router.Use(middleware.LoggingWithOpts(logger, middleware.LoggingOpts{
		RequestStart:         cfg.Log.RequestStart,
		ExcludedEndpoints:    cfg.Log.ExcludedEndpoints,
		SecretQueryParams:    cfg.Log.SecretQueryParams,
		SlowRequestThreshold: cfg.Log.SlowRequestThreshold,
	}))
	router.Use(middleware.Recovery(opts.ErrorDomain))
	if opts.HTTPRequestMetrics != nil {
		router.Use(middleware.HTTPRequestMetrics(opts.HTTPRequestMetrics, middleware.HTTPRequestMetricsOpts{
			ExcludedEndpoints: []string{metricsEndpoint, healthCheckEndpoint},
		}))
	}
	if cfg.Limits.MaxBodySizeBytes > 0 {
		router.Use(middleware.RequestBodyLimit(cfg.Limits.MaxBodySizeBytes, opts.ErrorDomain))
	}
}

// MountRateLimitedRoutes registers opts.Routes in router. Every rule matching a route (by pattern and method)
// becomes a limiter stacked on it in the order of rules. A rule that matches no route is a configuration error.
func MountRateLimitedRoutes(router chi.Router, opts RouterOpts) error {
	ruleUsed := make([]bool, len(opts.Rules))
	for _, route := range opts.Routes {
		var limiters []*limiter.HTTPLimiter
		for i, rule := range opts.Rules {
			if rule.Route != route.Pattern || (rule.Method != "" && rule.Method != route.Method) {
				continue
			}
			ruleUsed[i] = true
			rate, err := rule.Rate()
			if err != nil {
				return fmt.Errorf("rate limiting rule #%d: %w", i, err)
			}
			l, err := limiter.NewHTTPLimiter(opts.Registry, rate)
			if err != nil {
				return fmt.Errorf("rate limiting rule #%d: %w", i, err)
			}
			limiters = append(limiters, l)
		}
		opts.RouteTable.Handle(router, route.Method, route.Pattern, route.Handler, opts.ErrorDomain, limiters...)
	}
	for i, used := range ruleUsed {
		if !used {
			return fmt.Errorf("rate limiting rule #%d: route %s %q is not served",
				i, opts.Rules[i].Method, opts.Rules[i].Route)
		}
	}
	return nil
}
