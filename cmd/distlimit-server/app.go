/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-distlimit/httpserver"
	"github.com/acronis/go-distlimit/httpserver/middleware"
	"github.com/acronis/go-distlimit/internal/libinfo"
	"github.com/acronis/go-distlimit/limiter"
	"github.com/acronis/go-distlimit/log"
	"github.com/acronis/go-distlimit/profserver"
	"github.com/acronis/go-distlimit/restapi"
	"github.com/acronis/go-distlimit/service"
)

const (
	errorDomain      = "DistLimit"
	metricsNamespace = "distlimit"
)

const (
	routeEmbeddingKeywords = "/v1/embedding/keywords"
	routeEmbeddingSentence = "/v1/embedding/sentence"
	routeWebSocket         = "/ws"
)

// wsStreamQueryParam names the query parameter that selects the WebSocket stream.
// Each stream of a client has its own limit.
const (
	wsStreamQueryParam   = "stream"
	wsDefaultStreamName  = "default"
	wsMaxMessageSizeByte = 64 * 1024
)

type appOpts struct {
	// MetricsRegisterer registers the rate limiting metrics. Metrics are disabled when nil.
	MetricsRegisterer prometheus.Registerer
	MetricsGatherer   prometheus.Gatherer
}

type application struct {
	logger    log.FieldLogger
	store     *store
	registry  *limiter.Registry
	wsLimiter *limiter.WSLimiter
	router    chi.Router
}

func newApplication(ctx context.Context, cfg *appConfig, logger log.FieldLogger, opts appOpts) (app *application, err error) {
	st, err := openStore(ctx, cfg.Backend, logger, opts.MetricsRegisterer)
	if err != nil {
		return nil, err
	}

	var metrics limiter.MetricsCollector
	var httpMetrics *middleware.HTTPRequestMetricsCollector
	if opts.MetricsRegisterer != nil {
		promMetrics := limiter.NewPrometheusMetrics(metricsNamespace, libinfo.AddPrometheusVersionLabel(nil))
		opts.MetricsRegisterer.MustRegister(promMetrics.Decisions, promMetrics.StoreDuration)
		metrics = promMetrics
		httpMetrics = middleware.NewHTTPRequestMetricsCollector(middleware.HTTPRequestMetricsCollectorOpts{
			Namespace:   metricsNamespace,
			ConstLabels: libinfo.AddPrometheusVersionLabel(nil),
		})
		httpMetrics.MustRegister(opts.MetricsRegisterer)
	}

	routeTable := middleware.NewRouteTable()
	registry := limiter.NewRegistry()
	if err = registry.Init(ctx, st, limiter.InitOpts{
		KeyPrefix:        cfg.RateLimit.CounterKeyPrefix,
		RouteResolver:    routeTable,
		Logger:           logger,
		MetricsCollector: metrics,
	}); err != nil {
		_ = st.Close(ctx)
		return nil, fmt.Errorf("init rate limiter registry: %w", err)
	}
	defer func() {
		if err != nil {
			_ = registry.Close(ctx)
		}
	}()

	wsRate, err := cfg.RateLimit.WebSocket.Rate()
	if err != nil {
		return nil, err
	}
	wsLimiter, err := limiter.NewWSLimiter(registry, wsRate)
	if err != nil {
		return nil, err
	}

	app = &application{logger: logger, store: st, registry: registry, wsLimiter: wsLimiter}

	var metricsHandler http.Handler
	if opts.MetricsGatherer != nil {
		metricsHandler = promhttp.HandlerFor(opts.MetricsGatherer, promhttp.HandlerOpts{})
	}
	router, err := httpserver.NewRouter(cfg.Server, logger, httpserver.RouterOpts{
		ErrorDomain: errorDomain,
		Registry:    registry,
		RouteTable:  routeTable,
		Rules:       cfg.RateLimit.Rules,
		Routes: []httpserver.Route{
			{Method: http.MethodPost, Pattern: routeEmbeddingKeywords, Handler: http.HandlerFunc(app.handleEmbeddingKeywords)},
			{Method: http.MethodPost, Pattern: routeEmbeddingSentence, Handler: http.HandlerFunc(app.handleEmbeddingSentence)},
		},
		HealthCheck:        app.checkHealth,
		MetricsHandler:     metricsHandler,
		HTTPRequestMetrics: httpMetrics,
	})
	if err != nil {
		return nil, err
	}
	router.Method(http.MethodGet, routeWebSocket, http.HandlerFunc(app.handleWebSocket))
	app.router = router

	return app, nil
}

// units returns the service units of the application: the HTTP servers and the store maintenance if any.
func (app *application) units(srv *httpserver.HTTPServer, profSrv *profserver.ProfServer) []service.Unit {
	units := []service.Unit{srv}
	if profSrv != nil {
		units = append(units, profSrv)
	}
	if app.store.maintain != nil {
		maintain := app.store.maintain
		units = append(units, service.NewWorkerUnit(service.WorkerFunc(func(ctx context.Context) error {
			maintain(ctx)
			return nil
		})))
	}
	return units
}

// Close closes the registry together with the store.
func (app *application) Close(ctx context.Context) error {
	return app.registry.Close(ctx)
}

func (app *application) checkHealth(ctx context.Context) (httpserver.HealthCheckResult, error) {
	res := httpserver.HealthCheckResult{"registry": httpserver.HealthCheckStatusOK, "store": httpserver.HealthCheckStatusOK}
	if !app.registry.IsInitialized() {
		res["registry"] = httpserver.HealthCheckStatusFail
	}
	if app.store.ping != nil {
		if err := app.store.ping(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			app.logger.Warn("store health check failed", log.Error(err))
			res["store"] = httpserver.HealthCheckStatusFail
		}
	}
	return res, nil
}

type embeddingRequest struct {
	Text string `json:"text"`
}

type embeddingResponse struct {
	Model  string    `json:"model"`
	Vector []float64 `json:"vector"`
}

func (app *application) handleEmbeddingKeywords(rw http.ResponseWriter, r *http.Request) {
	app.respondEmbedding(rw, r, "keywords")
}

func (app *application) handleEmbeddingSentence(rw http.ResponseWriter, r *http.Request) {
	app.respondEmbedding(rw, r, "sentence")
}

// respondEmbedding answers with a stub vector made of text statistics.
func (app *application) respondEmbedding(rw http.ResponseWriter, r *http.Request, model string) {
	logger := middleware.GetLoggerFromContext(r.Context())
	var req embeddingRequest
	if err := restapi.DecodeRequestJSON(r, &req); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, errorDomain, err, logger)
		return
	}
	words := 0
	inWord := false
	for _, c := range req.Text {
		isSpace := c == ' ' || c == '\t' || c == '\n' || c == '\r'
		if !isSpace && !inWord {
			words++
		}
		inWord = !isSpace
	}
	restapi.RespondJSON(rw, embeddingResponse{Model: model, Vector: []float64{float64(len(req.Text)), float64(words)}}, logger)
}

// handleWebSocket echoes text messages. Each message is counted against the limit of the client's stream.
// The connection is closed with the "try again later" code once the limit is exceeded.
func (app *application) handleWebSocket(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = app.logger
	}
	stream := r.URL.Query().Get(wsStreamQueryParam)
	if stream == "" {
		stream = wsDefaultStreamName
	}

	conn, err := websocket.Accept(rw, r, nil)
	if err != nil {
		logger.Warn("failed to accept websocket connection", log.Error(err))
		return
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(wsMaxMessageSizeByte)

	ws := middleware.NewWebSocketConn(conn, r)
	ctx := r.Context()
	for {
		msgType, data, readErr := conn.Read(ctx)
		if readErr != nil {
			if websocket.CloseStatus(readErr) == -1 && !errors.Is(readErr, context.Canceled) {
				logger.Debug("websocket read failed", log.Error(readErr))
			}
			return
		}
		allowed, checkErr := app.wsLimiter.Check(ctx, ws, stream)
		if checkErr != nil {
			var storeErr *limiter.StoreError
			var identityErr *limiter.IdentityError
			if errors.As(checkErr, &storeErr) || errors.As(checkErr, &identityErr) {
				logger.Error("websocket rate limiting error", log.Error(checkErr))
				_ = conn.Close(websocket.StatusInternalError, "rate limiting error")
				return
			}
			logger.Debug("websocket rate limit callback failed", log.Error(checkErr))
			return
		}
		if !allowed {
			return
		}
		if writeErr := conn.Write(ctx, msgType, data); writeErr != nil {
			return
		}
	}
}
