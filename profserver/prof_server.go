/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides the pprof HTTP server that may run next to the rate limiting server.
package profserver

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"github.com/acronis/go-distlimit/httpserver/middleware"
	"github.com/acronis/go-distlimit/log"
	"github.com/acronis/go-distlimit/service"
)

const readHeaderTimeout = 5 * time.Second

// ProfServer represents HTTP server for profiling. It implements service.Unit and is always stopped non-gracefully.
type ProfServer struct {
	HTTPServer *http.Server
	Logger     log.FieldLogger

	addr atomic.String
	done chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a new profiling server. /debug/pprof/ endpoints are served.
func New(cfg *Config, logger log.FieldLogger) *ProfServer {
	router := chi.NewRouter()
	router.Use(middleware.RequestID(logger))
	router.Mount("/debug", chimiddleware.Profiler())

	return &ProfServer{
		HTTPServer: &http.Server{Addr: cfg.Address, Handler: router, ReadHeaderTimeout: readHeaderTimeout},
		Logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start starts profiling HTTP server in a blocking way.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.done)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))
	logger.Info("starting profiling HTTP server...")

	listener, err := net.Listen("tcp", s.HTTPServer.Addr)
	if err != nil {
		logger.Error("profiling HTTP server error", log.Error(err))
		fatalError <- err
		return
	}
	s.addr.Store(listener.Addr().String())

	if err = s.HTTPServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("profiling HTTP server error", log.Error(err))
		fatalError <- err
		return
	}
	logger.Info("profiling HTTP server closed")
}

// Stop closes the profiling HTTP server.
func (s *ProfServer) Stop(bool) error {
	s.Logger.Info("closing profiling HTTP server...")
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("profiling HTTP server closing error", log.Error(err))
		return err
	}
	if s.addr.Load() != "" {
		<-s.done
	}
	return nil
}

// Addr returns the address the server listens on. It's empty until the server has started listening.
func (s *ProfServer) Addr() string {
	return s.addr.Load()
}
