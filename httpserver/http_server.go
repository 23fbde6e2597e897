/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpserver runs the HTTP server that exposes rate-limited application routes,
// the WebSocket endpoint, Prometheus metrics and the health check.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-distlimit/log"
)

// HTTPServer represents a wrapper around http.Server with graceful shutdown.
type HTTPServer struct {
	HTTPServer      *http.Server
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener       net.Listener
	port           atomic.Int32
	httpServerDone atomic.Value
}

// New creates a new HTTPServer serving handler.
func New(cfg *Config, handler http.Handler, logger log.FieldLogger) *HTTPServer {
	return &HTTPServer{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           handler,
			WriteTimeout:      cfg.Timeouts.Write,
			ReadTimeout:       cfg.Timeouts.Read,
			ReadHeaderTimeout: cfg.Timeouts.ReadHeader,
			IdleTimeout:       cfg.Timeouts.Idle,
		},
		Logger:          logger,
		ShutdownTimeout: cfg.Timeouts.Shutdown,
	}
}

// Start starts application HTTP server in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.httpServerDone.Store(done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting application HTTP server...")

	var err error
	if s.listener, err = net.Listen("tcp", s.HTTPServer.Addr); err != nil {
		logger.Error("application HTTP server error", log.Error(err))
		fatalError <- err
		return
	}

	_, portStr, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		fatalError <- fmt.Errorf("unexpected format of TCP listener address: %w", err)
		return
	}
	port, err := strconv.ParseInt(portStr, 10, 32)
	if err != nil {
		fatalError <- fmt.Errorf("unexpected format of TCP listener address: %w", err)
		return
	}
	s.port.Store(int32(port))

	if err = s.HTTPServer.Serve(s.listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("application HTTP server closed")
			return
		}
		logger.Error("application HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops application HTTP server (gracefully or not).
func (s *HTTPServer) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing application HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("application HTTP server closing error", log.Error(err))
			return err
		}
		s.waitDone()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("shutting down application HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("application HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("application HTTP server shut down")
	s.waitDone()
	return nil
}

func (s *HTTPServer) waitDone() {
	if done, ok := s.httpServerDone.Load().(chan struct{}); ok && done != nil {
		<-done // Wait for the listener to be closed.
	}
}

// GetPort returns the TCP port the server listens on (useful when the address has port 0).
// It's 0 until the server has started listening.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
