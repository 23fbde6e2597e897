/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-distlimit/httpserver"
	"github.com/acronis/go-distlimit/internal/libinfo"
	"github.com/acronis/go-distlimit/log"
	"github.com/acronis/go-distlimit/profserver"
	"github.com/acronis/go-distlimit/service"
)

// runServe runs the server and the store maintenance until ctx is done or any of them fails.
func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadAppConfig(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()
	logger = logger.With(log.String("instance_id", uuid.NewString()))

	app, err := newApplication(ctx, cfg, logger, appOpts{
		MetricsRegisterer: prometheus.DefaultRegisterer,
		MetricsGatherer:   prometheus.DefaultGatherer,
	})
	if err != nil {
		logger.Error("failed to start application", log.Error(err))
		return err
	}
	defer func() {
		if closeErr := app.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.Error("failed to close rate limiter registry", log.Error(closeErr))
		}
	}()

	srv := httpserver.New(cfg.Server, app.router, logger)
	var profSrv *profserver.ProfServer
	if cfg.ProfServer.Enabled {
		profSrv = profserver.New(cfg.ProfServer, logger)
	}
	logger.Info("starting distlimit server", log.String("version", libinfo.Version()),
		log.String("backend", string(cfg.Backend.Type)))
	return service.New(logger, service.NewCompositeUnit(app.units(srv, profSrv)...)).Run(ctx)
}
