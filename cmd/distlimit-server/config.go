/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"github.com/acronis/go-distlimit/backend"
	"github.com/acronis/go-distlimit/config"
	"github.com/acronis/go-distlimit/httpserver"
	"github.com/acronis/go-distlimit/limiter"
	"github.com/acronis/go-distlimit/log"
	"github.com/acronis/go-distlimit/profserver"
)

type appConfig struct {
	Log        *log.Config        `yaml:"log"`
	Backend    *backend.Config    `yaml:"backend"`
	RateLimit  *limiter.Config    `yaml:"rateLimit"`
	Server     *httpserver.Config `yaml:"server"`
	ProfServer *profserver.Config `yaml:"profServer"`
}

// loadAppConfig loads all configuration sections from the file (if path isn't empty) and environment variables.
func loadAppConfig(path string) (*appConfig, error) {
	cfg := &appConfig{
		Log:        log.NewConfig(),
		Backend:    backend.NewConfig(),
		RateLimit:  limiter.NewConfig(),
		Server:     httpserver.NewConfig(),
		ProfServer: profserver.NewConfig(),
	}
	err := config.NewDefaultLoader(envVarsPrefix).LoadFromPath(path,
		cfg.Log, cfg.Backend, cfg.RateLimit, cfg.Server, cfg.ProfServer)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// redacted returns a copy of the configuration that is safe to print.
func (c *appConfig) redacted() *appConfig {
	backendCfg := *c.Backend
	if backendCfg.Redis.Password != "" {
		backendCfg.Redis.Password = "***"
	}
	res := *c
	res.Backend = &backendCfg
	return &res
}
