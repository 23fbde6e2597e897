/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"time"

	"github.com/acronis/go-distlimit/config"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyServerAddress            = "address"
	cfgKeyServerTimeoutsWrite      = "timeouts.write"
	cfgKeyServerTimeoutsRead       = "timeouts.read"
	cfgKeyServerTimeoutsReadHeader = "timeouts.readHeader"
	cfgKeyServerTimeoutsIdle       = "timeouts.idle"
	cfgKeyServerTimeoutsShutdown   = "timeouts.shutdown"
	cfgKeyServerLimitsMaxBodySize  = "limits.maxBodySize"

	cfgKeyServerLogRequestStart         = "log.requestStart"
	cfgKeyServerLogExcludedEndpoints    = "log.excludedEndpoints"
	cfgKeyServerLogSecretQueryParams    = "log.secretQueryParams" // nolint:gosec // false positive
	cfgKeyServerLogSlowRequestThreshold = "log.slowRequestThreshold"
)

const (
	defaultServerAddress            = ":8080"
	defaultServerTimeoutsWrite      = time.Minute
	defaultServerTimeoutsRead       = time.Second * 15
	defaultServerTimeoutsReadHeader = time.Second * 10
	defaultServerTimeoutsIdle       = time.Minute
	defaultServerTimeoutsShutdown   = time.Second * 5
	defaultMaxBodySizeBytes         = 1024 * 1024
	defaultSlowRequestThreshold     = time.Second
)

// Config represents a set of configuration parameters for HTTPServer.
type Config struct {
	Address  string         `mapstructure:"address" yaml:"address" json:"address"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits" json:"limits"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
}

// LimitsConfig represents a set of configuration parameters for HTTPServer relating to limits.
type LimitsConfig struct {
	// MaxBodySizeBytes is the maximum size of the request body. Zero means no limit.
	MaxBodySizeBytes uint64 `mapstructure:"maxBodySize" yaml:"maxBodySize" json:"maxBodySize"`
}

// LogConfig represents a set of configuration parameters for HTTPServer relating to logging.
type LogConfig struct {
	RequestStart bool `mapstructure:"requestStart" yaml:"requestStart" json:"requestStart"`
	// ExcludedEndpoints are logged only if the response status is 4xx or 5xx.
	ExcludedEndpoints    []string      `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
	SecretQueryParams    []string      `mapstructure:"secretQueryParams" yaml:"secretQueryParams" json:"secretQueryParams"`
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// TimeoutsConfig represents a set of configuration parameters for HTTPServer relating to timeouts.
// The write timeout doesn't apply to hijacked (WebSocket) connections.
type TimeoutsConfig struct {
	Write      time.Duration `mapstructure:"write" yaml:"write" json:"write"`
	Read       time.Duration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader time.Duration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       time.Duration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   time.Duration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Address: defaultServerAddress,
		Timeouts: TimeoutsConfig{
			Write:      defaultServerTimeoutsWrite,
			Read:       defaultServerTimeoutsRead,
			ReadHeader: defaultServerTimeoutsReadHeader,
			Idle:       defaultServerTimeoutsIdle,
			Shutdown:   defaultServerTimeoutsShutdown,
		},
		Limits: LimitsConfig{MaxBodySizeBytes: defaultMaxBodySizeBytes},
		Log:    LogConfig{SlowRequestThreshold: defaultSlowRequestThreshold},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults sets default configuration values for HTTPServer in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyServerAddress, defaultServerAddress)
	dp.SetDefault(cfgKeyServerTimeoutsWrite, defaultServerTimeoutsWrite)
	dp.SetDefault(cfgKeyServerTimeoutsRead, defaultServerTimeoutsRead)
	dp.SetDefault(cfgKeyServerTimeoutsReadHeader, defaultServerTimeoutsReadHeader)
	dp.SetDefault(cfgKeyServerTimeoutsIdle, defaultServerTimeoutsIdle)
	dp.SetDefault(cfgKeyServerTimeoutsShutdown, defaultServerTimeoutsShutdown)
	dp.SetDefault(cfgKeyServerLimitsMaxBodySize, defaultMaxBodySizeBytes)
	dp.SetDefault(cfgKeyServerLogRequestStart, false)
	dp.SetDefault(cfgKeyServerLogSlowRequestThreshold, defaultSlowRequestThreshold)
}

// Set sets HTTPServer configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Address, err = dp.GetString(cfgKeyServerAddress); err != nil {
		return err
	}

	for _, t := range []struct {
		key string
		dst *time.Duration
	}{
		{cfgKeyServerTimeoutsWrite, &c.Timeouts.Write},
		{cfgKeyServerTimeoutsRead, &c.Timeouts.Read},
		{cfgKeyServerTimeoutsReadHeader, &c.Timeouts.ReadHeader},
		{cfgKeyServerTimeoutsIdle, &c.Timeouts.Idle},
		{cfgKeyServerTimeoutsShutdown, &c.Timeouts.Shutdown},
	} {
		if *t.dst, err = dp.GetDuration(t.key); err != nil {
			return err
		}
		if *t.dst < 0 {
			return dp.WrapKeyErr(t.key, fmt.Errorf("should be >= 0"))
		}
	}

	if c.Limits.MaxBodySizeBytes, err = dp.GetSizeInBytes(cfgKeyServerLimitsMaxBodySize); err != nil {
		return err
	}
	return c.Log.set(dp)
}

func (l *LogConfig) set(dp config.DataProvider) error {
	var err error
	if l.RequestStart, err = dp.GetBool(cfgKeyServerLogRequestStart); err != nil {
		return err
	}
	if err = dp.UnmarshalKey(cfgKeyServerLogExcludedEndpoints, &l.ExcludedEndpoints); err != nil {
		return err
	}
	if err = dp.UnmarshalKey(cfgKeyServerLogSecretQueryParams, &l.SecretQueryParams); err != nil {
		return err
	}
	if l.SlowRequestThreshold, err = dp.GetDuration(cfgKeyServerLogSlowRequestThreshold); err != nil {
		return err
	}
	if l.SlowRequestThreshold < 0 {
		return dp.WrapKeyErr(cfgKeyServerLogSlowRequestThreshold, fmt.Errorf("should be >= 0"))
	}
	return nil
}
