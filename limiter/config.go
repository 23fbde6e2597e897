/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/acronis/go-distlimit/config"
)

const cfgDefaultKeyPrefix = "rateLimit"

const (
	cfgKeyKeyPrefix = "keyPrefix"
	cfgKeyRules     = "rules"
	cfgKeyWebSocket = "webSocket"

	cfgKeyWebSocketTimes   = "webSocket.times"
	cfgKeyWebSocketSeconds = "webSocket.seconds"
)

// Default rate of WebSocket messages per client and context key.
const (
	DefaultWebSocketTimes   = 10
	DefaultWebSocketSeconds = 1
)

// RateConfig is a rate declared in configuration.
type RateConfig struct {
	Times        int `mapstructure:"times" yaml:"times" json:"times"`
	Milliseconds int `mapstructure:"milliseconds" yaml:"milliseconds" json:"milliseconds"`
	Seconds      int `mapstructure:"seconds" yaml:"seconds" json:"seconds"`
	Minutes      int `mapstructure:"minutes" yaml:"minutes" json:"minutes"`
	Hours        int `mapstructure:"hours" yaml:"hours" json:"hours"`
}

// Rate converts the configuration to Rate.
func (c RateConfig) Rate() (Rate, error) {
	return NewRate(RateParams(c))
}

// RuleConfig binds a rate to a route pattern and an optional HTTP method (any method when empty).
// Several rules for the same route are stacked in the order of declaration.
type RuleConfig struct {
	Method     string `mapstructure:"method" yaml:"method" json:"method"`
	Route      string `mapstructure:"route" yaml:"route" json:"route"`
	RateConfig `mapstructure:",squash" yaml:",inline" json:",inline"`
}

// Config represents a set of configuration parameters for rate limiting.
type Config struct {
	CounterKeyPrefix string       `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`
	Rules            []RuleConfig `mapstructure:"rules" yaml:"rules" json:"rules"`
	WebSocket        RateConfig   `mapstructure:"webSocket" yaml:"webSocket" json:"webSocket"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults sets default configuration values for rate limiting in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyKeyPrefix, DefaultKeyPrefix)
	dp.SetDefault(cfgKeyWebSocketTimes, DefaultWebSocketTimes)
	dp.SetDefault(cfgKeyWebSocketSeconds, DefaultWebSocketSeconds)
}

// Set sets rate limiting configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.CounterKeyPrefix, err = dp.GetString(cfgKeyKeyPrefix); err != nil {
		return err
	}
	if c.CounterKeyPrefix == "" {
		return dp.WrapKeyErr(cfgKeyKeyPrefix, fmt.Errorf("cannot be empty"))
	}

	var rules []RuleConfig
	if err = dp.UnmarshalKey(cfgKeyRules, &rules, config.WithWeaklyTypedInput()); err != nil {
		return err
	}
	for i := range rules {
		if err = validateRule(&rules[i]); err != nil {
			return dp.WrapKeyErr(fmt.Sprintf("%s[%d]", cfgKeyRules, i), err)
		}
	}
	c.Rules = rules

	if err = dp.UnmarshalKey(cfgKeyWebSocket, &c.WebSocket, config.WithWeaklyTypedInput()); err != nil {
		return err
	}
	if _, err = c.WebSocket.Rate(); err != nil {
		return dp.WrapKeyErr(cfgKeyWebSocket, err)
	}
	return nil
}

func validateRule(rule *RuleConfig) error {
	if rule.Route == "" {
		return fmt.Errorf("route cannot be empty")
	}
	rule.Method = strings.ToUpper(rule.Method)
	switch rule.Method {
	case "", http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace:
	default:
		return fmt.Errorf("unknown method %q", rule.Method)
	}
	_, err := rule.Rate()
	return err
}
