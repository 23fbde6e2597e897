/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/acronis/go-distlimit/config"
)

const cfgDefaultKeyPrefix = "backend"

const (
	cfgKeyType                = "type"
	cfgKeyRedisAddr           = "redis.addr"
	cfgKeyRedisUsername       = "redis.username"
	cfgKeyRedisPassword       = "redis.password"
	cfgKeyRedisDB             = "redis.db"
	cfgKeySQLitePath          = "sqlite.path"
	cfgKeySQLiteBusyTimeout   = "sqlite.busyTimeout"
	cfgKeySQLitePurgeInterval = "sqlite.purgeInterval"
	cfgKeyMemoryMaxKeys       = "memory.maxKeys"
)

// Type defines possible store types.
type Type string

// Store types.
const (
	TypeRedis  Type = "redis"
	TypeSQLite Type = "sqlite"
	TypeMemory Type = "memory"
)

// Default values.
const (
	DefaultRedisAddr           = "localhost:6379"
	DefaultSQLiteBusyTimeout   = 5 * time.Second
	DefaultSQLitePurgeInterval = time.Minute
	DefaultMemoryMaxKeys       = 100_000
)

// Config represents a set of configuration parameters for the shared store.
type Config struct {
	Type   Type         `mapstructure:"type" yaml:"type" json:"type"`
	Redis  RedisConfig  `mapstructure:"redis" yaml:"redis" json:"redis"`
	SQLite SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite" json:"sqlite"`
	Memory MemoryConfig `mapstructure:"memory" yaml:"memory" json:"memory"`
}

// RedisConfig is a configuration for the Redis store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr" json:"addr"`
	Username string `mapstructure:"username" yaml:"username" json:"username"`
	Password string `mapstructure:"password" yaml:"password" json:"-"`
	DB       int    `mapstructure:"db" yaml:"db" json:"db"`
}

// SQLiteConfig is a configuration for the SQLite store. The database file may be shared by several processes.
type SQLiteConfig struct {
	Path          string        `mapstructure:"path" yaml:"path" json:"path"`
	BusyTimeout   time.Duration `mapstructure:"busyTimeout" yaml:"busyTimeout" json:"busyTimeout"`
	PurgeInterval time.Duration `mapstructure:"purgeInterval" yaml:"purgeInterval" json:"purgeInterval"`
}

// MemoryConfig is a configuration for the in-process store.
type MemoryConfig struct {
	MaxKeys int `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`
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

// SetProviderDefaults sets default configuration values for the store in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyType, string(TypeRedis))
	dp.SetDefault(cfgKeyRedisAddr, DefaultRedisAddr)
	dp.SetDefault(cfgKeySQLiteBusyTimeout, DefaultSQLiteBusyTimeout)
	dp.SetDefault(cfgKeySQLitePurgeInterval, DefaultSQLitePurgeInterval)
	dp.SetDefault(cfgKeyMemoryMaxKeys, DefaultMemoryMaxKeys)
}

var availableTypes = []string{string(TypeRedis), string(TypeSQLite), string(TypeMemory)}

// Set sets store configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	typeStr, err := dp.GetStringFromSet(cfgKeyType, availableTypes, true)
	if err != nil {
		return err
	}
	c.Type = Type(strings.ToLower(typeStr))

	switch c.Type {
	case TypeRedis:
		return c.setRedis(dp)
	case TypeSQLite:
		return c.setSQLite(dp)
	default:
		return c.setMemory(dp)
	}
}

func (c *Config) setRedis(dp config.DataProvider) error {
	var err error
	if c.Redis.Addr, err = dp.GetString(cfgKeyRedisAddr); err != nil {
		return err
	}
	if c.Redis.Addr == "" {
		return dp.WrapKeyErr(cfgKeyRedisAddr, fmt.Errorf("cannot be empty when %q store is used", TypeRedis))
	}
	if c.Redis.Username, err = dp.GetString(cfgKeyRedisUsername); err != nil {
		return err
	}
	if c.Redis.Password, err = dp.GetString(cfgKeyRedisPassword); err != nil {
		return err
	}
	if c.Redis.DB, err = dp.GetInt(cfgKeyRedisDB); err != nil {
		return err
	}
	if c.Redis.DB < 0 {
		return dp.WrapKeyErr(cfgKeyRedisDB, fmt.Errorf("should be >= 0"))
	}
	return nil
}

func (c *Config) setSQLite(dp config.DataProvider) error {
	var err error
	if c.SQLite.Path, err = dp.GetString(cfgKeySQLitePath); err != nil {
		return err
	}
	if c.SQLite.Path == "" {
		return dp.WrapKeyErr(cfgKeySQLitePath, fmt.Errorf("cannot be empty when %q store is used", TypeSQLite))
	}
	if c.SQLite.BusyTimeout, err = dp.GetDuration(cfgKeySQLiteBusyTimeout); err != nil {
		return err
	}
	if c.SQLite.PurgeInterval, err = dp.GetDuration(cfgKeySQLitePurgeInterval); err != nil {
		return err
	}
	if c.SQLite.PurgeInterval <= 0 {
		return dp.WrapKeyErr(cfgKeySQLitePurgeInterval, fmt.Errorf("should be > 0"))
	}
	return nil
}

func (c *Config) setMemory(dp config.DataProvider) error {
	var err error
	if c.Memory.MaxKeys, err = dp.GetInt(cfgKeyMemoryMaxKeys); err != nil {
		return err
	}
	if c.Memory.MaxKeys <= 0 {
		return dp.WrapKeyErr(cfgKeyMemoryMaxKeys, fmt.Errorf("should be > 0"))
	}
	return nil
}
