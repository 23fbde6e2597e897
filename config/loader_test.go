/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testStoreConfig struct {
	Addr        string
	DialTimeout time.Duration
}

func (c *testStoreConfig) KeyPrefix() string {
	return "store"
}

func (c *testStoreConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("addr", "localhost:6379")
	dp.SetDefault("dialTimeout", "5s")
}

func (c *testStoreConfig) Set(dp DataProvider) error {
	var err error
	if c.Addr, err = dp.GetString("addr"); err != nil {
		return err
	}
	c.DialTimeout, err = dp.GetDuration("dialTimeout")
	return err
}

type testRule struct {
	Route string `mapstructure:"route"`
	Times int    `mapstructure:"times"`
}

const testStoreConfigYAML = `
store:
  addr: redis:6379
  rules:
    - route: /v1/ping
      times: 3
`

func TestLoader_LoadFromReader(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := &testStoreConfig{}
		require.NoError(t, NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`{}`), DataTypeJSON, cfg))
		require.Equal(t, "localhost:6379", cfg.Addr)
		require.Equal(t, 5*time.Second, cfg.DialTimeout)
	})

	t.Run("yaml with key prefix", func(t *testing.T) {
		cfg := &testStoreConfig{}
		require.NoError(t, NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(testStoreConfigYAML), DataTypeYAML, cfg))
		require.Equal(t, "redis:6379", cfg.Addr)
	})

	t.Run("env vars override file", func(t *testing.T) {
		t.Setenv("DISTLIMITTEST_STORE_ADDR", "10.0.0.1:6379")
		cfg := &testStoreConfig{}
		require.NoError(t, NewDefaultLoader("distlimittest").LoadFromReader(
			bytes.NewBufferString(testStoreConfigYAML), DataTypeYAML, cfg))
		require.Equal(t, "10.0.0.1:6379", cfg.Addr)
	})
}

func TestLoader_LoadFromPath(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "distlimit.JSON")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"store":{"addr":"json:6379","dialTimeout":"1s"}}`), 0o600))
	yamlPath := filepath.Join(dir, "distlimit.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(testStoreConfigYAML), 0o600))

	require.Equal(t, DataTypeJSON, DataTypeFromPath(jsonPath))
	require.Equal(t, DataTypeYAML, DataTypeFromPath(yamlPath))
	require.Equal(t, DataTypeYAML, DataTypeFromPath("config"))

	cfg := &testStoreConfig{}
	require.NoError(t, NewLoader(NewViperAdapter()).LoadFromPath(jsonPath, cfg))
	require.Equal(t, "json:6379", cfg.Addr)
	require.Equal(t, time.Second, cfg.DialTimeout)

	cfg = &testStoreConfig{}
	require.NoError(t, NewLoader(NewViperAdapter()).LoadFromPath(yamlPath, cfg))
	require.Equal(t, "redis:6379", cfg.Addr)

	t.Setenv("DISTLIMITTEST_STORE_DIALTIMEOUT", "3s")
	cfg = &testStoreConfig{}
	require.NoError(t, NewDefaultLoader("distlimittest").LoadFromPath("", cfg))
	require.Equal(t, "localhost:6379", cfg.Addr)
	require.Equal(t, 3*time.Second, cfg.DialTimeout)

	require.Error(t, NewLoader(NewViperAdapter()).LoadFromPath(filepath.Join(dir, "missing.yaml"), cfg))
}

func TestKeyPrefixedDataProvider_UnmarshalKey(t *testing.T) {
	va := NewViperAdapter()
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(testStoreConfigYAML), DataTypeYAML))
	dp := NewKeyPrefixedDataProvider(va, "store")

	var rules []testRule
	require.NoError(t, dp.UnmarshalKey("rules", &rules))
	require.Equal(t, []testRule{{Route: "/v1/ping", Times: 3}}, rules)
}

func TestViperAdapter_GetSizeInBytes(t *testing.T) {
	va := NewViperAdapter()
	va.Set("a", "1M")
	va.Set("b", "2Ki")
	va.Set("c", 4096)
	va.Set("d", "bogus")

	size, err := va.GetSizeInBytes("a")
	require.NoError(t, err)
	require.Equal(t, uint64(1024*1024), size)

	size, err = va.GetSizeInBytes("b")
	require.NoError(t, err)
	require.Equal(t, uint64(2048), size)

	size, err = va.GetSizeInBytes("c")
	require.NoError(t, err)
	require.Equal(t, uint64(4096), size)

	_, err = va.GetSizeInBytes("d")
	require.Error(t, err)
}

func TestViperAdapter_GetStringFromSet(t *testing.T) {
	va := NewViperAdapter()
	va.Set("type", "Redis")

	val, err := va.GetStringFromSet("type", []string{"redis", "sqlite"}, true)
	require.NoError(t, err)
	require.Equal(t, "Redis", val)

	_, err = va.GetStringFromSet("type", []string{"redis", "sqlite"}, false)
	require.EqualError(t, err, `type: unknown value "Redis", should be one of [redis sqlite]`)
}
