/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package backend

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-distlimit/config"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfgData string
		want    *Config
		wantErr string
	}{
		{
			name:    "defaults",
			cfgData: `{}`,
			want:    &Config{Type: TypeRedis, Redis: RedisConfig{Addr: DefaultRedisAddr}},
		},
		{
			name: "redis",
			cfgData: `
backend:
  type: Redis
  redis:
    addr: redis-0:6380
    username: limiter
    password: secret
    db: 2
`,
			want: &Config{Type: TypeRedis, Redis: RedisConfig{Addr: "redis-0:6380", Username: "limiter", Password: "secret", DB: 2}},
		},
		{
			name: "sqlite",
			cfgData: `
backend:
  type: sqlite
  sqlite:
    path: /var/lib/limiter/counters.db
    purgeInterval: 30s
`,
			want: &Config{Type: TypeSQLite, SQLite: SQLiteConfig{
				Path: "/var/lib/limiter/counters.db", BusyTimeout: DefaultSQLiteBusyTimeout, PurgeInterval: 30 * time.Second,
			}},
		},
		{
			name: "memory",
			cfgData: `
backend:
  type: memory
  memory:
    maxKeys: 10
`,
			want: &Config{Type: TypeMemory, Memory: MemoryConfig{MaxKeys: 10}},
		},
		{
			name:    "unknown type",
			cfgData: "backend:\n  type: etcd\n",
			wantErr: `backend.type: unknown value "etcd", should be one of [redis sqlite memory]`,
		},
		{
			name:    "sqlite without path",
			cfgData: "backend:\n  type: sqlite\n",
			wantErr: `backend.sqlite.path: cannot be empty when "sqlite" store is used`,
		},
		{
			name:    "negative redis db",
			cfgData: "backend:\n  redis:\n    db: -1\n",
			wantErr: `backend.redis.db: should be >= 0`,
		},
		{
			name:    "zero memory keys",
			cfgData: "backend:\n  type: memory\n  memory:\n    maxKeys: 0\n",
			wantErr: `backend.memory.maxKeys: should be > 0`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, cfg)
		})
	}
}

func TestRoundUpToMillis(t *testing.T) {
	require.Equal(t, time.Millisecond, RoundUpToMillis(0))
	require.Equal(t, time.Millisecond, RoundUpToMillis(time.Microsecond))
	require.Equal(t, 2*time.Millisecond, RoundUpToMillis(1500*time.Microsecond))
	require.Equal(t, time.Second, RoundUpToMillis(time.Second))
}
