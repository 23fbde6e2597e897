/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-distlimit/backend"
	"github.com/acronis/go-distlimit/backend/memorybackend"
)

type mockBackend struct {
	mu         sync.Mutex
	keys       []string
	loadErr    error
	evalFunc   func(ctx context.Context, key string) (time.Duration, error)
	loadCalls  atomic.Int32
	closeCalls atomic.Int32
}

func (b *mockBackend) LoadScript(_ context.Context, script backend.Script) (backend.ScriptHandle, error) {
	b.loadCalls.Inc()
	if b.loadErr != nil {
		return "", b.loadErr
	}
	return backend.ScriptHandle(script.Name), nil
}

func (b *mockBackend) EvalLimiter(
	ctx context.Context, key string, _ int, _ time.Duration, _ backend.ScriptHandle, _ backend.Script,
) (time.Duration, error) {
	b.mu.Lock()
	b.keys = append(b.keys, key)
	b.mu.Unlock()
	if b.evalFunc != nil {
		return b.evalFunc(ctx, key)
	}
	return 0, nil
}

func (b *mockBackend) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.keys...)
}

func (b *mockBackend) Close(context.Context) error {
	b.closeCalls.Inc()
	return nil
}

type mockWebSocket struct {
	req        *http.Request
	closeCode  atomic.Int32
	closeCalls atomic.Int32
}

func (ws *mockWebSocket) Request() *http.Request {
	return ws.req
}

func (ws *mockWebSocket) Close(code int, _ string) error {
	ws.closeCalls.Inc()
	ws.closeCode.Store(int32(code))
	return nil
}

func newMemoryRegistry(t *testing.T, opts InitOpts) *Registry {
	t.Helper()
	b, err := memorybackend.New(1000, memorybackend.Opts{})
	require.NoError(t, err)
	reg := NewRegistry()
	require.NoError(t, reg.Init(context.Background(), b, opts))
	t.Cleanup(func() { require.NoError(t, reg.Close(context.Background())) })
	return reg
}
