/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/acronis/go-distlimit/backend"
	"github.com/acronis/go-distlimit/log"
)

// DefaultKeyPrefix is a default prefix of all counter keys.
const DefaultKeyPrefix = "rate-limit"

// InitOpts represents options for Registry.Init. Zero values mean defaults.
type InitOpts struct {
	// Identity is used by limiters that don't override it. DefaultIdentity is used when nil.
	Identity IdentityFunc

	// HTTPCallback is used by HTTP limiters that don't override it. DefaultHTTPCallback is used when nil.
	HTTPCallback HTTPCallback

	// WSCallback is used by WebSocket limiters that don't override it.
	// The callback returned by NewDefaultWSCallback is used when nil.
	WSCallback WSCallback

	// KeyPrefix is prepended to all counter keys. DefaultKeyPrefix is used when empty.
	KeyPrefix string

	// RouteResolver gives route and dependency indexes for HTTP limiters. Both indexes are 0 when nil.
	RouteResolver RouteResolver

	// Script is the consume script loaded into the backend. backend.FixedWindowScript is used when empty.
	Script backend.Script

	Logger           log.FieldLogger
	MetricsCollector MetricsCollector
}

// registryState is immutable once published, so limiters work with a consistent snapshot
// even if Close runs concurrently.
type registryState struct {
	backend       backend.Backend
	script        backend.Script
	scriptHandle  backend.ScriptHandle
	identity      IdentityFunc
	httpCallback  HTTPCallback
	wsCallback    WSCallback
	keyPrefix     string
	routeResolver RouteResolver
	logger        log.FieldLogger
	metrics       MetricsCollector
}

// Registry holds the active backend and the settings shared by all limiters.
// The zero value is not initialized; limiters return ErrNotInitialized until Init succeeds.
type Registry struct {
	mu    sync.RWMutex
	state *registryState
}

// NewRegistry creates a new not initialized Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Init loads the consume script into the backend and makes the registry ready for limiters.
// An error means the registry stays not initialized; it's supposed to be fatal at startup.
func (reg *Registry) Init(ctx context.Context, b backend.Backend, opts InitOpts) error {
	if b == nil {
		return fmt.Errorf("init rate limiter registry: backend is nil")
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.state != nil {
		return ErrAlreadyInitialized
	}

	st := &registryState{
		backend:       b,
		script:        opts.Script,
		identity:      opts.Identity,
		httpCallback:  opts.HTTPCallback,
		wsCallback:    opts.WSCallback,
		keyPrefix:     opts.KeyPrefix,
		routeResolver: opts.RouteResolver,
		logger:        opts.Logger,
		metrics:       opts.MetricsCollector,
	}
	if st.script.Name == "" {
		st.script = backend.FixedWindowScript
	}
	if st.identity == nil {
		st.identity = DefaultIdentity
	}
	if st.httpCallback == nil {
		st.httpCallback = DefaultHTTPCallback
	}
	if st.logger == nil {
		st.logger = log.NewDisabledLogger()
	}
	if st.wsCallback == nil {
		st.wsCallback = NewDefaultWSCallback(st.logger)
	}
	if st.keyPrefix == "" {
		st.keyPrefix = DefaultKeyPrefix
	}
	if st.metrics == nil {
		st.metrics = disabledMetrics{}
	}

	handle, err := b.LoadScript(ctx, st.script)
	if err != nil {
		return fmt.Errorf("init rate limiter registry: %w", err)
	}
	st.scriptHandle = handle

	reg.state = st
	st.logger.Info("rate limiter registry initialized",
		log.String("key_prefix", st.keyPrefix), log.String("script", st.script.Name))
	return nil
}

// Close releases the backend (if it's closable) and makes the registry not initialized.
// It may be called several times and before Init.
func (reg *Registry) Close(ctx context.Context) error {
	reg.mu.Lock()
	st := reg.state
	reg.state = nil
	reg.mu.Unlock()

	if st == nil {
		return nil
	}

	var err error
	switch c := st.backend.(type) {
	case backend.Closer:
		err = c.Close(ctx)
	case io.Closer:
		err = c.Close()
	}
	if err != nil {
		return fmt.Errorf("close rate limiter backend: %w", err)
	}
	st.logger.Info("rate limiter registry closed")
	return nil
}

// IsInitialized reports whether the registry has an active backend.
func (reg *Registry) IsInitialized() bool {
	return reg.snapshot() != nil
}

func (reg *Registry) snapshot() *registryState {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.state
}

// consume runs the script for key. A failure caused by the caller leaving is reported with canceled=true,
// the hit is then admitted since it's unknown whether it has been counted.
func (st *registryState) consume(
	ctx context.Context, kind, key string, rate Rate,
) (blockedFor time.Duration, canceled bool, err error) {
	startTime := time.Now()
	blockedFor, err = st.backend.EvalLimiter(ctx, key, rate.Count, rate.Window, st.scriptHandle, st.script)
	st.metrics.ObserveStoreDuration(kind, time.Since(startTime))
	if err == nil {
		return blockedFor, false, nil
	}
	if ctx.Err() != nil {
		st.logger.Debug("rate limit check interrupted by request cancellation, letting it through",
			log.String("key", key), log.Error(err))
		st.metrics.IncDecisions(kind, OutcomeCanceled)
		return 0, true, nil
	}
	st.metrics.IncDecisions(kind, OutcomeError)
	return 0, false, &StoreError{Key: key, Err: err}
}
