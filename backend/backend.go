/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package backend defines the contract between the rate limiter and the shared store that keeps
// fixed-window counters. Concrete adapters live in sub-packages (redisbackend, sqlitebackend, memorybackend).
package backend

import (
	"context"
	"errors"
	"time"
)

// ErrScriptNotLoaded is returned (wrapped) by adapters when the store does not know the consume script anymore,
// e.g. after a store restart or a SCRIPT FLUSH. Adapters reload the script and retry once before surfacing it.
var ErrScriptNotLoaded = errors.New("rate limiting script is not loaded in the store")

// ScriptHandle is an opaque reference to a script installed in the store (the SHA1 digest for Redis).
type ScriptHandle string

// Script is a store-side implementation of the atomic consume operation.
type Script struct {
	// Name identifies the script in logs and is used as the handle by stores that run it client-side.
	Name string
	// Lua is the source evaluated by Redis-compatible stores.
	Lua string
}

// Backend is a shared store able to run the atomic consume operation.
//
// EvalLimiter consumes one hit for key. It returns 0 if the hit is admitted,
// or the time left until the window of the key expires if it is rejected.
// The first hit for a key always creates a counter equal to 1 that lives for window,
// following hits increment it while it stays <= limit and never prolong its TTL.
type Backend interface {
	LoadScript(ctx context.Context, script Script) (ScriptHandle, error)
	EvalLimiter(ctx context.Context, key string, limit int, window time.Duration, handle ScriptHandle, script Script) (time.Duration, error)
}

// Closer is implemented by backends that own a connection and must release it on shutdown.
type Closer interface {
	Close(ctx context.Context) error
}

// RoundUpToMillis rounds d up to a whole number of milliseconds.
// Stores keep TTLs with millisecond precision, so a blocked result is never shorter than 1ms.
func RoundUpToMillis(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Millisecond
	}
	return ((d + time.Millisecond - 1) / time.Millisecond) * time.Millisecond
}
