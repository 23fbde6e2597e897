/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry repeats operations against the shared store (e.g. readiness probes on startup)
// with exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default policy values.
const (
	DefaultInitialInterval = 200 * time.Millisecond
	DefaultMaxInterval     = 5 * time.Second
	DefaultMaxAttempts     = 5
)

// Policy describes exponentially growing delays between attempts.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxAttempts is the number of retries after the first attempt. 0 means retrying until ctx is done.
	MaxAttempts int
}

// DefaultPolicy returns the policy used for store readiness probes.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		MaxAttempts:     DefaultMaxAttempts,
	}
}

func (p Policy) newBackOff(ctx context.Context) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	var b backoff.BackOff = eb
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(eb, uint64(p.MaxAttempts))
	}
	return backoff.WithContext(b, ctx)
}

// Opts represents optional parameters for Do.
type Opts struct {
	// IsRetryable tells whether the error is worth another attempt. All errors are retried when nil.
	IsRetryable func(err error) bool

	// Notify is called before every retry with the error and the delay before the next attempt.
	Notify func(err error, next time.Duration)
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts are exhausted or ctx is done.
// The last error of fn is returned, or ctx.Err() if ctx is done before the first attempt.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error, opts Opts) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := policy.newBackOff(ctx)
	var lastErr error
	op := func() error {
		lastErr = fn(ctx)
		if lastErr != nil && opts.IsRetryable != nil && !opts.IsRetryable(lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}
	err := backoff.RetryNotify(op, b, opts.Notify)
	if err == nil {
		return nil
	}
	if lastErr != nil && errors.Is(err, ctx.Err()) {
		return lastErr
	}
	return err
}
