/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotInitialized is returned when a limiter is checked while the registry has no active backend
// (before Init or after Close).
var ErrNotInitialized = errors.New("rate limiter registry is not initialized")

// ErrAlreadyInitialized is returned by Registry.Init if the registry is already initialized.
var ErrAlreadyInitialized = errors.New("rate limiter registry is already initialized")

// ErrIdentityNotConfigured is returned when neither the limiter nor the registry provides an identity function.
var ErrIdentityNotConfigured = errors.New("rate limiter identity function is not configured")

// ErrCallbackNotConfigured is returned when neither the limiter nor the registry provides a callback.
var ErrCallbackNotConfigured = errors.New("rate limiter callback is not configured")

// ErrRequestHandled may be returned by a custom HTTPCallback that has already written the response.
// The request must not be passed further.
var ErrRequestHandled = errors.New("request is handled by the rate limiter callback")

// IdentityError is returned when the identity function fails.
type IdentityError struct {
	Err error
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("identify rate limited client: %v", e.Err)
}

func (e *IdentityError) Unwrap() error {
	return e.Err
}

// StoreError is returned when the consume operation fails in the store.
// A missing script has already been reloaded and retried once when this error is seen.
type StoreError struct {
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("consume rate limit for key %q: %v", e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// RateLimitExceededError is returned by the default HTTP callback when the request is rejected.
// It's a signal for the boundary layer to respond with 429 and the Retry-After header, not a failure.
type RateLimitExceededError struct {
	// RetryAfter is the number of seconds for the Retry-After header.
	RetryAfter int
	// BlockedFor is the time left until the current window expires.
	BlockedFor time.Duration
}

// NewRateLimitExceededError creates a new RateLimitExceededError for the given remaining window time.
func NewRateLimitExceededError(blockedFor time.Duration) *RateLimitExceededError {
	return &RateLimitExceededError{RetryAfter: RetryAfterSeconds(blockedFor), BlockedFor: blockedFor}
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %d second(s)", e.RetryAfter)
}

// RetryAfterSeconds converts the remaining window time to whole seconds rounding up (1ms gives 1s, 1000ms gives 1s).
func RetryAfterSeconds(blockedFor time.Duration) int {
	if blockedFor <= 0 {
		return 0
	}
	return int((blockedFor + time.Second - 1) / time.Second)
}
