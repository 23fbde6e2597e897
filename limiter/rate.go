/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRate is returned when the rate parameters are out of range or the window is empty.
var ErrInvalidRate = errors.New("invalid rate")

// Rate is the maximum number of hits admitted during a fixed window.
type Rate struct {
	Count  int
	Window time.Duration
}

// String returns a human-readable representation of the rate (e.g. "3/10s").
func (r Rate) String() string {
	return fmt.Sprintf("%d/%s", r.Count, r.Window)
}

// RateParams describes a rate the way it's usually declared next to a route.
// Every window component may be -1 which means it's unset and doesn't contribute to the window.
type RateParams struct {
	Times        int `validate:"gte=0"`
	Milliseconds int `validate:"gte=-1"`
	Seconds      int `validate:"gte=-1"`
	Minutes      int `validate:"gte=-1"`
	Hours        int `validate:"gte=-1"`
}

var rateValidator = validator.New()

// NewRate validates params and combines the window components into a Rate.
func NewRate(params RateParams) (Rate, error) {
	if err := rateValidator.Struct(params); err != nil {
		return Rate{}, fmt.Errorf("%w: %v", ErrInvalidRate, err)
	}
	var window time.Duration
	for _, c := range [...]struct {
		value int
		unit  time.Duration
	}{
		{params.Milliseconds, time.Millisecond},
		{params.Seconds, time.Second},
		{params.Minutes, time.Minute},
		{params.Hours, time.Hour},
	} {
		if c.value < 0 {
			continue
		}
		if int64(c.value) > int64(math.MaxInt64-window)/int64(c.unit) {
			return Rate{}, fmt.Errorf("%w: window is too large", ErrInvalidRate)
		}
		window += time.Duration(c.value) * c.unit
	}
	if window <= 0 {
		return Rate{}, fmt.Errorf("%w: window must be greater than 0", ErrInvalidRate)
	}
	return Rate{Count: params.Times, Window: window}, nil
}

// MustRate is a version of NewRate that panics if an error occurs.
func MustRate(params RateParams) Rate {
	rate, err := NewRate(params)
	if err != nil {
		panic(err)
	}
	return rate
}

func (r Rate) validate() error {
	if r.Count < 0 {
		return fmt.Errorf("%w: count must be >= 0", ErrInvalidRate)
	}
	if r.Window < time.Millisecond {
		return fmt.Errorf("%w: window must be at least 1ms", ErrInvalidRate)
	}
	return nil
}
