/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"strings"
	"sync"
)

// CompositeUnit starts and stops several units together.
type CompositeUnit struct {
	Units []Unit
}

// NewCompositeUnit creates a new CompositeUnit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{units}
}

// Start starts all units concurrently and blocks until all Start calls return.
// When any unit fails, the rest are stopped non-gracefully and a *CompositeUnitError is sent to fatalErr.
func (cu *CompositeUnit) Start(fatalErr chan<- error) {
	unitErrs := make(chan error, len(cu.Units))
	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for _, unit := range cu.Units {
		go func(unit Unit) {
			defer wg.Done()
			unitFatalErr := make(chan error, 1)
			unit.Start(unitFatalErr)
			select {
			case err := <-unitFatalErr:
				unitErrs <- err
			default:
			}
		}(unit)
	}

	allReturned := make(chan struct{})
	go func() {
		wg.Wait()
		close(allReturned)
	}()

	select {
	case <-allReturned:
		if len(unitErrs) == 0 {
			return
		}
	case err := <-unitErrs:
		unitErrs <- err
	}

	stopErr := cu.Stop(false)
	<-allReturned
	close(unitErrs)

	var compositeErr CompositeUnitError
	for err := range unitErrs {
		compositeErr.UnitErrors = append(compositeErr.UnitErrors, err)
	}
	var stopCompositeErr *CompositeUnitError
	if errors.As(stopErr, &stopCompositeErr) {
		compositeErr.UnitErrors = append(compositeErr.UnitErrors, stopCompositeErr.UnitErrors...)
	}
	fatalErr <- &compositeErr
}

// Stop stops all units concurrently. Errors are collected into a *CompositeUnitError.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	errs := make([]error, len(cu.Units))
	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for i, unit := range cu.Units {
		go func(i int, unit Unit) {
			defer wg.Done()
			errs[i] = unit.Stop(gracefully)
		}(i, unit)
	}
	wg.Wait()

	var compositeErr CompositeUnitError
	for _, err := range errs {
		if err != nil {
			compositeErr.UnitErrors = append(compositeErr.UnitErrors, err)
		}
	}
	if len(compositeErr.UnitErrors) != 0 {
		return &compositeErr
	}
	return nil
}

// CompositeUnitError holds errors of the units in a composition.
type CompositeUnitError struct {
	UnitErrors []error
}

func (e *CompositeUnitError) Error() string {
	msgs := make([]string, 0, len(e.UnitErrors))
	for _, err := range e.UnitErrors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap allows errors.Is and errors.As to look into the unit errors.
func (e *CompositeUnitError) Unwrap() []error {
	return e.UnitErrors
}
