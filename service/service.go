/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"

	"github.com/acronis/go-distlimit/log"
)

// Service runs a unit until its context is done or the unit fails.
type Service struct {
	Unit   Unit
	Logger log.FieldLogger
}

// New creates a new Service.
func New(logger log.FieldLogger, unit Unit) *Service {
	return &Service{Unit: unit, Logger: logger}
}

// Run starts the unit in a separate goroutine and blocks until ctx is done (the unit is stopped gracefully then)
// or the unit reports a fatal error.
func (s *Service) Run(ctx context.Context) error {
	fatalErr := make(chan error, 1)
	go s.Unit.Start(fatalErr)

	select {
	case <-ctx.Done():
		s.Logger.Info("context is canceled, service will be stopped")
		if err := s.Unit.Stop(true); err != nil {
			return fmt.Errorf("stop service gracefully: %w", err)
		}
		return nil
	case err := <-fatalErr:
		s.Logger.Error("service fatal error", log.Error(err))
		return fmt.Errorf("fatal error: %w", err)
	}
}
