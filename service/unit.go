/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs the parts of the rate limiting server (the HTTP server, store maintenance)
// as units with a common lifecycle.
package service

// Unit is a component of the service that can be started and stopped.
type Unit interface {
	// Start may block for the lifetime of the unit. A fatal error is sent to fatalErr at most once,
	// and the channel isn't used after Start returns.
	Start(fatalErr chan<- error)

	// Stop may be called even if Start has failed or hasn't been called.
	Stop(gracefully bool) error
}
