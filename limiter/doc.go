/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package limiter provides fixed-window rate limiting for HTTP requests and WebSocket messages
// coordinated through a shared store (see the backend package).
//
// A Registry holds the active store, the identity function, the callbacks invoked on rejection and the key prefix.
// It's initialized once at startup and closed once at shutdown. HTTPLimiter and WSLimiter are created per
// protected endpoint (or per logical WebSocket sub-stream) with their own Rate and reference the registry.
//
// Counter keys have the following shape:
//
//	{prefix}:{identity}:{routeIndex}:{dependencyIndex}  - HTTP
//	{prefix}:ws:{identity}:{contextKey}                 - WebSocket
//
// routeIndex and dependencyIndex come from the RouteResolver so that two limiters stacked on the same route,
// or one limiter shared by several routes, never count into the same key.
//
// A limit of 0 still admits the first hit of a window: the counter is created with 1 and only the
// following hits are compared with the limit.
package limiter
