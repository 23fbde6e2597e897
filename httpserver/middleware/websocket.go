/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/coder/websocket"

	"github.com/acronis/go-distlimit/limiter"
)

// WebSocketConn adapts an accepted coder/websocket connection to limiter.WebSocket.
type WebSocketConn struct {
	conn *websocket.Conn
	req  *http.Request
}

var _ limiter.WebSocket = (*WebSocketConn)(nil)

// NewWebSocketConn creates a new WebSocketConn. r is the handshake request the connection was accepted for.
func NewWebSocketConn(conn *websocket.Conn, r *http.Request) *WebSocketConn {
	return &WebSocketConn{conn: conn, req: r}
}

// Conn returns the underlying connection.
func (c *WebSocketConn) Conn() *websocket.Conn {
	return c.conn
}

// Request returns the handshake request.
func (c *WebSocketConn) Request() *http.Request {
	return c.req
}

// Close performs the WebSocket close handshake with the given code and reason.
func (c *WebSocketConn) Close(code int, reason string) error {
	return c.conn.Close(websocket.StatusCode(code), reason)
}
