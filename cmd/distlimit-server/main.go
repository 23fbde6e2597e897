/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// distlimit-server is a demo service with rate-limited embedding endpoints and a WebSocket echo endpoint.
// Run several instances with the same Redis or SQLite store to share the limits between them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
