// Command authorityd runs the token authority: it owns the storage
// connection and the sweeper lifecycle and serves the metadata document,
// the public JWK Set and the Prometheus metrics.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("authorityd failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
