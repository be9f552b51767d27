package database

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupSignalHandler returns a context that is canceled on SIGTERM or
// SIGINT. A run in progress stops at the next cancellation point; the
// checkpoint stays at the last durable value.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	return SetupSignalHandlerWithCallback(parent, nil)
}

// SetupSignalHandlerWithCallback is SetupSignalHandler with a callback
// invoked with the received signal before the context is canceled.
func SetupSignalHandlerWithCallback(parent context.Context, callback func(os.Signal)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			if callback != nil {
				callback(sig)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
