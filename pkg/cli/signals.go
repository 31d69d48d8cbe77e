package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// SetupSignalHandler returns a context that is canceled on the first SIGINT
// or SIGTERM. A second signal exits immediately with ExitFailure, so a
// drain stuck on an unreachable collector can still be interrupted.
func SetupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, shutdownSignals...)

	go func() {
		<-sigChan
		cancel()
		<-sigChan
		os.Exit(ExitFailure)
	}()

	return ctx
}

// NotifyReload calls reload on every SIGHUP until ctx is done. Calls are
// serialized.
func NotifyReload(ctx context.Context, reload func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-sigChan:
				reload()
			case <-ctx.Done():
				return
			}
		}
	}()
}
