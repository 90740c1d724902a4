// Package signals turns SIGINT/SIGTERM into context cancellation for
// cmd/swift's main loop. Adapted from the teacher's pkg/signals, trimmed to
// the single exit path this core needs: stop cleanly once, exit hard on a
// second signal.
package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

var onlyOneSignalHandler = make(chan struct{})

// SetupSignalContext registers for SIGINT and SIGTERM and returns a context
// cancelled on the first one received. A second signal terminates the
// process immediately with exit code 1.
func SetupSignalContext() context.Context {
	close(onlyOneSignalHandler) // panics if called twice

	signalHandler := make(chan os.Signal, 2)
	signal.Notify(signalHandler, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		s := <-signalHandler
		logrus.Infof("signal received: %s, shutting down", s)
		cancel()

		s = <-signalHandler
		logrus.Infof("second signal received: %s, exiting", s)
		os.Exit(1)
	}()

	return ctx
}
