// Package shutdown waits for termination signals and runs cleanup with a deadline.
package shutdown

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func CreateGracefulShutdownChannel() chan os.Signal {
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	return gracefulShutdown
}

// ListenForShutdown blocks until a signal arrives on gracefulShutdown or done
// is closed, then runs callback. It gives up waiting on callback after timeout.
func ListenForShutdown(gracefulShutdown chan os.Signal, done chan bool, callback func(), timeout time.Duration, l *zap.Logger) {
	select {
	case sig := <-gracefulShutdown:
		l.Sugar().Infow("Received signal", zap.String("signal", sig.String()))
	case <-done:
		l.Sugar().Infow("Received done")
	}

	finished := make(chan struct{})
	go func() {
		callback()
		close(finished)
	}()

	select {
	case <-finished:
		l.Sugar().Infow("Shutdown complete")
	case <-time.After(timeout):
		l.Sugar().Warnw("Shutdown timed out", zap.Duration("timeout", timeout))
	}
}
