// Package signals maps SIGINT/SIGTERM onto the orchestrator's shutdown
// token. Per the concurrency model, a signal handler only enqueues the
// token; it never performs cleanup itself.
package signals

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// notify is the registration function Install uses (signal.Notify), held
// in a package variable.
var notify = signal.Notify

// Install registers SIGINT/SIGTERM handling and calls cancel exactly once,
// with the received signal wrapped as its cause, the first time either
// arrives. It returns a stop function that unregisters the handler; callers
// should defer it once the shutdown token has already been consumed.
func Install(cancel context.CancelCauseFunc) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			logrus.Debugf("received signal %v, requesting shutdown", sig)
			cancel(fmt.Errorf("received signal: %v", sig))
		case <-done:
		}
	}()

	return func() {
		close(done)
		signal.Stop(sigCh)
	}
}
