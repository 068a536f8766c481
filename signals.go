package main

import (
	"context"
	"os"
	"syscall"

	"github.com/sirupsen/logrus"
)

var handledSignals = []os.Signal{
	syscall.SIGTERM,
	syscall.SIGINT,
}

// handleSignals returns a context that is cancelled on the first signal
// received from signals.
func handleSignals(parent context.Context, signals chan os.Signal) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		defer cancel()
		select {
		case s := <-signals:
			logrus.Infof("received a signal %s, stopping after the current cycle", s)
		case <-parent.Done():
		}
	}()
	return ctx
}
