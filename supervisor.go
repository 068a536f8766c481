package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type driver interface {
	run(ctx context.Context) error
}

// supervisor restarts a freshly built driver every time the previous one
// fails, until ctx is done. Restarts drop all in-memory state; only the
// checkpoint file survives.
type supervisor struct {
	newDriver func() driver
	sleep     sleepFunc
	backoff   func() time.Duration
}

func (s *supervisor) supervise(ctx context.Context) {
	for {
		err := runSafely(ctx, s.newDriver())
		if err == nil || ctx.Err() != nil {
			return
		}
		driverRestarts.Inc()
		interval := s.backoff()
		logrus.WithError(err).Errorf("problem while collecting, restarting in %s", interval)
		if err := s.sleep(ctx, interval); err != nil {
			return
		}
	}
}

func runSafely(ctx context.Context, d driver) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("collector panicked: %v", r)
		}
	}()
	return d.run(ctx)
}
