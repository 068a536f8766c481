package main

import (
	"context"
	"time"

	"github.com/containerd/errdefs"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"
)

type fetcher interface {
	// FetchLogs returns the output a container wrote in [since, until).
	FetchLogs(ctx context.Context, id string, since, until int64) (string, error)
}

type deliverer interface {
	deliver(ctx context.Context, entries []logEntry) error
}

// collector runs poll cycles: discover containers, read each one's logs
// since its checkpoint, ship them as one batch and persist the global
// checkpoint. All of its state lives in memory and is lost on restart.
type collector struct {
	registry    *registry
	checkpoints *checkpointStore
	fetcher     fetcher
	sender      deliverer
	clock       clock.Clock
	interval    time.Duration
	sleep       sleepFunc

	defaultCheck int64
}

func newCollector(r *registry, cs *checkpointStore, f fetcher, d deliverer, clk clock.Clock, interval time.Duration, sleep sleepFunc) *collector {
	return &collector{
		registry:     r,
		checkpoints:  cs,
		fetcher:      f,
		sender:       d,
		clock:        clk,
		interval:     interval,
		sleep:        sleep,
		defaultCheck: clk.Now().Unix() - startupGrace,
	}
}

// run repeats cycles until ctx is done. A cycle that has started always runs
// to completion; ctx is only checked before a cycle begins and before
// sleeping. The returned error is always from discovery.
func (c *collector) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		logrus.Info("checking containers")
		if err := c.cycle(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		logrus.Debugf("sleeping for %s", c.interval)
		if err := c.sleep(ctx, c.interval); err != nil {
			return nil
		}
	}
}

func (c *collector) cycle(ctx context.Context) error {
	defaultCheck := c.checkpoints.clamp(c.defaultCheck, c.clock.Now().Unix())
	asOf := c.clock.Now().Unix()

	containers, err := c.registry.snapshot(ctx)
	if err != nil {
		return err
	}
	watchedContainers.Set(float64(len(containers)))
	windows := c.checkpoints.windowsFor(containers, defaultCheck, c.clock.Now().Unix())
	logrus.Infof("have %d running containers, checking their logs", len(containers))

	entries := c.collect(ctx, containers, windows)
	c.defaultCheck = asOf
	logrus.Info("logs checked")

	if len(entries) == 0 {
		logrus.Info("no logs to send")
	} else {
		logrus.Infof("sending logs of %d containers", len(entries))
		if err := c.sender.deliver(ctx, entries); err != nil {
			deliveryFailures.Inc()
			logrus.WithError(err).Error("failed to send logs, dropping them")
		} else {
			logrus.Info("logs sent")
		}
	}

	c.checkpoints.persistGlobal(asOf)
	cyclesTotal.Inc()
	lastCycleTimestamp.Set(float64(asOf))
	return nil
}

// collect fetches the logs of every container in turn. A failed fetch leaves
// that container's checkpoint untouched so the same window is retried on the
// next cycle.
func (c *collector) collect(ctx context.Context, containers []container, windows map[string]int64) []logEntry {
	// a fetch already started is not interrupted by shutdown
	fetchCtx := context.WithoutCancel(ctx)
	var entries []logEntry
	for _, ct := range containers {
		log := logrus.WithFields(logrus.Fields{
			"id":   shortID(ct.ID),
			"name": ct.Name,
		})
		from := windows[ct.ID]
		// a renamed container is listed under both names; its second read
		// continues where the first one stopped
		if at, ok := c.checkpoints.checkpoint(ct.ID); ok && at > from {
			from = at
		}
		to := c.clock.Now().Unix()
		log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("gathering logs")
		text, err := c.fetcher.FetchLogs(fetchCtx, ct.ID, from, to)
		if err != nil {
			fetchFailures.Inc()
			if errdefs.IsNotFound(err) {
				log.WithError(err).Warn("container disappeared before its logs were gathered")
			} else {
				log.WithError(err).Error("failed to gather logs")
			}
			continue
		}
		c.checkpoints.advance(ct.ID, to)
		if text == "" {
			log.Debug("no new logs")
			continue
		}
		log.WithField("bytes", len(text)).Debug("logs gathered")
		entries = append(entries, logEntry{
			ContainerID:   ct.ID,
			ContainerName: ct.Name,
			From:          from,
			To:            to,
			Log:           text,
		})
	}
	return entries
}
