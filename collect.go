package main

import (
	gocontext "context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"k8s.io/apimachinery/pkg/util/clock"
)

const defaultCheckpointFile = "/tmp/docker-logs-collector-last-data-read-at.txt"

var collectCmd = cli.Command{
	Name:  "collect",
	Usage: "periodically collect logs of local docker containers and send them to a target",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:   "instance-name-label",
			Usage:  "container label holding the name reported for a container",
			EnvVar: "INSTANCE_NAME_LABEL",
		},
		cli.StringFlag{
			Name:   "machine-name",
			Usage:  "name of this machine in sent logs, defaults to the host name",
			EnvVar: "MACHINE_NAME",
		},
		cli.StringFlag{
			Name:   "target",
			Usage:  "URL logs are posted to, " + consoleTarget + " prints them instead",
			Value:  consoleTarget,
			EnvVar: "LOGS_TARGET_URL",
		},
		cli.StringSliceFlag{
			Name:   "header",
			Usage:  "key=value header added to every request",
			EnvVar: "LOGS_TARGET_HEADERS",
		},
		cli.IntFlag{
			Name:   "interval",
			Usage:  "seconds between two collections",
			Value:  10,
			EnvVar: "COLLECTION_INTERVAL",
		},
		cli.Int64Flag{
			Name:   "max-lookback",
			Usage:  "never read logs older than this many seconds",
			Value:  3600,
			EnvVar: "MAX_LOGS_NOT_SEND_AGO",
		},
		cli.StringFlag{
			Name:   "checkpoint-file",
			Usage:  "file the time of the last collection is written to",
			Value:  defaultCheckpointFile,
			EnvVar: "LAST_DATA_READ_AT_FILE",
		},
		cli.IntFlag{
			Name:   "retries",
			Usage:  "how many times a failed delivery is retried",
			Value:  3,
			EnvVar: "LOGS_TARGET_RETRIES",
		},
		cli.StringFlag{
			Name:   "selector",
			Usage:  "only collect containers whose labels match this selector",
			EnvVar: "CONTAINER_SELECTOR",
		},
		cli.IntFlag{
			Name:   "evict-after",
			Usage:  "forget a container after this many collections without it, 0 never forgets",
			Value:  60,
			EnvVar: "CHECKPOINT_EVICT_AFTER",
		},
		cli.BoolFlag{
			Name:   "gzip",
			Usage:  "gzip request bodies",
			EnvVar: "LOGS_TARGET_GZIP",
		},
		cli.IntFlag{
			Name:   "timeout",
			Usage:  "seconds before a delivery attempt times out",
			Value:  30,
			EnvVar: "LOGS_TARGET_TIMEOUT",
		},
		cli.StringFlag{
			Name:   "docker-host",
			Usage:  "docker daemon address, defaults to the client's environment",
			EnvVar: "DOCKER_HOST",
		},
		cli.StringFlag{
			Name:   "metrics-address",
			Usage:  "serve prometheus metrics on this address",
			EnvVar: "METRICS_ADDRESS",
		},
	},
	Action: func(context *cli.Context) error {
		cfg, err := newConfig(context)
		if err != nil {
			return err
		}
		signalC := make(chan os.Signal, 1024)
		signal.Notify(signalC, handledSignals...)
		ctx := handleSignals(gocontext.Background(), signalC)
		if cfg.metricsAddress != "" {
			svr := serveMetrics(cfg.metricsAddress)
			defer svr.Shutdown(gocontext.Background())
		}
		logrus.Infof("starting monitoring of machine %s", cfg.machine)
		if at, err := readGlobalCheckpoint(cfg.checkpointFile); err == nil {
			logrus.WithField("at", at).Info("found a checkpoint from a previous run")
		}
		rt, err := connectDocker(ctx, cfg.dockerHost, sleepContext)
		if err != nil {
			if ctx.Err() != nil {
				logrus.Info("shutdown requested, exiting gracefully")
				return nil
			}
			return err
		}
		defer rt.Close()
		s := cfg.newSender()
		sup := &supervisor{
			newDriver: func() driver {
				return newCollector(
					newRegistry(rt, cfg.nameLabel, cfg.selector),
					newCheckpointStore(cfg.lookback, cfg.evictAfter, cfg.checkpointFile),
					rt,
					s,
					clock.RealClock{},
					cfg.interval,
					sleepContext,
				)
			},
			sleep:   sleepContext,
			backoff: randomRetryInterval,
		}
		sup.supervise(ctx)
		logrus.Info("shutdown requested, exiting gracefully")
		return nil
	},
}
