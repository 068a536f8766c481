package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "docker-logs-collector"
	app.Usage = "A tool to collect logs of docker containers and ship them elsewhere"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "log-level",
			Value:  "info",
			EnvVar: "LOG_LEVEL",
		},
		cli.StringFlag{
			Name:   "log-format",
			Usage:  "text or json",
			Value:  "text",
			EnvVar: "LOG_FORMAT",
		},
	}
	app.Before = setupLogging
	app.Commands = []cli.Command{
		collectCmd,
		receiveCmd,
		checkpointCmd,
	}
	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func setupLogging(context *cli.Context) error {
	level, err := logrus.ParseLevel(context.String("log-level"))
	if err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	logrus.SetLevel(level)
	switch context.String("log-format") {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return errors.Errorf("unknown log format %q", context.String("log-format"))
	}
	return nil
}
