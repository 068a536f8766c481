package main

import (
	gocontext "context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var receiveCmd = cli.Command{
	Name:      "receive",
	Usage:     "accept logs posted by collect, print them and count them in metrics",
	ArgsUsage: "PORT",
	Action: func(context *cli.Context) error {
		port := context.Args().First()
		if port == "" {
			return errors.New("port must be provided")
		}
		signalC := make(chan os.Signal, 1024)
		signal.Notify(signalC, handledSignals...)
		ctx := handleSignals(gocontext.Background(), signalC)
		svr := &http.Server{
			Addr:    "0.0.0.0:" + port,
			Handler: newReceiveHandler(),
		}
		logrus.Info("receiver started")
		exit := make(chan struct{})
		go func() {
			<-ctx.Done()
			svr.Shutdown(gocontext.Background())
			close(exit)
		}()
		if err := svr.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		<-exit
		logrus.Info("shutting down")
		return nil
	},
}

func newReceiveHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", receiveLogs)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func receiveLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			logrus.WithError(err).Error("failed to decompress data")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer zr.Close()
		body = zr
	}
	var batch logBatch
	if err := json.NewDecoder(body).Decode(&batch); err != nil {
		logrus.WithError(err).Error("failed to decode data")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if batch.Machine == "" {
		logrus.Error("received logs without a machine name")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	for _, e := range batch.Logs {
		receivedEntries.WithLabelValues(batch.Machine).Inc()
		receivedBytes.WithLabelValues(batch.Machine).Add(float64(len(e.Log)))
		logrus.WithFields(logrus.Fields{
			"machine": batch.Machine,
			"id":      shortID(e.ContainerID),
			"name":    e.ContainerName,
			"from":    e.From,
			"to":      e.To,
		}).Info(e.Log)
	}
	w.WriteHeader(http.StatusOK)
}
