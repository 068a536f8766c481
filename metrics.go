package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	metricsNamespace        = "docker_logs_collector"
	metricsSubsystemCollect = "collect"
	metricsSubsystemReceive = "receive"
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystemCollect,
		Name:      "cycles_total",
	})
	driverRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystemCollect,
		Name:      "restarts_total",
	})
	watchedContainers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystemCollect,
		Name:      "containers",
	})
	fetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystemCollect,
		Name:      "fetch_failures_total",
	})
	deliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystemCollect,
			Name:      "delivery_attempts_total",
		},
		[]string{"result"},
	)
	deliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystemCollect,
		Name:      "delivery_failures_total",
	})
	checkpointPersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystemCollect,
		Name:      "checkpoint_persist_failures_total",
	})
	lastCycleTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystemCollect,
		Name:      "last_cycle_timestamp_seconds",
	})

	receivedEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystemReceive,
			Name:      "entries_total",
		},
		[]string{"machine"},
	)
	receivedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystemReceive,
			Name:      "log_bytes_total",
		},
		[]string{"machine"},
	)
)

// serveMetrics exposes the default registry on addr until the returned server
// is shut down.
func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	svr := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := svr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("metrics server stopped")
		}
	}()
	logrus.Infof("serving metrics on %s", addr)
	return svr
}
