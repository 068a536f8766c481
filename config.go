package main

import (
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"k8s.io/apimachinery/pkg/labels"
)

type config struct {
	nameLabel      string
	machine        string
	target         string
	headers        http.Header
	interval       time.Duration
	lookback       int64
	checkpointFile string
	retries        int
	selector       labels.Selector
	evictAfter     int
	gzip           bool
	timeout        time.Duration
	dockerHost     string
	metricsAddress string
}

func newConfig(context *cli.Context) (*config, error) {
	cfg := &config{
		nameLabel:      context.String("instance-name-label"),
		machine:        context.String("machine-name"),
		target:         strings.TrimSpace(context.String("target")),
		interval:       time.Duration(context.Int("interval")) * time.Second,
		lookback:       context.Int64("max-lookback"),
		checkpointFile: context.String("checkpoint-file"),
		retries:        context.Int("retries"),
		evictAfter:     context.Int("evict-after"),
		gzip:           context.Bool("gzip"),
		timeout:        time.Duration(context.Int("timeout")) * time.Second,
		dockerHost:     context.String("docker-host"),
		metricsAddress: context.String("metrics-address"),
	}
	if cfg.machine == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, errors.Wrap(err, "machine name is not set and the host name is unavailable")
		}
		cfg.machine = host
	}
	headers, err := parseHeaders(context.StringSlice("header"))
	if err != nil {
		return nil, err
	}
	cfg.headers = headers
	if cfg.selector, err = labels.Parse(context.String("selector")); err != nil {
		return nil, errors.Wrap(err, "invalid container selector")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *config) validate() error {
	if c.interval <= 0 {
		return errors.New("interval must be positive")
	}
	if c.lookback <= 0 {
		return errors.New("max lookback must be positive")
	}
	if c.retries < 0 {
		return errors.New("retries must not be negative")
	}
	if c.evictAfter < 0 {
		return errors.New("evict-after must not be negative")
	}
	if c.timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.checkpointFile == "" {
		return errors.New("checkpoint file must be provided")
	}
	if c.target == consoleTarget {
		return nil
	}
	u, err := url.Parse(c.target)
	if err != nil {
		return errors.Wrapf(err, "invalid logs target %q", c.target)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("logs target %q must be an http(s) URL or %s", c.target, consoleTarget)
	}
	return nil
}

// reservedHeaders describe the body and are always set by the sender.
var reservedHeaders = map[string]struct{}{
	"Content-Type":     {},
	"Content-Encoding": {},
}

// parseHeaders turns key=value entries into headers. Any malformed entry
// fails the whole set.
func parseHeaders(entries []string) (http.Header, error) {
	headers := http.Header{}
	for _, e := range entries {
		if strings.TrimSpace(e) == "" {
			continue
		}
		kv := strings.SplitN(e, "=", 2)
		if len(kv) != 2 {
			return nil, errors.Errorf("invalid header %q, expected key=value", e)
		}
		key, value := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if key == "" {
			return nil, errors.Errorf("invalid header %q, empty key", e)
		}
		if _, ok := reservedHeaders[http.CanonicalHeaderKey(key)]; ok {
			return nil, errors.Errorf("header %s is set by the collector and cannot be configured", key)
		}
		headers.Add(key, value)
	}
	return headers, nil
}

func (c *config) newSender() *sender {
	return &sender{
		machine: c.machine,
		target:  c.target,
		headers: c.headers,
		retries: c.retries,
		gzip:    c.gzip,
		client:  &http.Client{Timeout: c.timeout},
		console: os.Stdout,
		sleep:   sleepContext,
		backoff: randomRetryInterval,
	}
}
