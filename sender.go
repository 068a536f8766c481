package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	minRetryInterval = 1 * time.Second
	maxRetryInterval = 5 * time.Second
)

// sleepFunc waits for d or until ctx is done, whichever comes first.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// randomRetryInterval returns a delay in [minRetryInterval, maxRetryInterval).
func randomRetryInterval() time.Duration {
	return wait.Jitter(minRetryInterval, float64(maxRetryInterval-minRetryInterval)/float64(minRetryInterval))
}

type sender struct {
	machine string
	target  string
	headers http.Header
	retries int
	gzip    bool

	client  *http.Client
	console io.Writer
	sleep   sleepFunc
	backoff func() time.Duration
}

// deliver hands the whole batch to the target. Over HTTP it is attempted
// 1+retries times; an error is returned once every attempt failed.
func (s *sender) deliver(ctx context.Context, entries []logEntry) error {
	batch := logBatch{Machine: s.machine, Logs: entries}
	if s.target == consoleTarget {
		logrus.Info("console logs target")
		return s.print(batch)
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return errors.Wrap(err, "failed to encode logs")
	}
	if s.gzip {
		if body, err = gzipped(body); err != nil {
			return err
		}
	}
	for i := 0; ; i++ {
		err = s.post(body)
		if err == nil {
			deliveryAttempts.WithLabelValues("success").Inc()
			return nil
		}
		deliveryAttempts.WithLabelValues("failure").Inc()
		if i >= s.retries {
			return errors.Wrapf(err, "giving up after %d attempts", i+1)
		}
		interval := s.backoff()
		logrus.WithError(err).Infof("failed to send logs, will retry in %s", interval)
		if err := s.sleep(ctx, interval); err != nil {
			return errors.Wrap(err, "retry interrupted")
		}
	}
}

func (s *sender) print(batch logBatch) error {
	bs, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode logs")
	}
	if _, err := fmt.Fprintf(s.console, "%s\n\n", bs); err != nil {
		return errors.Wrap(err, "failed to print logs")
	}
	return nil
}

func (s *sender) post(body []byte) error {
	req, err := http.NewRequest(http.MethodPost, s.target, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build the request")
	}
	for k, vs := range s.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to post the logs")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("received status %s from server", resp.Status)
	}
	return nil
}

func gzipped(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, errors.Wrap(err, "failed to compress logs")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to compress logs")
	}
	return buf.Bytes(), nil
}
