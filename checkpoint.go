package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/moby/sys/atomicwriter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var checkpointCmd = cli.Command{
	Name:  "checkpoint",
	Usage: "print the time of the last completed collection",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:   "checkpoint-file",
			Value:  defaultCheckpointFile,
			EnvVar: "LAST_DATA_READ_AT_FILE",
		},
	},
	Action: func(context *cli.Context) error {
		at, err := readGlobalCheckpoint(context.String("checkpoint-file"))
		if err != nil {
			return err
		}
		t := time.Unix(at, 0)
		fmt.Fprintf(context.App.Writer, "%d (%s, %s ago)\n", at, t.Format(time.RFC3339), time.Since(t).Truncate(time.Second))
		return nil
	},
}

// checkpointStore tracks, per container, the unix time up to which its logs
// were read successfully. It is owned by a single driver and is not safe for
// concurrent use.
type checkpointStore struct {
	lookback   int64
	evictAfter int
	path       string

	checks map[string]int64
	// consecutive snapshots a checkpointed container was missing from
	missing map[string]int
}

func newCheckpointStore(lookback int64, evictAfter int, path string) *checkpointStore {
	return &checkpointStore{
		lookback:   lookback,
		evictAfter: evictAfter,
		path:       path,
		checks:     map[string]int64{},
		missing:    map[string]int{},
	}
}

// clamp bounds how far back a window may start so that an agent which was
// down for a long time does not try to replay its whole backlog.
func (s *checkpointStore) clamp(candidate, now int64) int64 {
	if oldest := now - s.lookback; candidate < oldest {
		return oldest
	}
	return candidate
}

// windowsFor returns the start of the fetch window of every visible
// container. Containers without a checkpoint start at clampedDefault.
func (s *checkpointStore) windowsFor(visible []container, clampedDefault, now int64) map[string]int64 {
	windows := make(map[string]int64, len(visible))
	for _, c := range visible {
		start, ok := s.checks[c.ID]
		if !ok {
			start = clampedDefault
		}
		windows[c.ID] = s.clamp(start, now)
	}
	s.evict(windows)
	return windows
}

func (s *checkpointStore) evict(visible map[string]int64) {
	if s.evictAfter <= 0 {
		return
	}
	for id := range s.checks {
		if _, ok := visible[id]; ok {
			delete(s.missing, id)
			continue
		}
		s.missing[id]++
		if s.missing[id] >= s.evictAfter {
			logrus.WithField("id", shortID(id)).Debug("dropping checkpoint of a container not seen for a while")
			delete(s.checks, id)
			delete(s.missing, id)
		}
	}
}

// advance records that the logs of id were read up to at. Checkpoints never
// move backwards.
func (s *checkpointStore) advance(id string, at int64) {
	if cur, ok := s.checks[id]; ok && cur >= at {
		return
	}
	s.checks[id] = at
}

func (s *checkpointStore) checkpoint(id string) (int64, bool) {
	at, ok := s.checks[id]
	return at, ok
}

// persistGlobal overwrites the checkpoint file. Failures are logged only, the
// next cycle writes it again.
func (s *checkpointStore) persistGlobal(at int64) {
	log := logrus.WithField("path", s.path)
	log.Debug("updating last-data-read-at file")
	if err := writeGlobalCheckpoint(s.path, at); err != nil {
		checkpointPersistFailures.Inc()
		log.WithError(err).Error("failed to update last-data-read-at file")
		return
	}
	log.WithField("at", at).Debug("last-data-read-at file updated")
}

func writeGlobalCheckpoint(path string, at int64) error {
	if err := atomicwriter.WriteFile(path, []byte(strconv.FormatInt(at, 10)), 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func readGlobalCheckpoint(path string) (int64, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s", path)
	}
	content := strings.Trim(string(bs), " \t\n")
	at, err := strconv.ParseInt(content, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid checkpoint %q in %s", content, path)
	}
	return at, nil
}
